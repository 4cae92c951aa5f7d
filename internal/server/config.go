package server

import (
	"time"
)

// Config holds the server configuration.
type Config struct {
	Host              string        `env:"HOST" envDefault:"127.0.0.1" validate:"required"`
	Port              int           `env:"PORT" envDefault:"8080" validate:"gt=0,lte=65535"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
}
