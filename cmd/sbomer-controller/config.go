package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/project-ncl/sbomer-sub004/internal/amqputil"
	"github.com/project-ncl/sbomer-sub004/internal/apps3"
	"github.com/project-ncl/sbomer-sub004/internal/controller"
	"github.com/project-ncl/sbomer-sub004/internal/generator"
	"github.com/project-ncl/sbomer-sub004/internal/leaderelection"
	"github.com/project-ncl/sbomer-sub004/internal/postgresutil"
	"github.com/project-ncl/sbomer-sub004/internal/retry"
	"github.com/project-ncl/sbomer-sub004/internal/server"
)

// config holds the application configuration.
type config struct {
	Development    bool `env:"SBOMER_DEVELOPMENT"`
	LeaderElection bool `env:"SBOMER_LEADER_ELECTION" envDefault:"true"`

	Postgres   postgresutil.Config   `envPrefix:"SBOMER_POSTGRES_"`
	AMQP       amqputil.Config       `envPrefix:"SBOMER_AMQP_"`
	S3         apps3.Config          `envPrefix:"SBOMER_S3_"`
	Controller controller.Config     `envPrefix:"SBOMER_CONTROLLER_"`
	Retry      retry.Policy          `envPrefix:"SBOMER_CONTROLLER_"`
	Execution  generator.Config      `envPrefix:"SBOMER_EXECUTION_"`
	Leader     leaderelection.Config `envPrefix:"SBOMER_LEADER_"`
	Server     server.Config         `envPrefix:"SBOMER_SERVER_"`
}

// parseConfig parses the application configuration from the environment variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	if err = validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
