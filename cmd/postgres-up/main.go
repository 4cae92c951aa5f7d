// Command postgres-up migrates the database and exits.
package main

import (
	"fmt"
	"os"

	"github.com/project-ncl/sbomer-sub004/internal/postgresprovision"
)

func main() {
	if err := run(os.Environ()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(environ []string) error {
	cfg, err := parseConfig(environ)
	if err != nil {
		return err
	}

	return postgresprovision.Setup(cfg.Postgres.DSN)
}
