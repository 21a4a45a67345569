package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
	"github.com/zatekoja/coursefeedback/backend/pkg/config"
)

func main() {
	var down int

	flag.IntVar(&down, "down", 0, "Roll back this many migrations instead of applying pending ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("course-feedback-migrate", cfg.App.Env, cfg.App.LogLevel)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()

	if down > 0 {
		if err := pgClient.RollbackMigrations(down); err != nil {
			log.Fatal().Err(err).Int("steps", down).Msg("rollback failed")
		}
		return
	}

	if err := pgClient.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
