package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Rrens/thread-router/internal/config"
	"github.com/Rrens/thread-router/internal/logger"
	"github.com/Rrens/thread-router/internal/repository/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	status := flag.Bool("status", false, "print the applied schema version and exit")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if _, err := logger.Setup(cfg.Logging, os.Stderr); err != nil {
		panic(fmt.Sprintf("Failed to set up logging: %v", err))
	}

	pg := cfg.Registry.Postgres
	dsn := pg.DSN()
	log.Info().Str("host", pg.Host).Int("port", pg.Port).Str("database", pg.Database).Msg("Connecting to registry database")

	switch {
	case *status:
		version, dirty, err := postgres.MigrationVersion(dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	case *down > 0:
		if err := postgres.RollbackMigrations(dsn, *down); err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		log.Info().Int("steps", *down).Msg("Rolled back migrations")
	default:
		if err := postgres.RunMigrations(dsn); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
	}
}
