package main

import (
	"flag"
	"os"

	"github.com/tair/commerce-ledger/internal/config"
	"github.com/tair/commerce-ledger/pkg/database"
	"github.com/tair/commerce-ledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "path to a config file")
	status := flag.Bool("status", false, "print migration status and exit")
	flag.Parse()

	logger.Init("commerce-ledger-migrate", true)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewPostgresConnection(database.Config{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		DBName:       cfg.DB.Name,
		SSLMode:      cfg.DB.SSLMode,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if *status {
		if err := database.MigrationStatus(db); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to read migration status")
		}
		return
	}

	if err := database.Migrate(db); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Migration failed")
	}
	logger.Logger.Info().Str("db", cfg.DB.Name).Msg("Migrations applied")
}
