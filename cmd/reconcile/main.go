package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tair/commerce-ledger/internal/commerce/reconcile"
	"github.com/tair/commerce-ledger/internal/commerce/repository"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/query"
	"github.com/tair/commerce-ledger/internal/config"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/database"
	"github.com/tair/commerce-ledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "path to a config file")
	month := flag.String("month", "", "month to recompute as YYYY-MM (default: current month)")
	flag.Parse()

	logger.Init("commerce-ledger-reconcile", true)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.SetLevel(cfg.Service.LogLevel)

	if *month == "" {
		loc, _ := cfg.Location()
		*month = time.Now().In(loc).Format("2006-01")
	}

	db, err := database.NewGormConnection(database.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to get database instance")
	}
	defer sqlDB.Close()

	ledgerCache := cache.New(cache.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		DefaultTTL: cfg.Redis.DefaultTTL,
	})
	defer ledgerCache.Close()

	store := repository.NewGormStore(db, repository.Options{
		LockTimeout:  cfg.Ledger.LockTimeout,
		TxTimeout:    cfg.Ledger.TxTimeout,
		Serializable: cfg.Ledger.SerializableStock,
	})
	r := reconcile.NewReconciler(store,
		command.NewRecomputeMonthlySummaryHandler(store, ledgerCache),
		query.NewVerifyLedgerHandler(store),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, err := r.Run(ctx, *month)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Reconciliation aborted")
	}

	failed, unbalanced := 0, 0
	for _, rep := range reports {
		if rep.Err != nil {
			failed++
		} else if len(rep.Mismatches) > 0 {
			unbalanced++
		}
	}
	logger.Logger.Info().
		Str("month", *month).
		Int("outlets", len(reports)).
		Int("failed", failed).
		Int("unbalanced", unbalanced).
		Msg("Reconciliation finished")

	if failed > 0 || unbalanced > 0 {
		os.Exit(1)
	}
}
