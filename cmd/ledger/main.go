package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/tair/commerce-ledger/docs"
	"github.com/tair/commerce-ledger/internal/commerce"
	httpDelivery "github.com/tair/commerce-ledger/internal/commerce/delivery/http"
	"github.com/tair/commerce-ledger/internal/commerce/delivery/events"
	"github.com/tair/commerce-ledger/internal/commerce/repository"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/config"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/auth"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/database"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not initialized yet
		logger.Init("commerce-ledger", true)
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.Service.Name, cfg.IsDevelopment())
	logger.SetLevel(cfg.Service.LogLevel)

	logger.Logger.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("log_level", cfg.Service.LogLevel).
		Msg("Starting commerce ledger")

	// Initialize tracer
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Service.Name, cfg.Service.Version, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to initialize tracer")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracing.Shutdown(ctx, tp); err != nil {
					logger.Logger.Error().Err(err).Msg("Failed to shutdown tracer")
				}
			}()
		}
	}

	auth.SetSecret(cfg.Auth.JWTSecret)

	// Connect to database
	db, err := database.NewGormConnection(database.Config{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		DBName:       cfg.DB.Name,
		SSLMode:      cfg.DB.SSLMode,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to get database instance")
	}
	defer sqlDB.Close()

	if cfg.DB.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		logger.Logger.Info().Msg("Schema auto-migrated")
	}

	// Cache is optional: nil passes reads through to the database
	ledgerCache := cache.New(cache.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		DefaultTTL: cfg.Redis.DefaultTTL,
	})
	defer ledgerCache.Close()

	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = kafka.NewPublisher(cfg.Kafka.Brokers)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to create Kafka publisher, events disabled")
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	threshold, _ := cfg.VarianceThreshold()
	location, _ := cfg.Location()
	policy := command.Policy{
		BlockSaleOversell:        cfg.Ledger.BlockSaleOversell,
		DefaultVarianceThreshold: threshold,
		Location:                 location,
	}

	// Initialize handlers with Wire DI
	ledger, err := commerce.InitializeLedger(db, repository.Options{
		LockTimeout:  cfg.Ledger.LockTimeout,
		TxTimeout:    cfg.Ledger.TxTimeout,
		Serializable: cfg.Ledger.SerializableStock,
	}, ledgerCache, cache.NewRateLimiter(ledgerCache, cfg.HTTP.RateLimit, cfg.HTTP.RateWindow), publisher, policy)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize ledger")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{kafka.TopicPOSSales}, kafka.RetryPolicy{
			Attempts:  3,
			Backoff:   200 * time.Millisecond,
			Retryable: events.Retryable,
		})
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to create Kafka consumer, POS ingestion disabled")
		} else {
			ledger.Sales.Register(consumer)
			if publisher != nil {
				consumer.SetDeadLetter(publisher)
			}
			if err := consumer.Start(ctx); err != nil {
				logger.Logger.Error().Err(err).Msg("Failed to start Kafka consumer")
			}
			defer consumer.Close()
		}
	}

	server := newHTTPServer(ledger.HTTP, cfg)
	go func() {
		logger.Logger.Info().
			Str("port", cfg.HTTP.Port).
			Str("metrics_endpoint", "/metrics").
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
}

func newHTTPServer(handler *httpDelivery.LedgerHandler, cfg config.Config) *http.Server {
	router := mux.NewRouter()

	mwConfig := httpDelivery.DefaultMiddlewareConfig(cfg.HTTP.Timeout)
	httpDelivery.RegisterMiddlewares(router, mwConfig)

	handler.RegisterRoutes(router)
	httpDelivery.RegisterSwaggerDocs(router, httpSwagger.WrapHandler)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           httpDelivery.SetupCORS(mwConfig)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
