package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fotastore/server/internal/config"
	"github.com/fotastore/server/internal/handlers"
	custommw "github.com/fotastore/server/internal/middleware"
	"github.com/fotastore/server/internal/observability"
	"github.com/fotastore/server/internal/repository"
	"github.com/fotastore/server/internal/services"
)

func main() {
	var (
		configPath string
		addr       string
		dbPath     string
	)
	flagSet := pflag.NewFlagSet("fotastore", pflag.ExitOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a JSON or YAML config file (default: $CONFIG_PATH or config.json)")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides serverAddress")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path, overrides databasePath")
	flagSet.Parse(os.Args[1:])

	logger := observability.GetLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	logger.SetLevel(observability.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeBackend := "sqlite"
	if cfg.UsePostgres() {
		storeBackend = "postgres"
	}
	telemetry, err := observability.Initialize(ctx, observability.Config{
		ServiceName:       "fotastore",
		ServiceVersion:    handlers.Version,
		Environment:       cfg.Telemetry.Environment,
		OTLPEndpoint:      cfg.Telemetry.Endpoint,
		Insecure:          cfg.Telemetry.Insecure,
		SampleRatio:       cfg.Telemetry.SampleRatio,
		ExportInterval:    cfg.Telemetry.ExportInterval(),
		StoreBackend:      storeBackend,
		StrictTransitions: cfg.Upgrade.StrictTransitions,
		Enabled:           cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.WithError(err).Warn("Telemetry unavailable, continuing without export")
	}

	var db *sql.DB
	if cfg.UsePostgres() {
		logger.Info("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
	} else {
		logger.WithField("path", cfg.DatabasePath).Info("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
	}
	if err != nil {
		logger.WithError(err).Error("Failed to initialize database")
		os.Exit(1)
	}
	defer db.Close()

	dbMetrics, err := observability.NewDatabaseMetrics()
	if err != nil {
		logger.WithError(err).Warn("Database metrics unavailable")
	}
	storeMetrics, err := observability.NewStoreMetrics()
	if err != nil {
		logger.WithError(err).Warn("Store metrics unavailable")
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		logger.WithError(err).Warn("HTTP metrics unavailable")
	}

	// Event fan-out
	hub := services.NewWebSocketHub()
	go hub.Run(ctx)
	publishers := services.MultiPublisher{hub}

	if cfg.MQTT.Enabled {
		client, err := services.ConnectMQTT(services.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			logger.WithError(err).Warn("MQTT unavailable, events stay local")
		} else {
			defer client.Disconnect(250)
			mqttPublisher := services.NewMQTTPublisher(client, cfg.MQTT.TopicPrefix)
			go mqttPublisher.Start(ctx)
			publishers = append(publishers, mqttPublisher)
		}
	}

	// Store
	scope := services.NewAccountScope(db, dbMetrics, storeMetrics, publishers)
	if err := scope.Restore(ctx); err != nil {
		logger.WithError(err).Error("Failed to restore current account")
		os.Exit(1)
	}
	store := services.NewUpgradeStore(scope, services.UpgradeStoreConfig{
		StrictTransitions: cfg.Upgrade.StrictTransitions,
		UpgradeTimeout:    cfg.Upgrade.Timeout(),
	}, publishers, storeMetrics)
	txLog := services.NewTransactionLog(scope, publishers, storeMetrics)

	apiKeyHash := cfg.Security.APIKeyHash
	if apiKeyHash == "" && cfg.Security.APIKey != "" {
		if apiKeyHash, err = custommw.HashAPIKey(cfg.Security.APIKey); err != nil {
			logger.WithError(err).Error("Failed to hash API key")
			os.Exit(1)
		}
	}
	if apiKeyHash == "" {
		logger.Warn("No API key configured, the API is open")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Scope:        scope,
		Store:        store,
		Log:          txLog,
		Hub:          hub,
		APIKeyHash:   apiKeyHash,
		APIKeyHeader: cfg.Security.APIKeyHeader,
		HTTPMetrics:  httpMetrics,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":               cfg.ServerAddress,
			"strict_transitions": cfg.Upgrade.StrictTransitions,
		}).Info("FOTA store server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}

	logger.Info("Server stopped")
}
