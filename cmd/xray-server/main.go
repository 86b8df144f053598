// Package main provides the X-Ray ingest API server.
//
// The server receives batched observability events from instrumented
// pipelines over POST /ingest and persists them to PostgreSQL.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/xray-io/xray/internal/api"
	"github.com/xray-io/xray/internal/api/middleware"
	"github.com/xray-io/xray/internal/config"
	"github.com/xray-io/xray/internal/ingest"
	"github.com/xray-io/xray/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "xray-server"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting X-Ray service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
	)

	store := buildStore(logger)

	auth := middleware.NewAuthenticator(middleware.LoadAuthConfig())
	if auth == nil {
		logger.Warn("API key authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set XRAY_API_KEYS or XRAY_API_KEY_HASHES to enable authentication"),
		)
	} else {
		logger.Info("API key authentication enabled")
	}

	server := api.NewServer(serverConfig, store, auth, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("X-Ray service stopped")
}

// buildStore connects to PostgreSQL, or falls back to the in-memory store in
// debug mode when no database URL is configured. Production requires a
// database: events must survive a restart.
func buildStore(logger *slog.Logger) ingest.Store {
	storageConfig := storage.LoadConfig()

	if !storageConfig.IsConfigured() {
		if !config.GetEnvBool("XRAY_DEBUG", false) {
			logger.Error("XRAY_DATABASE_URL is not set",
				slog.String("note", "Set XRAY_DEBUG=true to run with the in-memory store"),
			)
			os.Exit(1)
		}

		logger.Warn("Running with in-memory store, events will not survive a restart")

		return storage.NewInMemoryEventStore()
	}

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewEventStore(dbConn, logger)
	if err != nil {
		logger.Error("Failed to create event store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Event store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	return store
}
