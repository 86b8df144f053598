// Package main provides the X-Ray Kafka ingestion bridge.
//
// The ingester consumes decision events from a Kafka topic and persists them
// through the same processor the HTTP API uses, for deployments that ship
// events through a broker instead of direct POSTs.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/xray-io/xray/internal/api"
	"github.com/xray-io/xray/internal/ingest"
	"github.com/xray-io/xray/internal/storage"
	"github.com/xray-io/xray/internal/stream"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "xray-ingester"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: api.LoadServerConfig().LogLevel,
	}))

	logger.Info("Starting X-Ray ingester",
		slog.String("service", name),
		slog.String("version", version),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	store, err := storage.NewEventStore(dbConn, logger)
	if err != nil {
		logger.Error("Failed to create event store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Event store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	streamConfig := stream.LoadConfig()

	consumer, err := stream.NewConsumer(streamConfig, ingest.NewProcessor(store, logger), logger)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	defer func() {
		_ = consumer.Close()
	}()

	logger.Info("Kafka consumer initialized",
		slog.Any("brokers", streamConfig.Brokers),
		slog.String("topic", streamConfig.Topic),
		slog.String("group_id", streamConfig.GroupID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("X-Ray ingester stopped")
}
