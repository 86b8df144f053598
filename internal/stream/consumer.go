package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/xray-io/xray/apitypes"
	"github.com/xray-io/xray/internal/ingest"
)

// Consumer reads decision events from a Kafka topic and dispatches them
// through the ingest processor.
//
// Message values carry either a single wire event or a JSON array of events,
// the same format the HTTP /ingest endpoint accepts. Malformed messages are
// logged and skipped so one bad producer cannot stall the partition.
type Consumer struct {
	reader    *kafka.Reader
	processor *ingest.Processor
	logger    *slog.Logger
}

// NewConsumer creates a Kafka consumer bound to the configured topic and
// consumer group.
func NewConsumer(cfg *Config, processor *ingest.Processor, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: minFetchBytes,
		MaxBytes: maxFetchBytes,
	})

	return &Consumer{
		reader:    reader,
		processor: processor,
		logger:    logger,
	}, nil
}

// Run consumes messages until the context is canceled.
//
// Offsets are committed after dispatch. Per-event referential failures
// (unknown run, duplicate run) do not block the commit: replaying them
// would fail identically.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer",
		slog.String("topic", c.reader.Config().Topic),
		slog.String("group_id", c.reader.Config().GroupID),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("fetch message: %w", err)
		}

		c.processMessage(ctx, msg.Value, msg.Partition, msg.Offset)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

// processMessage decodes a message value and dispatches the contained events.
// Decode failures are logged and swallowed: the message is skipped.
func (c *Consumer) processMessage(ctx context.Context, value []byte, partition int, offset int64) {
	events, err := decodeMessage(value)
	if err != nil {
		c.logger.Warn("Skipping malformed message",
			slog.Int("partition", partition),
			slog.Int64("offset", offset),
			slog.String("error", err.Error()),
		)

		return
	}

	response := c.processor.ProcessBatch(ctx, events)

	c.logger.Info("Message processed",
		slog.Int("partition", partition),
		slog.Int64("offset", offset),
		slog.Int("processed", response.Processed),
		slog.Int("succeeded", response.Succeeded),
		slog.Int("failed", response.Failed),
	)
}

// decodeMessage decodes a message value as either a JSON array of events or
// a single event object.
func decodeMessage(value []byte) ([]apitypes.Event, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty message", apitypes.ErrInvalidEvent)
	}

	if trimmed[0] == '[' {
		return apitypes.ParseBatch(trimmed)
	}

	event, err := apitypes.ParseEvent(trimmed)
	if err != nil {
		return nil, err
	}

	return []apitypes.Event{event}, nil
}

// Close shuts down the Kafka reader and leaves the consumer group.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("close reader: %w", err)
	}

	return nil
}
