// Package stream consumes decision events from Kafka and dispatches them
// through the ingest processor. It lets producers publish events to a topic
// instead of calling the HTTP endpoint directly.
package stream

import (
	"errors"

	"github.com/xray-io/xray/internal/config"
)

const (
	defaultBrokers = "localhost:9092"
	defaultTopic   = "xray.events"
	defaultGroupID = "xray-ingester"

	// Fetch sizing for the Kafka reader.
	minFetchBytes = 1
	maxFetchBytes = 10 * 1024 * 1024 // matches the HTTP MaxRequestSize default
)

var (
	// ErrNoBrokers indicates no Kafka brokers were configured.
	ErrNoBrokers = errors.New("at least one Kafka broker is required")

	// ErrEmptyTopic indicates the Kafka topic is empty.
	ErrEmptyTopic = errors.New("topic cannot be empty")

	// ErrEmptyGroupID indicates the consumer group ID is empty.
	ErrEmptyGroupID = errors.New("group ID cannot be empty")
)

// Config holds Kafka consumer configuration.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LoadConfig loads Kafka consumer configuration from environment variables
// with sensible defaults for local development.
func LoadConfig() *Config {
	return &Config{
		Brokers: config.ParseCommaSeparatedList(
			config.GetEnvStr("XRAY_KAFKA_BROKERS", defaultBrokers),
		),
		Topic:   config.GetEnvStr("XRAY_KAFKA_TOPIC", defaultTopic),
		GroupID: config.GetEnvStr("XRAY_KAFKA_GROUP_ID", defaultGroupID),
	}
}

// Validate validates the consumer configuration.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	if c.Topic == "" {
		return ErrEmptyTopic
	}

	if c.GroupID == "" {
		return ErrEmptyGroupID
	}

	return nil
}
