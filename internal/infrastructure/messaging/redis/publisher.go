// Package redis forwards domain events to a Redis pub/sub channel
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/event"
)

// DefaultChannel receives every demande event when no channel is configured
const DefaultChannel = "demande.events"

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Channel  string
}

// Publisher implements port.EventPublisher with PUBLISH
type Publisher struct {
	client  *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewClient creates a Redis client from config
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewPublisher creates a publisher on the configured channel
func NewPublisher(client *goredis.Client, channel string, logger *zap.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel, logger: logger}
}

// Publish sends the JSON encoded event and returns the number of subscribers reached
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", evt.ID, err)
	}

	p.logger.Debug("Event published",
		zap.String("channel", p.channel),
		zap.String("event_type", evt.Type.String()),
		zap.String("demande_id", evt.DemandeID),
		zap.Int64("receivers", receivers))
	return nil
}

// Ping checks the connection
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Channel returns the channel events are published on
func (p *Publisher) Channel() string {
	return p.channel
}

var _ port.EventPublisher = (*Publisher)(nil)
