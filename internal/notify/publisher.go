package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Publisher fans chat messages out over a Redis pub/sub channel so every
// server node pushes the same stream to its websocket clients.
type Publisher struct {
	redis   *redis.Client
	channel string
	log     *logrus.Logger
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(cfg domain.RedisConfig, logger *logrus.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Publisher{
		redis:   client,
		channel: cfg.Channel,
		log:     logger,
	}, nil
}

// Publish sends one message to the channel.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}

// Subscribe forwards every channel payload to the hub until the context is
// cancelled. Intended to run as a goroutine next to the hub's Run loop.
func (p *Publisher) Subscribe(ctx context.Context, hub *Hub) {
	sub := p.redis.Subscribe(ctx, p.channel)
	defer sub.Close()

	p.log.WithField("channel", p.channel).Info("Subscribed to notification channel")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			hub.Broadcast([]byte(msg.Payload))
		}
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.redis.Close()
}
