package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher delivers a JSON-encodable payload under a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Envelope is the message written to the broker.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 1

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisPublisher publishes envelopes on Redis pub/sub. The channel of a
// message is the configured prefix joined to the topic with a colon.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, now: time.Now}
}

// Channel returns the pub/sub channel used for topic.
func (p *RedisPublisher) Channel(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + ":" + topic
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	msg, err := json.Marshal(Envelope{Topic: topic, Payload: body, SentAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", topic, err)
	}
	if err := p.client.Publish(ctx, p.Channel(topic), msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Ping reports whether the broker is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// LogPublisher writes events to the log only. It is used when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, payload interface{}) error {
	p.logger.Info().Str("topic", topic).Interface("payload", payload).Msg("event")
	return nil
}
