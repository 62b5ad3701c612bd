package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Topics published by the game core
const (
	TopicNewDay     = "game:new-day"
	TopicRankChange = "leaderboard:rank-change"
)

// NewDayEvent announces a fresh daily round set
type NewDayEvent struct {
	Date string `json:"date"`
}

// RankChangeEvent announces a user's new daily-scope rank
type RankChangeEvent struct {
	UserID       string `json:"user_id"`
	Rank         int    `json:"rank"`
	Participants int64  `json:"participants"`
}

// Publisher delivers events with no guarantee. Implementations must
// never block the caller or surface failures into the originating write.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

// RedisPublisher publishes events over Redis pub/sub
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on the given Redis client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish marshals the payload and fires it at the topic. Failures are
// logged and dropped.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal broadcast payload", "topic", topic, "error", err)
		return
	}

	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		slog.Warn("broadcast publish failed", "topic", topic, "error", err)
	}
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, topic string, payload interface{}) {}
