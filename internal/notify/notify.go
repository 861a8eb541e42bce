// Package notify delivers background job progress to the user who started
// the job.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/logger"
)

// Sink receives progress messages for a user.
type Sink interface {
	Emit(ctx context.Context, userID string, msg domain.ProgressMessage) error
}

// Channel returns the pub/sub channel carrying a user's progress messages.
func Channel(userID string) string {
	return "progress:" + userID
}

// RedisSink publishes progress messages as JSON on the user's channel.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a sink over an existing Redis client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Emit(ctx context.Context, userID string, msg domain.ProgressMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Publish(ctx, Channel(userID), body).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on the user's progress channel. The caller
// closes it.
func (s *RedisSink) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return s.client.Subscribe(ctx, Channel(userID))
}

// LogSink writes progress to the structured log. Used when Redis is not
// configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.Named("notify")}
}

func (s *LogSink) Emit(_ context.Context, userID string, msg domain.ProgressMessage) error {
	if msg.Error != "" {
		s.log.Warn("job failed", "user_id", userID, "channel", msg.Channel, "error", msg.Error)
		return nil
	}
	var pct float64
	if msg.Progress != nil {
		pct = *msg.Progress
	}
	s.log.Info("job progress", "user_id", userID, "channel", msg.Channel, "progress", pct)
	return nil
}
