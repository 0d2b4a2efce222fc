package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Aksor9/AI-GameMaster/pkg/queue"
)

// Broadcaster publishes task results to Redis Pub/Sub for SSE distribution.
// Each client has its own channel so result fan-out stays per-player.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

func resultChannel(clientID string) string {
	return fmt.Sprintf("results:%s", clientID)
}

// Publish sends a result event to the client's channel.
func (b *Broadcaster) Publish(ctx context.Context, clientID string, event queue.ResultEvent) error {
	result := queue.Result{
		ClientID: clientID,
		Result:   event,
	}

	data, err := json.Marshal(result)
	if err != nil {
		b.logger.Error("Failed to marshal result event", "error", err, "client_id", clientID)
		return fmt.Errorf("failed to marshal result event: %w", err)
	}

	channel := resultChannel(clientID)
	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish result event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish result event: %w", err)
	}

	b.logger.Debug("Result event published",
		"channel", channel,
		"event_type", event.EventType,
	)

	return nil
}

// PublishError sends an ERROR event with the given message.
func (b *Broadcaster) PublishError(ctx context.Context, clientID string, msg string) error {
	return b.Publish(ctx, clientID, queue.ResultEvent{
		EventType: queue.EventError,
		Error:     msg,
	})
}

// Subscribe returns a pub/sub subscription for the client's result channel.
// The caller owns the subscription and must close it.
func (b *Broadcaster) Subscribe(ctx context.Context, clientID string) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, resultChannel(clientID))
}
