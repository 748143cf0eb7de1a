package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

// ChannelForUser names the Redis pub/sub channel carrying one user's
// wake and generation events. The WebSocket hub subscribes to it.
func ChannelForUser(userID uuid.UUID) string {
	return "user_events:" + userID.String()
}

// Publisher fans events out through Redis so every connected device
// sees them, regardless of which instance produced the event.
type Publisher struct {
	redis  *redis.Client
	logger *log.Logger
}

func NewPublisher(redisClient *redis.Client, logger *log.Logger) *Publisher {
	return &Publisher{redis: redisClient, logger: logger}
}

func (p *Publisher) PublishToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.redis.Publish(ctx, ChannelForUser(userID), string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug("event published", "user_id", userID, "type", msg.Type)
	return nil
}
