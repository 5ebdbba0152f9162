package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

const recommendationQueueKey = "cart:recommendations"

// RedisNotifier publishes recommendation side effects onto a Redis queue for
// the cart service to consume. Fire-and-forget from the cycle's perspective.
type RedisNotifier struct {
	rdb redis.Cmdable
}

func NewRedisNotifier(rdb redis.Cmdable) (*RedisNotifier, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisNotifier{rdb: rdb}, nil
}

type recommendationEvent struct {
	SessionID string    `json:"session_id"`
	ItemID    string    `json:"item_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *RedisNotifier) NotifyRecommendation(ctx context.Context, sessionID, itemID string) error {
	b, err := json.Marshal(recommendationEvent{
		SessionID: sessionID,
		ItemID:    itemID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal recommendation event: %w", err)
	}

	if err := n.rdb.RPush(ctx, recommendationQueueKey, b).Err(); err != nil {
		logx.Error().Err(err).Str("item_id", itemID).Msg("failed to enqueue recommendation event")
		return errx.WrapRedis(err)
	}

	logx.Debug().
		Str("session_id", sessionID).
		Str("item_id", itemID).
		Msg("recommendation event enqueued")
	return nil
}

var _ model.CartNotifier = (*RedisNotifier)(nil)
