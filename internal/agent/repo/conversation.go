package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

// RedisTurnRepository persists conversation turns per conversation as a Redis
// list of JSON messages with a rolling TTL. It feeds the history the extractor
// and planner see on every run, including clarification resumes.
type RedisTurnRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTurnRepository(rdb redis.Cmdable, ttl time.Duration) (*RedisTurnRepository, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisTurnRepository{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisTurnRepository) turnKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:turns", conversationID)
}

// AppendTurn appends one message to the conversation and extends the TTL.
func (r *RedisTurnRepository) AppendTurn(ctx context.Context, conversationID string, message *schema.Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := r.turnKey(conversationID)

	// append turn
	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on conversation key")
		}
	}
	return nil
}

// LoadTurns returns the full conversation, oldest first. A missing key is an
// empty conversation, not an error.
func (r *RedisTurnRepository) LoadTurns(ctx context.Context, conversationID string) ([]*schema.Message, error) {
	key := r.turnKey(conversationID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load turns from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, row := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// ClearTurns drops the whole conversation.
func (r *RedisTurnRepository) ClearTurns(ctx context.Context, conversationID string) error {
	key := r.turnKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete turns from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// TurnCount reports how many turns the conversation holds.
func (r *RedisTurnRepository) TurnCount(ctx context.Context, conversationID string) (int, error) {
	key := r.turnKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get turn count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.TurnRepository = (*RedisTurnRepository)(nil)
