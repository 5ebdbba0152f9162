package memory

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

// RedisStore persists memory records per session as a Redis list of JSON
// documents with a rolling TTL, and ranks them in process by embedding
// similarity on recall. Safe for concurrent use.
type RedisStore struct {
	rdb      redis.Cmdable
	embedder model.Embedder
	ttl      time.Duration
}

func NewRedisStore(rdb redis.Cmdable, embedder model.Embedder, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	return &RedisStore{rdb: rdb, embedder: embedder, ttl: ttl}, nil
}

func (s *RedisStore) memoryKey(sessionID string) string {
	return fmt.Sprintf("memory:%s:records", sessionID)
}

// Store embeds the record content and appends it to the session's list.
func (s *RedisStore) Store(ctx context.Context, rec model.MemoryRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("memory record has no session id")
	}
	if len(rec.Embedding) == 0 {
		emb, err := s.embedder.Embed(ctx, rec.Content)
		if err != nil {
			return fmt.Errorf("embed memory content: %w", err)
		}
		rec.Embedding = emb
	}

	b, err := json.Marshal(rec)
	if err != nil {
		logx.Error().Err(err).Str("session_id", rec.SessionID).Msg("failed to marshal memory record")
		return fmt.Errorf("marshal memory record: %w", err)
	}
	key := s.memoryKey(rec.SessionID)

	// append record
	if err := s.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push memory record to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if s.ttl > 0 {
		if ok, err := s.rdb.Expire(ctx, key, s.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", s.ttl).Msg("failed to set TTL on memory key")
		}
	}
	return nil
}

// Recall embeds the query and returns the top-k session records by cosine
// similarity, ties broken by recency descending.
func (s *RedisStore) Recall(ctx context.Context, sessionID, query string, k int) ([]model.MemoryRecord, error) {
	if k <= 0 {
		return nil, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed recall query: %w", err)
	}

	key := s.memoryKey(sessionID)
	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load memory records from redis")
		return nil, errx.WrapRedis(err)
	}

	records := make([]model.MemoryRecord, 0, len(rows))
	for i, row := range rows {
		var rec model.MemoryRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			logx.Warn().Err(err).Str("key", key).Int("index", i).Msg("skipping undecodable memory record")
			continue
		}
		records = append(records, rec)
	}

	ranked := RankBySimilarity(records, qvec, k)
	logx.Debug().
		Str("session_id", sessionID).
		Int("stored", len(records)).
		Int("recalled", len(ranked)).
		Msg("memory recall")
	return ranked, nil
}

var _ model.MemoryRepository = (*RedisStore)(nil)
