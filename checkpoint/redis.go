package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// RedisStore persists checkpoints in Redis. Each checkpoint lives under its
// own key; a per-run list tracks insertion order so retention can trim the
// oldest entries.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	maxPerRun int
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix overrides the default "agentgraph:ckpt" key prefix.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithRedisMaxPerRun bounds retained checkpoints per run (0 = unlimited).
func WithRedisMaxPerRun(n int) RedisStoreOption {
	return func(s *RedisStore) {
		s.maxPerRun = n
	}
}

// WithRedisTTL expires checkpoints after the given duration (0 = keep).
func WithRedisTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisLogger sets the store's logger.
func WithRedisLogger(logger *zap.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "agentgraph:ckpt",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "redis_checkpoint_store"))
	return s
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, id)
}

func (s *RedisStore) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", s.keyPrefix, runID)
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(cp.ID), payload, s.ttl)
	pipe.RPush(ctx, s.runKey(cp.RunID), cp.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runKey(cp.RunID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if s.maxPerRun > 0 {
		if err := s.trim(ctx, cp.RunID); err != nil {
			s.logger.Warn("checkpoint retention trim failed",
				zap.String("run_id", cp.RunID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *RedisStore) trim(ctx context.Context, runID string) error {
	runKey := s.runKey(runID)
	length, err := s.client.LLen(ctx, runKey).Result()
	if err != nil {
		return err
	}
	excess := int(length) - s.maxPerRun
	if excess <= 0 {
		return nil
	}

	evicted, err := s.client.LPopCount(ctx, runKey, excess).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(evicted))
	for _, id := range evicted {
		keys = append(keys, s.key(id))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	cp, err := s.Load(ctx, id)
	if err != nil {
		// Absent ids are not an error.
		if types.IsCode(err, types.ErrCheckpointNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.LRem(ctx, s.runKey(cp.RunID), 1, id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListByRun(ctx context.Context, runID string) ([]*Checkpoint, error) {
	ids, err := s.client.LRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Load(ctx, id)
		if err != nil {
			// Expired entries may linger in the index; skip them.
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}
