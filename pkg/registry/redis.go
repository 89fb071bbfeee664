package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "burrow:workspace:"

// RedisStore persists records as JSON values in redis. Conditional Puts run
// under WATCH so two brokers racing on the same workspace cannot both win.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(workspaceID string) string {
	return redisKeyPrefix + workspaceID
}

func (s *RedisStore) Get(ctx context.Context, workspaceID string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisKey(workspaceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry get %s: %w", workspaceID, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("registry decode %s: %w", workspaceID, err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, record *Record, expectVersion int64) error {
	key := redisKey(record.WorkspaceID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			current = 0
		case err != nil:
			return fmt.Errorf("registry read %s: %w", record.WorkspaceID, err)
		default:
			var existing Record
			if err := json.Unmarshal([]byte(raw), &existing); err != nil {
				return fmt.Errorf("registry decode %s: %w", record.WorkspaceID, err)
			}
			current = existing.Version
		}
		if current != expectVersion {
			return ErrVersionConflict
		}

		stored := *record
		stored.Version = current + 1
		stored.UpdatedAt = time.Now().UTC()
		encoded, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("registry encode %s: %w", record.WorkspaceID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err == nil {
			record.Version = stored.Version
			record.UpdatedAt = stored.UpdatedAt
		}
		return err
	}, key)

	// A WATCH abort means someone else wrote between our read and the EXEC.
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}
