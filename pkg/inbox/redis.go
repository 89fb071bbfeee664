package inbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// RedisQueue stores each workspace inbox as a LIST of message ids plus a
// HASH of id -> envelope JSON. Lease reads without popping, so an un-acked
// message survives a bridge crash and is leased again later.
type RedisQueue struct {
	client   *redis.Client
	maxDepth int
}

func NewRedisQueue(client *redis.Client, maxDepth int) *RedisQueue {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &RedisQueue{client: client, maxDepth: maxDepth}
}

func listKey(workspaceID string) string { return "burrow:inbox:" + workspaceID + ":ids" }
func hashKey(workspaceID string) string { return "burrow:inbox:" + workspaceID + ":msgs" }

func (q *RedisQueue) Push(ctx context.Context, workspaceID string, msg wire.InboxMessage) error {
	encoded, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("inbox encode: %w", err)
	}

	depth, err := q.client.LLen(ctx, listKey(workspaceID)).Result()
	if err != nil {
		return fmt.Errorf("inbox depth: %w", err)
	}
	if depth >= int64(q.maxDepth) {
		oldest, err := q.client.LPop(ctx, listKey(workspaceID)).Result()
		if err == nil {
			q.client.HDel(ctx, hashKey(workspaceID), oldest)
			logger.WarnCF("inbox", "queue full, dropping oldest message", map[string]interface{}{
				"workspace_id": workspaceID,
				"message_id":   oldest,
			})
		}
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listKey(workspaceID), msg.MessageID)
		pipe.HSet(ctx, hashKey(workspaceID), msg.MessageID, encoded)
		return nil
	})
	if err != nil {
		return fmt.Errorf("inbox push: %w", err)
	}
	return nil
}

func (q *RedisQueue) Lease(ctx context.Context, workspaceID string, max int) ([]wire.InboxMessage, error) {
	if max <= 0 {
		max = q.maxDepth
	}
	ids, err := q.client.LRange(ctx, listKey(workspaceID), 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("inbox lease: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := q.client.HMGet(ctx, hashKey(workspaceID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("inbox lease bodies: %w", err)
	}

	out := make([]wire.InboxMessage, 0, len(ids))
	for i, v := range raw {
		body, ok := v.(string)
		if !ok {
			// id without a body: half-acked leftover, drop the id too.
			q.client.LRem(ctx, listKey(workspaceID), 1, ids[i])
			continue
		}
		var msg wire.InboxMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			logger.ErrorCF("inbox", "undecodable queued message, removing", map[string]interface{}{
				"workspace_id": workspaceID,
				"message_id":   ids[i],
			})
			q.client.LRem(ctx, listKey(workspaceID), 1, ids[i])
			q.client.HDel(ctx, hashKey(workspaceID), ids[i])
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *RedisQueue) Ack(ctx context.Context, workspaceID string, messageIDs []string) (int, error) {
	removed := 0
	for _, id := range messageIDs {
		n, err := q.client.LRem(ctx, listKey(workspaceID), 1, id).Result()
		if err != nil {
			return removed, fmt.Errorf("inbox ack: %w", err)
		}
		q.client.HDel(ctx, hashKey(workspaceID), id)
		removed += int(n)
	}
	return removed, nil
}
