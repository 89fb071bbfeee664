// Package inbox is the broker-side pull-mode delivery queue: envelopes pushed
// per workspace, leased in bounded batches, removed only on explicit ack.
// Delivery is at-least-once; the bridge's dedup cache absorbs redelivery.
package inbox

import (
	"context"
	"sync"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// DefaultMaxDepth caps a workspace queue. Past it the oldest message is
// dropped on push — a backstop against a dead bridge filling the broker.
const DefaultMaxDepth = 1000

// Queue is the storage interface. Lease returns up to max messages without
// removing them; Ack removes by id and returns how many were found.
type Queue interface {
	Push(ctx context.Context, workspaceID string, msg wire.InboxMessage) error
	Lease(ctx context.Context, workspaceID string, max int) ([]wire.InboxMessage, error)
	Ack(ctx context.Context, workspaceID string, messageIDs []string) (int, error)
}

// MemoryQueue keeps per-workspace FIFO slices under one mutex.
type MemoryQueue struct {
	mu       sync.Mutex
	maxDepth int
	queues   map[string][]wire.InboxMessage
}

func NewMemoryQueue(maxDepth int) *MemoryQueue {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &MemoryQueue{
		maxDepth: maxDepth,
		queues:   make(map[string][]wire.InboxMessage),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, workspaceID string, msg wire.InboxMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[workspaceID]
	if len(queue) >= q.maxDepth {
		dropped := queue[0]
		queue = queue[1:]
		logger.WarnCF("inbox", "queue full, dropping oldest message", map[string]interface{}{
			"workspace_id": workspaceID,
			"message_id":   dropped.MessageID,
		})
	}
	q.queues[workspaceID] = append(queue, msg)
	return nil
}

func (q *MemoryQueue) Lease(ctx context.Context, workspaceID string, max int) ([]wire.InboxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[workspaceID]
	if max <= 0 || max > len(queue) {
		max = len(queue)
	}
	out := make([]wire.InboxMessage, max)
	copy(out, queue[:max])
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, workspaceID string, messageIDs []string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	acked := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		acked[id] = struct{}{}
	}

	queue := q.queues[workspaceID]
	kept := queue[:0]
	removed := 0
	for _, msg := range queue {
		if _, ok := acked[msg.MessageID]; ok {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	q.queues[workspaceID] = kept
	return removed, nil
}
