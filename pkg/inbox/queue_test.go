package inbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/burrowlabs/burrow/pkg/wire"
)

func msg(id string) wire.InboxMessage {
	return wire.InboxMessage{
		MessageID: id,
		Envelope: wire.Envelope{
			WorkspaceID: "T1",
			Encrypted:   "payload-" + id,
			Timestamp:   100,
			Signature:   "sig",
		},
	}
}

func TestLeaseDoesNotRemove(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)

	q.Push(ctx, "T1", msg("a"))
	q.Push(ctx, "T1", msg("b"))

	first, err := q.Lease(ctx, "T1", 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("leased %d messages, want 2", len(first))
	}

	// An un-acked lease leaves the queue untouched.
	second, _ := q.Lease(ctx, "T1", 10)
	if len(second) != 2 {
		t.Fatalf("re-lease returned %d messages, want 2", len(second))
	}
}

func TestLeaseRespectsMax(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)
	for i := 0; i < 5; i++ {
		q.Push(ctx, "T1", msg(fmt.Sprintf("m%d", i)))
	}

	batch, _ := q.Lease(ctx, "T1", 3)
	if len(batch) != 3 {
		t.Fatalf("leased %d messages, want 3", len(batch))
	}
	if batch[0].MessageID != "m0" {
		t.Fatalf("lease is not FIFO: first id %q", batch[0].MessageID)
	}
}

func TestAckRemovesOnlyNamed(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)
	q.Push(ctx, "T1", msg("a"))
	q.Push(ctx, "T1", msg("b"))
	q.Push(ctx, "T1", msg("c"))

	removed, err := q.Ack(ctx, "T1", []string{"a", "c", "missing"})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	left, _ := q.Lease(ctx, "T1", 10)
	if len(left) != 1 || left[0].MessageID != "b" {
		t.Fatalf("queue after ack = %+v, want only b", left)
	}
}

func TestPushDropsOldestPastCap(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)
	for i := 0; i < 5; i++ {
		q.Push(ctx, "T1", msg(fmt.Sprintf("m%d", i)))
	}

	left, _ := q.Lease(ctx, "T1", 10)
	if len(left) != 3 {
		t.Fatalf("depth = %d, want 3", len(left))
	}
	if left[0].MessageID != "m2" || left[2].MessageID != "m4" {
		t.Fatalf("wrong survivors: %q..%q", left[0].MessageID, left[2].MessageID)
	}
}

func TestWorkspacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)
	q.Push(ctx, "T1", msg("a"))
	q.Push(ctx, "T2", msg("b"))

	q.Ack(ctx, "T1", []string{"a", "b"})

	other, _ := q.Lease(ctx, "T2", 10)
	if len(other) != 1 {
		t.Fatalf("T2 queue affected by T1 ack: %+v", other)
	}
}
