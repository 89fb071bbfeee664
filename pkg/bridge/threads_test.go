package bridge

import (
	"fmt"
	"testing"
	"time"
)

func TestThreadIDStable(t *testing.T) {
	r := NewThreadRegistry(10)
	a := r.GetOrCreate("C1", "100.1")
	b := r.GetOrCreate("C1", "100.1")
	if a != b {
		t.Fatalf("same conversation minted two ids: %s %s", a, b)
	}
	c := r.GetOrCreate("C1", "100.2")
	if c == a {
		t.Fatal("different conversations share an id")
	}
}

func TestThreadResolve(t *testing.T) {
	r := NewThreadRegistry(10)
	id := r.GetOrCreate("C1", "100.1")

	channel, ts, ok := r.Resolve(id)
	if !ok || channel != "C1" || ts != "100.1" {
		t.Fatalf("resolve = (%q, %q, %v)", channel, ts, ok)
	}
	if _, _, ok := r.Resolve("nope"); ok {
		t.Fatal("unknown id resolved")
	}
}

func TestThreadEvictionBatch(t *testing.T) {
	clock := time.Now()
	r := NewThreadRegistry(100)
	r.now = func() time.Time { return clock }

	for i := 0; i < 100; i++ {
		clock = clock.Add(time.Second)
		r.GetOrCreate("C1", fmt.Sprintf("%d.0", i))
	}
	if r.Len() != 100 {
		t.Fatalf("len = %d, want 100", r.Len())
	}

	oldest := r.GetOrCreate("C1", "0.0") // refreshes access, not creation
	newest := r.GetOrCreate("C1", "99.0")

	// The next new insert evicts the oldest tenth by creation order, not one
	// entry at a time.
	clock = clock.Add(time.Second)
	r.GetOrCreate("C1", "new.0")
	if r.Len() != 91 {
		t.Fatalf("len after eviction = %d, want 91", r.Len())
	}

	// Eviction is by creation order: the oldest goes even though it was just
	// accessed, the newest original stays.
	if _, _, ok := r.Resolve(oldest); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, _, ok := r.Resolve(newest); !ok {
		t.Fatal("newest original entry evicted")
	}
}
