package bridge

import (
	"testing"
	"time"
)

func TestDedupSeenWithinTTL(t *testing.T) {
	d := NewDedupCache(time.Hour)
	if d.Seen("m1") {
		t.Fatal("unknown id reported seen")
	}
	d.Record("m1")
	if !d.Seen("m1") {
		t.Fatal("recorded id not reported seen")
	}
	if d.Seen("m2") {
		t.Fatal("other id reported seen")
	}
}

func TestDedupExpiry(t *testing.T) {
	clock := time.Now()
	d := NewDedupCache(time.Minute)
	d.now = func() time.Time { return clock }

	d.Record("m1")
	clock = clock.Add(30 * time.Second)
	if !d.Seen("m1") {
		t.Fatal("id expired before TTL")
	}

	clock = clock.Add(31 * time.Second)
	if d.Seen("m1") {
		t.Fatal("id still seen after TTL")
	}
	// Expired entries may be reprocessed and re-recorded.
	d.Record("m1")
	if !d.Seen("m1") {
		t.Fatal("re-recorded id not seen")
	}
}

func TestDedupSweep(t *testing.T) {
	clock := time.Now()
	d := NewDedupCache(time.Minute)
	d.now = func() time.Time { return clock }

	d.Record("m1")
	d.Record("m2")
	clock = clock.Add(2 * time.Minute)
	d.Record("m3")

	d.Sweep()
	if d.Len() != 1 {
		t.Fatalf("after sweep len = %d, want 1", d.Len())
	}
	if !d.Seen("m3") {
		t.Fatal("live entry swept")
	}
}
