package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burrowlabs/burrow/pkg/logger"
)

// Thread maps a short stable handle onto a platform conversation so the
// automation process never has to carry raw channel/timestamp pairs across
// turns.
type Thread struct {
	ID         string
	Channel    string
	ThreadTS   string
	CreatedAt  time.Time
	LastAccess time.Time
}

// ThreadRegistry is written only by the poll loop; the loopback API resolves
// thread ids concurrently, so reads take the lock too.
type ThreadRegistry struct {
	mu      sync.RWMutex
	maxSize int
	byID    map[string]*Thread
	byKey   map[string]*Thread // channel + ":" + thread_ts
	now     func() time.Time
}

func NewThreadRegistry(maxSize int) *ThreadRegistry {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ThreadRegistry{
		maxSize: maxSize,
		byID:    make(map[string]*Thread),
		byKey:   make(map[string]*Thread),
		now:     time.Now,
	}
}

func threadKey(channel, threadTS string) string {
	return channel + ":" + threadTS
}

// GetOrCreate returns the thread id for a conversation, minting one on first
// sight. At capacity it batch-evicts the oldest tenth by creation order
// rather than churning one entry per insert.
func (r *ThreadRegistry) GetOrCreate(channel, threadTS string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := threadKey(channel, threadTS)
	if t, ok := r.byKey[key]; ok {
		t.LastAccess = r.now()
		return t.ID
	}

	if len(r.byID) >= r.maxSize {
		r.evictOldest()
	}

	now := r.now()
	t := &Thread{
		ID:         uuid.NewString(),
		Channel:    channel,
		ThreadTS:   threadTS,
		CreatedAt:  now,
		LastAccess: now,
	}
	r.byID[t.ID] = t
	r.byKey[key] = t
	return t.ID
}

// Resolve returns the conversation behind a thread id.
func (r *ThreadRegistry) Resolve(threadID string) (channel, threadTS string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, found := r.byID[threadID]
	if !found {
		return "", "", false
	}
	return t.Channel, t.ThreadTS, true
}

// Len reports registered threads.
func (r *ThreadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// evictOldest removes ~10% of entries, oldest creation first. Caller holds
// the write lock.
func (r *ThreadRegistry) evictOldest() {
	count := len(r.byID) / 10
	if count < 1 {
		count = 1
	}

	all := make([]*Thread, 0, len(r.byID))
	for _, t := range r.byID {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	for _, t := range all[:count] {
		delete(r.byID, t.ID)
		delete(r.byKey, threadKey(t.Channel, t.ThreadTS))
	}
	logger.DebugCF("bridge", "thread registry evicted", map[string]interface{}{
		"evicted":   count,
		"remaining": len(r.byID),
	})
}
