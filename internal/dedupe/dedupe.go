package dedupe

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Tracker remembers which photo paths were already handed to the pipeline
type Tracker interface {
	// Seen reports whether path was recorded and not forgotten since
	Seen(ctx context.Context, path string) (bool, error)

	// Record marks path as processed and returns how many times it was recorded
	Record(ctx context.Context, path string) (int, error)

	// Forget removes path so a later appearance is treated as a new photo
	Forget(ctx context.Context, path string) error
}

// DefaultSize bounds the in-memory processed set
const DefaultSize = 4096

// Pruner is implemented by trackers that can shed paths no longer in the
// watch folder. present reports whether a path is still there.
type Pruner interface {
	Prune(present func(path string) bool) int
}

// MemoryTracker is an LRU of processed paths holding about size entries.
// Only paths absent from the watch folder are evicted; while more than size
// processed photos are present the cache grows to keep all of them.
type MemoryTracker struct {
	mu       sync.Mutex
	limit    int
	capacity int
	cache    *lru.Cache[string, int]
}

// NewMemoryTracker creates a tracker that prunes down to size paths
func NewMemoryTracker(size int) (*MemoryTracker, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create processed set: %w", err)
	}
	return &MemoryTracker{limit: size, capacity: size, cache: cache}, nil
}

// Seen implements Tracker
func (t *MemoryTracker) Seen(ctx context.Context, path string) (bool, error) {
	_, ok := t.cache.Get(path)
	return ok, nil
}

// Record implements Tracker
func (t *MemoryTracker) Record(ctx context.Context, path string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	count, _ := t.cache.Get(path)
	count++
	t.add(path, count)
	return count, nil
}

// add stores path without letting the LRU evict anything. Callers hold mu.
func (t *MemoryTracker) add(path string, count int) {
	if !t.cache.Contains(path) && t.cache.Len() >= t.capacity {
		t.capacity *= 2
		t.cache.Resize(t.capacity)
	}
	t.cache.Add(path, count)
}

func (t *MemoryTracker) remember(path string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(path, count)
}

// Forget implements Tracker
func (t *MemoryTracker) Forget(ctx context.Context, path string) error {
	t.cache.Remove(path)
	return nil
}

// Prune evicts the least recently used absent paths until the set is back
// within its size, and returns how many were evicted.
func (t *MemoryTracker) Prune(present func(path string) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	if t.cache.Len() > t.limit {
		for _, path := range t.cache.Keys() {
			if t.cache.Len() <= t.limit {
				break
			}
			if !present(path) {
				t.cache.Remove(path)
				evicted++
			}
		}
	}
	if t.capacity > t.limit && t.cache.Len() <= t.capacity/4 {
		t.capacity = max(t.limit, t.cache.Len()*2)
		t.cache.Resize(t.capacity)
	}
	return evicted
}

// Len returns the number of remembered paths
func (t *MemoryTracker) Len() int {
	return t.cache.Len()
}

// Layered fronts a durable tracker with an in-memory one so repeated
// lookups for files left in the watch folder do not hit the database.
type Layered struct {
	mem     *MemoryTracker
	durable Tracker
}

// NewLayered creates a layered tracker
func NewLayered(mem *MemoryTracker, durable Tracker) *Layered {
	return &Layered{mem: mem, durable: durable}
}

// Seen implements Tracker
func (l *Layered) Seen(ctx context.Context, path string) (bool, error) {
	if ok, _ := l.mem.Seen(ctx, path); ok {
		return true, nil
	}
	ok, err := l.durable.Seen(ctx, path)
	if err != nil {
		return false, err
	}
	if ok {
		l.mem.remember(path, 1)
	}
	return ok, nil
}

// Record implements Tracker
func (l *Layered) Record(ctx context.Context, path string) (int, error) {
	count, err := l.durable.Record(ctx, path)
	if err != nil {
		return 0, err
	}
	l.mem.remember(path, count)
	return count, nil
}

// Forget implements Tracker
func (l *Layered) Forget(ctx context.Context, path string) error {
	l.mem.cache.Remove(path)
	return l.durable.Forget(ctx, path)
}

// Prune sheds in-memory entries only; the ledger keeps every path
func (l *Layered) Prune(present func(path string) bool) int {
	return l.mem.Prune(present)
}
