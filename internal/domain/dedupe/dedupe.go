// Package dedupe tracks upload idempotency keys so a resubmitted results
// file can be rejected before it reaches the event log.
package dedupe

import (
	"container/list"
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// Deduper records seen upload keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the upload can be retried, used when an upload
	// was recorded but failed before its rows were appended.
	Unrecord(ctx context.Context, key string)

	// Seed records keys without reporting duplicates, used to rebuild state
	// from the event log at startup.
	Seed(ctx context.Context, keys ...string)

	Size() int
}

// Key derives the idempotency key of an upload from its filename. The key
// ignores directories and letter case, since the event date lives in the
// filename itself.
func Key(filename string) string {
	return strings.ToLower(filepath.Base(strings.TrimSpace(filename)))
}

// inMemoryDeduper keeps keys in a map with insertion order in a list.
// When bounded, the oldest key is evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int // 0 or negative means unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.recordLocked(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Seed(_ context.Context, keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := d.seen[k]; !ok {
			d.recordLocked(k)
		}
	}
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// recordLocked must be called with d.mu held.
func (d *inMemoryDeduper) recordLocked(key string) {
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[key] = d.order.PushBack(key)
}
