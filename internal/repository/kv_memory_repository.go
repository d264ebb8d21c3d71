package repository

import (
	"context"
	"sync"
	"time"

	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKVRepository keeps entries in process memory. It backs tests and the CLI when no
// durable store is configured.
type MemoryKVRepository struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryKVRepository constructs an empty in-memory store.
func NewMemoryKVRepository() *MemoryKVRepository {
	return &MemoryKVRepository{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns the stored value or ErrCacheMiss when absent or expired.
func (r *MemoryKVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok || r.expired(entry) {
		return nil, appErrors.ErrCacheMiss
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores value under key. A zero ttl keeps the entry until deleted.
func (r *MemoryKVRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are not an error.
func (r *MemoryKVRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// PurgeExpired drops expired entries and reports how many were removed.
func (r *MemoryKVRepository) PurgeExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, entry := range r.entries {
		if r.expired(entry) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (r *MemoryKVRepository) Close() error { return nil }

func (r *MemoryKVRepository) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt)
}
