package repository

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// KVStore is the key-value contract shared by every backend.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

type kvObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
	ObserveDBQuery(label string, duration time.Duration)
}

// ObservedKVRepository reports hit, miss and write latency for another store.
type ObservedKVRepository struct {
	next     KVStore
	observer kvObserver
}

// NewObservedKVRepository wraps next. A nil observer disables reporting.
func NewObservedKVRepository(next KVStore, observer kvObserver) *ObservedKVRepository {
	return &ObservedKVRepository{next: next, observer: observer}
}

func (r *ObservedKVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := r.next.Get(ctx, key)
	if r.observer != nil && (err == nil || errors.Is(err, appErrors.ErrCacheMiss)) {
		r.observer.RecordCacheOperation(err == nil, time.Since(start))
	}
	return value, err
}

func (r *ObservedKVRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := r.next.Set(ctx, key, value, ttl)
	if r.observer != nil && err == nil {
		r.observer.ObserveCacheWrite(time.Since(start))
	}
	return err
}

func (r *ObservedKVRepository) Delete(ctx context.Context, key string) error {
	return r.next.Delete(ctx, key)
}

func (r *ObservedKVRepository) PurgeExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	removed, err := r.next.PurgeExpired(ctx)
	if r.observer != nil && err == nil {
		r.observer.ObserveDBQuery("kv_purge_expired", time.Since(start))
	}
	return removed, err
}

func (r *ObservedKVRepository) Close() error {
	return r.next.Close()
}
