package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StateStore keeps JSON documents in the durable key-value store.
type StateStore struct {
	kv     kvStore
	logger *zap.Logger
}

// NewStateStore constructs a state store.
func NewStateStore(kv kvStore, logger *zap.Logger) *StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{kv: kv, logger: logger}
}

// Load decodes the document at key into dest. It returns false when the key is absent.
func (s *StateStore) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("state load failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("state document is corrupt", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Save encodes value and stores it under key. A zero ttl keeps it until deleted.
func (s *StateStore) Save(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Warn("state save failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *StateStore) Remove(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("state delete failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
