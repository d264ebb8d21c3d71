package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/chronos/internal/models"
)

// RequestID derives the idempotency key for a draft from its title, start, end and timezone.
func RequestID(draft models.EventDraft) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s",
		draft.Title,
		draft.Start.Format(time.RFC3339),
		draft.End.Format(time.RFC3339),
		draft.Timezone,
	)))
	return hex.EncodeToString(sum[:])
}

type dedupEntry struct {
	ExternalID string    `json:"externalId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DedupGuard remembers which providers already accepted a request id.
type DedupGuard struct {
	store  *StateStore
	window time.Duration
	now    func() time.Time
	flight singleflight.Group
}

// NewDedupGuard constructs the guard. Entries expire after window.
func NewDedupGuard(store *StateStore, window time.Duration) *DedupGuard {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &DedupGuard{store: store, window: window, now: time.Now}
}

func dedupKey(requestID string, providerID models.ProviderID) string {
	return fmt.Sprintf("dedup:%s:%s", requestID, providerID)
}

// Lookup returns the external id recorded for the request on providerID, if any.
func (g *DedupGuard) Lookup(ctx context.Context, requestID string, providerID models.ProviderID) (string, bool, error) {
	var entry dedupEntry
	ok, err := g.store.Load(ctx, dedupKey(requestID, providerID), &entry)
	if err != nil || !ok {
		return "", false, err
	}
	return entry.ExternalID, true, nil
}

// Remember records a successful submission.
func (g *DedupGuard) Remember(ctx context.Context, requestID string, providerID models.ProviderID, externalID string) error {
	return g.store.Save(ctx, dedupKey(requestID, providerID), dedupEntry{ExternalID: externalID, CreatedAt: g.now().UTC()}, g.window)
}

// Forget drops the entry so the draft can be submitted again, e.g. after undoing it.
func (g *DedupGuard) Forget(ctx context.Context, requestID string, providerID models.ProviderID) error {
	return g.store.Remove(ctx, dedupKey(requestID, providerID))
}

// Submission is the result of a guarded create.
type Submission struct {
	ExternalID string
	Duplicate  bool
}

// Submit calls create unless providerID already accepted requestID. Concurrent callers
// for the same key wait on the create in flight and report its event as a duplicate.
// A failed create leaves the key unclaimed.
func (g *DedupGuard) Submit(ctx context.Context, requestID string, providerID models.ProviderID, create func(context.Context) (string, error)) (Submission, error) {
	ran := false
	v, err, _ := g.flight.Do(dedupKey(requestID, providerID), func() (interface{}, error) {
		ran = true
		existing, found, err := g.Lookup(ctx, requestID, providerID)
		if err != nil {
			g.store.logger.Sugar().Warnw("dedup lookup failed", "provider", providerID, "error", err)
		}
		if found {
			return Submission{ExternalID: existing, Duplicate: true}, nil
		}
		externalID, err := create(ctx)
		if err != nil {
			return nil, err
		}
		if err := g.Remember(ctx, requestID, providerID, externalID); err != nil {
			g.store.logger.Sugar().Warnw("dedup remember failed", "provider", providerID, "error", err)
		}
		return Submission{ExternalID: externalID}, nil
	})
	if err != nil {
		return Submission{}, err
	}
	sub := v.(Submission)
	if !ran {
		sub.Duplicate = true
	}
	return sub, nil
}
