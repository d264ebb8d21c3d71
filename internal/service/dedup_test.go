package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/repository"
)

func TestRequestIDIsStableAndFieldSensitive(t *testing.T) {
	start := time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)
	draft := confirmedDraft("Dentist", start, 30)

	id := RequestID(draft)
	assert.Len(t, id, 64)
	assert.Equal(t, id, RequestID(draft))

	moved := draft
	moved.Start = moved.Start.Add(time.Hour)
	assert.NotEqual(t, id, RequestID(moved))

	renamed := draft
	renamed.Title = "Dentist appointment"
	assert.NotEqual(t, id, RequestID(renamed))

	zoned := draft
	zoned.Timezone = "Asia/Tokyo"
	assert.NotEqual(t, id, RequestID(zoned))
}

func TestDedupGuardRememberLookupForget(t *testing.T) {
	guard := NewDedupGuard(newMemoryStateStore(), time.Hour)
	ctx := context.Background()

	_, ok, err := guard.Lookup(ctx, "req", models.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Remember(ctx, "req", models.ProviderGoogle, "evt-1"))
	external, ok, err := guard.Lookup(ctx, "req", models.ProviderGoogle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "evt-1", external)

	_, ok, err = guard.Lookup(ctx, "req", models.ProviderOutlook)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Forget(ctx, "req", models.ProviderGoogle))
	require.NoError(t, guard.Forget(ctx, "req", models.ProviderGoogle))
	_, ok, err = guard.Lookup(ctx, "req", models.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDedupGuardSubmitCreatesOncePerKey(t *testing.T) {
	guard := NewDedupGuard(newMemoryStateStore(), time.Hour)
	ctx := context.Background()

	var calls int32
	entered := make(chan struct{})
	release := make(chan struct{})
	create := func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
		}
		<-release
		return "evt-1", nil
	}

	subs := make([]Submission, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sub, err := guard.Submit(ctx, "req", models.ProviderGoogle, create)
		assert.NoError(t, err)
		subs[0] = sub
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		sub, err := guard.Submit(ctx, "req", models.ProviderGoogle, create)
		assert.NoError(t, err)
		subs[1] = sub
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, Submission{ExternalID: "evt-1"}, subs[0])
	assert.Equal(t, Submission{ExternalID: "evt-1", Duplicate: true}, subs[1])

	again, err := guard.Submit(ctx, "req", models.ProviderGoogle, create)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDedupGuardSubmitFailureLeavesKeyUnclaimed(t *testing.T) {
	guard := NewDedupGuard(newMemoryStateStore(), time.Hour)
	ctx := context.Background()
	boom := errors.New("provider down")

	_, err := guard.Submit(ctx, "req", models.ProviderOutlook, func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	_, ok, err := guard.Lookup(ctx, "req", models.ProviderOutlook)
	require.NoError(t, err)
	assert.False(t, ok)

	sub, err := guard.Submit(ctx, "req", models.ProviderOutlook, func(context.Context) (string, error) {
		return "evt-2", nil
	})
	require.NoError(t, err)
	assert.Equal(t, Submission{ExternalID: "evt-2"}, sub)
}

func TestStateStoreRoundTripAndCorruption(t *testing.T) {
	kv := repository.NewMemoryKVRepository()
	store := NewStateStore(kv, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "doc", map[string]int{"a": 1}, 0))
	var doc map[string]int
	ok, err := store.Load(ctx, "doc", &doc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, doc["a"])

	require.NoError(t, kv.Set(ctx, "broken", []byte("{not json"), 0))
	ok, err = store.Load(ctx, "broken", &doc)
	assert.Error(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Remove(ctx, "doc"))
	ok, err = store.Load(ctx, "doc", &doc)
	require.NoError(t, err)
	assert.False(t, ok)
}
