package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/provider"
	"github.com/noah-isme/chronos/internal/repository"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

var fixedNow = time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC)

type modifyCall struct {
	ID      string
	Changes models.FieldChanges
	Scope   models.RecurrenceScope
}

type deleteCall struct {
	ID    string
	Scope models.RecurrenceScope
}

// fakeAdapter is an in-memory calendar. Soft adapters keep deleted events so they can be restored.
type fakeAdapter struct {
	mu        sync.Mutex
	id        models.ProviderID
	soft      bool
	seq       int
	events    map[string]models.CalendarEvent
	cancelled map[string]models.CalendarEvent

	creates  []models.EventDraft
	deletes  []deleteCall
	modifies []modifyCall
	restores []string

	createDelay time.Duration

	createErr  error
	listErr    error
	deleteErr  error
	modifyErr  error
	restoreErr error
}

func newFakeAdapter(id models.ProviderID, soft bool) *fakeAdapter {
	return &fakeAdapter{
		id:        id,
		soft:      soft,
		events:    make(map[string]models.CalendarEvent),
		cancelled: make(map[string]models.CalendarEvent),
	}
}

func (f *fakeAdapter) ID() models.ProviderID { return f.id }

func (f *fakeAdapter) SupportsSoftDelete() bool { return f.soft }

func (f *fakeAdapter) seed(ev models.CalendarEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ProviderID = f.id
	f.events[ev.ID] = ev
}

func (f *fakeAdapter) event(id string) (models.CalendarEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	return ev, ok
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeAdapter) setCreateErr(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

func (f *fakeAdapter) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeAdapter) setCreateDelay(d time.Duration) {
	f.mu.Lock()
	f.createDelay = d
	f.mu.Unlock()
}

func (f *fakeAdapter) CreateEvent(ctx context.Context, draft models.EventDraft) (string, error) {
	f.mu.Lock()
	delay := f.createDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, draft)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	id := fmt.Sprintf("%s-%d", f.id, f.seq)
	f.events[id] = models.CalendarEvent{
		ID:             id,
		Title:          draft.Title,
		Start:          draft.Start,
		End:            draft.End,
		Timezone:       draft.Timezone,
		Description:    draft.Description,
		Location:       draft.Location,
		RecurrenceRule: draft.RecurrenceRule,
		ProviderID:     f.id,
	}
	return id, nil
}

func (f *fakeAdapter) ListEvents(ctx context.Context, maxResults int, since time.Time) ([]models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.CalendarEvent, 0, len(f.events))
	for _, ev := range f.events {
		if ev.End.After(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (f *fakeAdapter) GetEvent(ctx context.Context, id string) (models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return models.CalendarEvent{}, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return ev, nil
}

func (f *fakeAdapter) DeleteEvent(ctx context.Context, id string, scope models.RecurrenceScope) (models.DeleteOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{ID: id, Scope: scope})
	if f.deleteErr != nil {
		return models.DeleteOutcome{}, f.deleteErr
	}
	ev, ok := f.events[id]
	if !ok {
		return models.DeleteOutcome{}, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	if scope == models.ScopeFollowing && ev.SeriesID != "" {
		master := f.events[ev.SeriesID]
		prior := master.RecurrenceRule
		master.RecurrenceRule = "FREQ=WEEKLY;COUNT=1"
		f.events[ev.SeriesID] = master
		delete(f.events, id)
		return models.DeleteOutcome{TargetID: ev.SeriesID, PriorRecurrence: prior}, nil
	}
	target := id
	if scope == models.ScopeAll && ev.SeriesID != "" {
		target = ev.SeriesID
		ev = f.events[target]
	}
	delete(f.events, target)
	if f.soft {
		f.cancelled[target] = ev
	}
	return models.DeleteOutcome{SoftDeleted: f.soft, TargetID: target}, nil
}

func (f *fakeAdapter) RestoreEvent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores = append(f.restores, id)
	if f.restoreErr != nil {
		return f.restoreErr
	}
	ev, ok := f.cancelled[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	delete(f.cancelled, id)
	f.events[id] = ev
	return nil
}

func (f *fakeAdapter) RestoreRecurrence(ctx context.Context, masterID, prior string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	master, ok := f.events[masterID]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "series not found")
	}
	master.RecurrenceRule = prior
	f.events[masterID] = master
	return nil
}

func (f *fakeAdapter) ModifyEvent(ctx context.Context, id string, changes models.FieldChanges, scope models.RecurrenceScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifies = append(f.modifies, modifyCall{ID: id, Changes: changes, Scope: scope})
	if f.modifyErr != nil {
		return f.modifyErr
	}
	ev, ok := f.events[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	f.events[id] = changes.Apply(ev)
	return nil
}

var _ provider.Adapter = (*fakeAdapter)(nil)

func newMemoryStateStore() *StateStore {
	return NewStateStore(repository.NewMemoryKVRepository(), nil)
}

type executorFixture struct {
	store   *StateStore
	exec    *CommandExecutor
	ledger  *ActionLedger
	dedup   *DedupGuard
	prefs   *PreferencesService
	google  *fakeAdapter
	outlook *fakeAdapter
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	store := newMemoryStateStore()
	google := newFakeAdapter(models.ProviderGoogle, true)
	outlook := newFakeAdapter(models.ProviderOutlook, false)
	registry := provider.NewRegistry(google, outlook)
	dedup := NewDedupGuard(store, 24*time.Hour)
	ledger := NewActionLedger(store, registry, dedup, nil, LedgerConfig{MaxHistory: 50, ReminderMinutes: 30}, nil)
	prefs := NewPreferencesService(store, models.Preferences{
		Providers:              []models.ProviderID{models.ProviderGoogle},
		Timezone:               "UTC",
		DefaultDurationMinutes: 60,
		ReminderMinutes:        30,
	}, nil)
	exec := NewCommandExecutor(registry, dedup, ledger, prefs, prefs, nil, ExecutorConfig{ListMaxResults: 50, ReminderMinutes: 30}, nil)
	exec.now = func() time.Time { return fixedNow }
	return &executorFixture{
		store:   store,
		exec:    exec,
		ledger:  ledger,
		dedup:   dedup,
		prefs:   prefs,
		google:  google,
		outlook: outlook,
	}
}

func bothProviders() []models.ProviderID {
	return []models.ProviderID{models.ProviderGoogle, models.ProviderOutlook}
}

func confirmedDraft(title string, start time.Time, minutes int) models.EventDraft {
	return models.EventDraft{
		Title:               title,
		Start:               start,
		End:                 start.Add(time.Duration(minutes) * time.Minute),
		Timezone:            "UTC",
		ReminderLeadMinutes: 30,
	}
}

func createIntent(drafts ...models.EventDraft) models.ParsedIntent {
	if len(drafts) == 1 {
		d := drafts[0]
		return models.ParsedIntent{Type: models.IntentCreate, Confidence: 0.9, Draft: &d}
	}
	return models.ParsedIntent{Type: models.IntentCreateMultiple, Confidence: 0.9, Drafts: drafts}
}

func calendarEvent(id, title string, start time.Time, minutes int) models.CalendarEvent {
	return models.CalendarEvent{
		ID:       id,
		Title:    title,
		Start:    start,
		End:      start.Add(time.Duration(minutes) * time.Minute),
		Timezone: "UTC",
	}
}
