package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/provider"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// LedgerKey is the key-value entry holding the undo and redo stacks.
const LedgerKey = "chronos_action_history"

type adapterSource interface {
	Get(id models.ProviderID) (provider.Adapter, error)
}

type ledgerObserver interface {
	ObserveLedgerOperation(operation, outcome string)
}

// LedgerConfig tunes the ledger.
type LedgerConfig struct {
	MaxHistory      int
	ReminderMinutes int
}

// ActionLedger keeps reversible user actions and replays them across providers. One
// operation runs at a time, provider calls included.
type ActionLedger struct {
	mu       sync.Mutex
	store    *StateStore
	adapters adapterSource
	dedup    *DedupGuard
	metrics  ledgerObserver
	logger   *zap.Logger
	max      int
	reminder int
	state    models.LedgerState
	loaded   bool
}

// NewActionLedger constructs the ledger. dedup and metrics may be nil.
func NewActionLedger(store *StateStore, adapters adapterSource, dedup *DedupGuard, metrics ledgerObserver, cfg LedgerConfig, logger *zap.Logger) *ActionLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 50
	}
	if cfg.ReminderMinutes < 0 {
		cfg.ReminderMinutes = 0
	}
	return &ActionLedger{
		store:    store,
		adapters: adapters,
		dedup:    dedup,
		metrics:  metrics,
		logger:   logger,
		max:      cfg.MaxHistory,
		reminder: cfg.ReminderMinutes,
	}
}

// Load reads the persisted stacks, replacing whatever is in memory.
func (l *ActionLedger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

func (l *ActionLedger) load(ctx context.Context) error {
	var state models.LedgerState
	if _, err := l.store.Load(ctx, LedgerKey, &state); err != nil {
		return err
	}
	l.state = state
	l.trim()
	l.loaded = true
	return nil
}

func (l *ActionLedger) ensureLoaded(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	return l.load(ctx)
}

func (l *ActionLedger) persist(ctx context.Context) error {
	return l.store.Save(ctx, LedgerKey, l.state, 0)
}

func (l *ActionLedger) trim() {
	if over := len(l.state.UndoStack) - l.max; over > 0 {
		l.state.UndoStack = append([]models.ActionRecord(nil), l.state.UndoStack[over:]...)
	}
	if over := len(l.state.RedoStack) - l.max; over > 0 {
		l.state.RedoStack = append([]models.ActionRecord(nil), l.state.RedoStack[over:]...)
	}
}

// Record appends rec to the undo stack and clears the redo stack. The oldest entry is
// evicted once the stack is full.
func (l *ActionLedger) Record(ctx context.Context, rec models.ActionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}
	l.state.UndoStack = append(l.state.UndoStack, rec)
	l.state.RedoStack = nil
	l.trim()
	l.observe("record", nil)
	return l.persist(ctx)
}

// History returns the undo stack, oldest first.
func (l *ActionLedger) History() []models.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ActionRecord, len(l.state.UndoStack))
	copy(out, l.state.UndoStack)
	return out
}

// State returns a copy of both stacks.
func (l *ActionLedger) State() models.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.LedgerState{
		UndoStack: append([]models.ActionRecord(nil), l.state.UndoStack...),
		RedoStack: append([]models.ActionRecord(nil), l.state.RedoStack...),
	}
}

// Clear empties both stacks.
func (l *ActionLedger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = models.LedgerState{}
	l.loaded = true
	l.observe("clear", nil)
	return l.persist(ctx)
}

// Undo reverses the most recent action. When any provider call fails the record stays on
// the undo stack and a partial failure is returned.
func (l *ActionLedger) Undo(ctx context.Context) (models.ActionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx); err != nil {
		return models.ActionRecord{}, err
	}
	n := len(l.state.UndoStack)
	if n == 0 {
		return models.ActionRecord{}, appErrors.ErrNothingToUndo
	}
	rec := l.state.UndoStack[n-1]

	var errs []error
	switch rec.ActionType {
	case models.ActionCreate:
		errs = l.undoCreate(ctx, &rec)
	case models.ActionDelete:
		errs = l.undoDelete(ctx, &rec)
	case models.ActionModify:
		errs = l.applyModify(ctx, rec, true)
	}
	if len(errs) > 0 {
		// Keep progress so a second undo does not repeat finished sub-operations.
		l.state.UndoStack[n-1] = rec
		if err := l.persist(ctx); err != nil {
			l.logger.Sugar().Warnw("persist ledger after partial undo", "error", err)
		}
		l.observe("undo", appErrors.ErrPartialFailure)
		return rec, partialFailure("undo", errs)
	}

	l.state.UndoStack = l.state.UndoStack[:n-1]
	l.state.RedoStack = append(l.state.RedoStack, rec)
	l.trim()
	l.observe("undo", nil)
	l.logger.Sugar().Infow("action undone", "action_id", rec.ID, "type", rec.ActionType)
	return rec, l.persist(ctx)
}

// Redo re-applies the most recently undone action.
func (l *ActionLedger) Redo(ctx context.Context) (models.ActionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx); err != nil {
		return models.ActionRecord{}, err
	}
	n := len(l.state.RedoStack)
	if n == 0 {
		return models.ActionRecord{}, appErrors.ErrNothingToRedo
	}
	rec := l.state.RedoStack[n-1]

	var errs []error
	switch rec.ActionType {
	case models.ActionCreate:
		errs = l.redoCreate(ctx, &rec)
	case models.ActionDelete:
		errs = l.redoDelete(ctx, &rec)
	case models.ActionModify:
		errs = l.applyModify(ctx, rec, false)
	}
	if len(errs) > 0 {
		l.state.RedoStack[n-1] = rec
		if err := l.persist(ctx); err != nil {
			l.logger.Sugar().Warnw("persist ledger after partial redo", "error", err)
		}
		l.observe("redo", appErrors.ErrPartialFailure)
		return rec, partialFailure("redo", errs)
	}

	l.state.RedoStack = l.state.RedoStack[:n-1]
	l.state.UndoStack = append(l.state.UndoStack, rec)
	l.trim()
	l.observe("redo", nil)
	l.logger.Sugar().Infow("action redone", "action_id", rec.ID, "type", rec.ActionType)
	return rec, l.persist(ctx)
}

// undoCreate deletes every created event. Events that are already gone count as deleted.
// A deleted ref loses its external id so a retried undo skips it.
func (l *ActionLedger) undoCreate(ctx context.Context, rec *models.ActionRecord) []error {
	var errs []error
	for i := range rec.CreatedEvents {
		ref := &rec.CreatedEvents[i]
		if ref.ExternalID == "" {
			continue
		}
		adapter, err := l.adapters.Get(ref.ProviderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scope := models.RecurrenceScope("")
		if ref.Snapshot.RecurrenceRule != "" {
			scope = models.ScopeAll
		}
		if _, err := adapter.DeleteEvent(ctx, ref.ExternalID, scope); err != nil && !errors.Is(err, appErrors.ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s %s: %w", ref.ProviderID, ref.ExternalID, err))
			continue
		}
		if l.dedup != nil && ref.RequestID != "" {
			if err := l.dedup.Forget(ctx, ref.RequestID, ref.ProviderID); err != nil {
				l.logger.Sugar().Warnw("forget dedup entry", "provider", ref.ProviderID, "error", err)
			}
		}
		ref.ExternalID = ""
	}
	return errs
}

// redoCreate recreates each event from its snapshot and records the new ids.
func (l *ActionLedger) redoCreate(ctx context.Context, rec *models.ActionRecord) []error {
	var errs []error
	for i := range rec.CreatedEvents {
		ref := &rec.CreatedEvents[i]
		if ref.ExternalID != "" {
			continue
		}
		adapter, err := l.adapters.Get(ref.ProviderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		id, err := adapter.CreateEvent(ctx, ref.Snapshot.Draft(l.reminder))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref.ProviderID, err))
			continue
		}
		ref.ExternalID = id
		ref.Snapshot.ID = id
		if l.dedup != nil && ref.RequestID != "" {
			if err := l.dedup.Remember(ctx, ref.RequestID, ref.ProviderID, id); err != nil {
				l.logger.Sugar().Warnw("remember dedup entry", "provider", ref.ProviderID, "error", err)
			}
		}
	}
	return errs
}

// undoDelete puts back every deleted event: a truncated series gets its recurrence back,
// a soft delete is restored and a hard delete is recreated from the snapshot.
func (l *ActionLedger) undoDelete(ctx context.Context, rec *models.ActionRecord) []error {
	var errs []error
	for i := range rec.DeletedEvents {
		ref := &rec.DeletedEvents[i]
		if ref.Restored {
			continue
		}
		adapter, err := l.adapters.Get(ref.ProviderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		target := firstID(ref.TargetID, ref.ExternalID)
		switch {
		case ref.PriorRecurrence != "":
			err = adapter.RestoreRecurrence(ctx, target, ref.PriorRecurrence)
		case ref.SoftDeleted:
			err = adapter.RestoreEvent(ctx, target)
		default:
			var id string
			id, err = adapter.CreateEvent(ctx, ref.Snapshot.Draft(l.reminder))
			if err == nil {
				ref.ExternalID = id
				ref.TargetID = id
				ref.Snapshot.ID = id
				ref.Snapshot.SeriesID = ""
				ref.Scope = ""
				if ref.Snapshot.RecurrenceRule != "" {
					ref.Scope = models.ScopeAll
				}
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", ref.ProviderID, target, err))
			continue
		}
		ref.Restored = true
	}
	return errs
}

// redoDelete deletes the events again with their recorded scope.
func (l *ActionLedger) redoDelete(ctx context.Context, rec *models.ActionRecord) []error {
	var errs []error
	for i := range rec.DeletedEvents {
		ref := &rec.DeletedEvents[i]
		if !ref.Restored {
			continue
		}
		adapter, err := l.adapters.Get(ref.ProviderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcome, err := adapter.DeleteEvent(ctx, ref.ExternalID, ref.Scope)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", ref.ProviderID, ref.ExternalID, err))
			continue
		}
		ref.SoftDeleted = outcome.SoftDeleted
		ref.TargetID = outcome.TargetID
		ref.PriorRecurrence = outcome.PriorRecurrence
		ref.Restored = false
	}
	return errs
}

// applyModify writes the before snapshot (undo) or the after snapshot (redo) back.
func (l *ActionLedger) applyModify(ctx context.Context, rec models.ActionRecord, undo bool) []error {
	var errs []error
	for _, ref := range rec.ModifiedEvents {
		adapter, err := l.adapters.Get(ref.ProviderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		want, current := ref.After, ref.Before
		if undo {
			want, current = ref.Before, ref.After
		}
		scope := ref.Scope
		if scope == "" && ref.Before.IsRecurring() {
			scope = models.ScopeAll
		}
		changes := models.ChangesFromSnapshot(want, current)
		if err := adapter.ModifyEvent(ctx, ref.ExternalID, changes, scope); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", ref.ProviderID, ref.ExternalID, err))
		}
	}
	return errs
}

func (l *ActionLedger) observe(op string, err error) {
	if l.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "partial_failure"
	}
	l.metrics.ObserveLedgerOperation(op, outcome)
}

func partialFailure(op string, errs []error) error {
	return appErrors.Wrap(errors.Join(errs...), appErrors.ErrPartialFailure.Code, appErrors.ErrPartialFailure.Status,
		fmt.Sprintf("%s did not complete on every provider", op))
}

func firstID(ids ...string) string {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}
