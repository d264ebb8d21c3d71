package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

const (
	preferencesKey  = "user_defaults"
	recentEventsKey = "recent_events"
	recentEventsCap = 5
)

// PreferencesService stores installation defaults and the rolling window of recently
// created events.
type PreferencesService struct {
	store    *StateStore
	defaults models.Preferences
	logger   *zap.Logger

	mu sync.Mutex
}

// NewPreferencesService constructs the service. defaults fill any field missing from the stored document.
func NewPreferencesService(store *StateStore, defaults models.Preferences, logger *zap.Logger) *PreferencesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(defaults.Providers) == 0 {
		defaults.Providers = []models.ProviderID{models.ProviderGoogle}
	}
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.DefaultDurationMinutes <= 0 {
		defaults.DefaultDurationMinutes = 60
	}
	if defaults.ReminderMinutes < 0 {
		defaults.ReminderMinutes = 60
	}
	return &PreferencesService{store: store, defaults: defaults, logger: logger}
}

// Get returns the stored preferences merged over the defaults.
func (s *PreferencesService) Get(ctx context.Context) (models.Preferences, error) {
	var stored models.Preferences
	ok, err := s.store.Load(ctx, preferencesKey, &stored)
	if err != nil {
		return s.defaults, err
	}
	if !ok {
		return s.defaults, nil
	}
	return s.merge(stored), nil
}

func (s *PreferencesService) merge(p models.Preferences) models.Preferences {
	if len(p.Providers) == 0 {
		p.Providers = s.defaults.Providers
	}
	if p.Timezone == "" {
		p.Timezone = s.defaults.Timezone
	}
	if p.DefaultDurationMinutes <= 0 {
		p.DefaultDurationMinutes = s.defaults.DefaultDurationMinutes
	}
	if p.ReminderMinutes < 0 {
		p.ReminderMinutes = s.defaults.ReminderMinutes
	}
	return p
}

// Update validates and stores prefs.
func (s *PreferencesService) Update(ctx context.Context, prefs models.Preferences) (models.Preferences, error) {
	seen := make(map[models.ProviderID]struct{}, len(prefs.Providers))
	providers := make([]models.ProviderID, 0, len(prefs.Providers))
	for _, id := range prefs.Providers {
		if !id.Valid() {
			return models.Preferences{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown provider %q", id))
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		providers = append(providers, id)
	}
	prefs.Providers = providers
	if prefs.Timezone != "" {
		if _, err := time.LoadLocation(prefs.Timezone); err != nil {
			return models.Preferences{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown timezone %q", prefs.Timezone))
		}
	}
	if prefs.DefaultDurationMinutes < 0 || prefs.DefaultDurationMinutes > maxDurationMinutes {
		return models.Preferences{}, appErrors.ErrInvalidDuration
	}
	if prefs.ReminderMinutes < 0 {
		return models.Preferences{}, appErrors.Clone(appErrors.ErrValidation, "reminder minutes cannot be negative")
	}

	merged := s.merge(prefs)
	if err := s.store.Save(ctx, preferencesKey, merged, 0); err != nil {
		return models.Preferences{}, err
	}
	s.logger.Sugar().Infow("preferences updated", "providers", merged.Providers, "timezone", merged.Timezone)
	return merged, nil
}

// RecentEvents returns the most recently created events, newest first.
func (s *PreferencesService) RecentEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	if _, err := s.store.Load(ctx, recentEventsKey, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// RememberEvents pushes events onto the recent window, dropping the oldest beyond capacity.
func (s *PreferencesService) RememberEvents(ctx context.Context, events []models.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.RecentEvents(ctx)
	if err != nil {
		return err
	}
	next := make([]models.CalendarEvent, 0, recentEventsCap)
	for i := len(events) - 1; i >= 0 && len(next) < recentEventsCap; i-- {
		next = append(next, events[i])
	}
	for _, ev := range current {
		if len(next) == recentEventsCap {
			break
		}
		next = append(next, ev)
	}
	return s.store.Save(ctx, recentEventsKey, next, 0)
}
