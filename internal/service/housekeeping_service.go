package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type tokenRefresher interface {
	RefreshExpiring(ctx context.Context) (int, error)
}

type exportCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// HousekeepingConfig carries cron specs. An empty spec disables that task.
type HousekeepingConfig struct {
	Timezone   string
	PurgeSpec  string
	TokenSpec  string
	ExportSpec string
	Timeout    time.Duration
}

// HousekeepingReport summarises one run of every task.
type HousekeepingReport struct {
	PurgedEntries   int64 `json:"purgedEntries"`
	RefreshedTokens int   `json:"refreshedTokens"`
	RemovedExports  int   `json:"removedExports"`
}

// HousekeepingService runs periodic maintenance on a cron schedule.
type HousekeepingService struct {
	kv      expiredPurger
	tokens  tokenRefresher
	exports exportCleaner
	cfg     HousekeepingConfig
	logger  *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewHousekeepingService constructs the service. Any collaborator may be nil.
func NewHousekeepingService(kv expiredPurger, tokens tokenRefresher, exports exportCleaner, cfg HousekeepingConfig, logger *zap.Logger) *HousekeepingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &HousekeepingService{kv: kv, tokens: tokens, exports: exports, cfg: cfg, logger: logger}
}

// Start registers the tasks and starts the scheduler.
func (s *HousekeepingService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(loadZone(s.cfg.Timezone)))
	tasks := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"purge_expired", s.cfg.PurgeSpec, func(ctx context.Context) { _, _ = s.purge(ctx) }},
		{"refresh_tokens", s.cfg.TokenSpec, func(ctx context.Context) { _, _ = s.refreshTokens(ctx) }},
		{"cleanup_exports", s.cfg.ExportSpec, func(ctx context.Context) { _, _ = s.cleanupExports(ctx) }},
	}
	for _, task := range tasks {
		if task.spec == "" {
			continue
		}
		run := task.run
		if _, err := c.AddFunc(task.spec, func() {
			runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			run(runCtx)
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", task.name, task.spec, err)
		}
		s.logger.Sugar().Infow("housekeeping task scheduled", "task", task.name, "spec", task.spec)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the scheduler and waits for running tasks.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// RunOnce executes every task immediately.
func (s *HousekeepingService) RunOnce(ctx context.Context) (HousekeepingReport, error) {
	var (
		report HousekeepingReport
		errs   []error
		err    error
	)
	if report.PurgedEntries, err = s.purge(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.RefreshedTokens, err = s.refreshTokens(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.RemovedExports, err = s.cleanupExports(ctx); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

func (s *HousekeepingService) purge(ctx context.Context) (int64, error) {
	if s.kv == nil {
		return 0, nil
	}
	removed, err := s.kv.PurgeExpired(ctx)
	if err != nil {
		s.logger.Sugar().Warnw("purge expired entries failed", "error", err)
		return 0, err
	}
	if removed > 0 {
		s.logger.Sugar().Infow("expired entries purged", "count", removed)
	}
	return removed, nil
}

func (s *HousekeepingService) refreshTokens(ctx context.Context) (int, error) {
	if s.tokens == nil {
		return 0, nil
	}
	refreshed, err := s.tokens.RefreshExpiring(ctx)
	if err != nil {
		s.logger.Sugar().Warnw("token refresh failed", "error", err)
	}
	return refreshed, err
}

func (s *HousekeepingService) cleanupExports(ctx context.Context) (int, error) {
	if s.exports == nil {
		return 0, nil
	}
	removed, err := s.exports.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Sugar().Infow("expired exports removed", "count", removed)
	}
	return removed, nil
}
