package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/jobs"
)

// ExportJobType routes agenda exports on the job queue.
const ExportJobType = "agenda_export"

const (
	exportJobIndexKey = "export_jobs"
	exportJobIndexCap = 100
	maxExportRange    = 366 * 24 * time.Hour
)

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportRequest asks for an agenda file.
type ExportRequest struct {
	Format    models.ExportFormat
	From      time.Time
	To        time.Time
	Providers []models.ProviderID
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobService manages the lifecycle of agenda export jobs. Jobs live in the state
// store for the retention period.
type ExportJobService struct {
	store     *StateStore
	queue     jobDispatcher
	exporter  *ExportService
	prefs     preferencesSource
	retention time.Duration
	logger    *zap.Logger

	mu sync.Mutex
}

// NewExportJobService constructs the service. prefs may be nil.
func NewExportJobService(store *StateStore, queue jobDispatcher, exporter *ExportService, prefs preferencesSource, retention time.Duration, logger *zap.Logger) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &ExportJobService{store: store, queue: queue, exporter: exporter, prefs: prefs, retention: retention, logger: logger}
}

func exportJobKey(id string) string {
	return "export_job:" + id
}

// CreateJob validates req, stores a queued job and hands it to the worker pool.
func (s *ExportJobService) CreateJob(ctx context.Context, req ExportRequest) (*models.ExportJob, error) {
	switch req.Format {
	case models.ExportFormatCSV, models.ExportFormatPDF, models.ExportFormatICS:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if !req.To.After(req.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end must be after start")
	}
	if req.To.Sub(req.From) > maxExportRange {
		return nil, appErrors.Clone(appErrors.ErrValidation, "export range is limited to one year")
	}
	providers := req.Providers
	if len(providers) == 0 && s.prefs != nil {
		if prefs, err := s.prefs.Get(ctx); err == nil {
			providers = prefs.Providers
		}
	}

	job := &models.ExportJob{
		ID:         uuid.NewString(),
		Format:     req.Format,
		Status:     models.ExportStatusQueued,
		Providers:  providers,
		RangeStart: req.From,
		RangeEnd:   req.To,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.save(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.index(ctx, job.ID); err != nil {
		s.logger.Sugar().Warnw("failed to index export job", "job_id", job.ID, "error", err)
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		s.fail(ctx, job, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// GetStatus returns the job.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*models.ExportJob, error) {
	var job models.ExportJob
	ok, err := s.store.Load(ctx, exportJobKey(id), &job)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return &job, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	grant, err := s.exporter.Verify(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.GetStatus(ctx, grant.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	if !strings.HasSuffix(job.DownloadURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.exporter.Open(grant.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{File: file, Filename: filepath.Base(grant.Path), Format: job.Format, ExpiresAt: grant.ExpiresAt}, nil
}

// RecoverPendingJobs replays queued jobs, e.g. after a restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	var ids []string
	if _, err := s.store.Load(ctx, exportJobIndexKey, &ids); err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for _, id := range ids {
		job, err := s.GetStatus(ctx, id)
		if err != nil || job.Status != models.ExportStatusQueued {
			continue
		}
		if err := s.queue.Enqueue(jobs.Job{ID: id, Type: ExportJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", id, "error", err)
		}
	}
}

// CleanupExpired deletes export files past retention and returns how many were removed.
func (s *ExportJobService) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := s.exporter.Cleanup(s.retention)
	if err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
		return 0, err
	}
	return len(removed), nil
}

// OnExhausted marks a job failed once the queue gives up on it.
func (s *ExportJobService) OnExhausted(ctx context.Context, job jobs.Job, cause error) {
	record, err := s.GetStatus(ctx, job.ID)
	if err != nil {
		return
	}
	s.fail(ctx, record, cause.Error())
}

func (s *ExportJobService) fail(ctx context.Context, job *models.ExportJob, message string) {
	now := time.Now().UTC()
	job.Status = models.ExportStatusFailed
	job.ErrorMessage = message
	job.FinishedAt = &now
	if err := s.save(ctx, job); err != nil {
		s.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

func (s *ExportJobService) save(ctx context.Context, job *models.ExportJob) error {
	return s.store.Save(ctx, exportJobKey(job.ID), job, s.retention)
}

func (s *ExportJobService) index(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	if _, err := s.store.Load(ctx, exportJobIndexKey, &ids); err != nil {
		return err
	}
	ids = append(ids, id)
	if over := len(ids) - exportJobIndexCap; over > 0 {
		ids = ids[over:]
	}
	return s.store.Save(ctx, exportJobIndexKey, ids, 0)
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	jobs     *ExportJobService
	exporter exportGenerator
	logger   *zap.Logger
}

// NewExportWorker constructs a worker.
func NewExportWorker(jobService *ExportJobService, exporter exportGenerator, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{jobs: jobService, exporter: exporter, logger: logger}
}

// Handle processes a queue job. A returned error lets the queue retry it.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.jobs.GetStatus(ctx, job.ID)
	if err != nil {
		return err
	}
	record.Status = models.ExportStatusRunning
	if err := w.jobs.save(ctx, record); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		record.Status = models.ExportStatusQueued
		record.ErrorMessage = err.Error()
		if updateErr := w.jobs.save(ctx, record); updateErr != nil {
			w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
		}
		return fmt.Errorf("generate export %s: %w", job.ID, err)
	}

	now := time.Now().UTC()
	record.Status = models.ExportStatusFinished
	record.EventCount = result.EventCount
	record.FileName = filepath.Base(result.RelativePath)
	record.DownloadURL = result.URL
	record.ErrorMessage = ""
	record.FinishedAt = &now
	if err := w.jobs.save(ctx, record); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.logger.Sugar().Infow("export finished", "job_id", job.ID, "format", record.Format, "events", result.EventCount)
	return nil
}
