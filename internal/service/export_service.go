package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/pkg/export"
	"github.com/noah-isme/chronos/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type rangeLister interface {
	ListRange(ctx context.Context, providers []models.ProviderID, from, to time.Time) (models.AggregateResult, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	Retention time.Duration
	Timezone  string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	EventCount   int
	ExpiresAt    time.Time
}

// ExportService renders agendas and persists the files behind signed download tokens.
type ExportService struct {
	events  rangeLister
	storage fileStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(events rangeLister, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &ExportService{
		events:  events,
		storage: files,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate lists the job's events, renders them and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := export.RendererFor(export.Format(job.Format))
	if err != nil {
		return nil, err
	}
	listed, err := s.events.ListRange(ctx, job.Providers, job.RangeStart, job.RangeEnd)
	if err != nil {
		return nil, err
	}
	if listed.Status == models.StatusFailure {
		return nil, listFailure(listed.Outcomes)
	}

	agenda := export.Agenda{
		Title:    fmt.Sprintf("Agenda %s to %s", job.RangeStart.Format(time.DateOnly), job.RangeEnd.Format(time.DateOnly)),
		Location: loadZone(s.cfg.Timezone),
		From:     job.RangeStart,
		To:       job.RangeEnd,
		Items:    make([]export.Item, 0, len(listed.Events)),
	}
	for _, ev := range listed.Events {
		agenda.Items = append(agenda.Items, export.Item{
			UID:            fmt.Sprintf("%s-%s", ev.ProviderID, ev.ID),
			Title:          ev.Title,
			Start:          ev.Start,
			End:            ev.End,
			AllDay:         ev.AllDay,
			Location:       ev.Location,
			Description:    ev.Description,
			Provider:       string(ev.ProviderID),
			RecurrenceRule: ev.RecurrenceRule,
		})
	}
	payload, err := renderer.Render(agenda)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, renderer.Extension()), payload)
	if err != nil {
		return nil, err
	}
	token, grant, err := s.signer.Issue(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		EventCount:   len(agenda.Items),
		ExpiresAt:    grant.ExpiresAt,
	}, nil
}

// Verify validates download token metadata.
func (s *ExportService) Verify(token string, allowExpired bool) (storage.Grant, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl, defaulting to the configured retention.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.Retention
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("agenda_%s_%s_%s.%s", job.RangeStart.Format("20060102"), sanitizeFilename(job.ID), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
