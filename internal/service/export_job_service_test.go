package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/jobs"
	"github.com/noah-isme/chronos/pkg/storage"
)

type exportFixture struct {
	*executorFixture
	exporter *ExportService
	jobs     *ExportJobService
	queue    *jobs.Queue
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	base := newExecutorFixture(t)
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	exporter := NewExportService(base.exec, files, signer, ExportConfig{Timezone: "UTC"}, nil)

	fx := &exportFixture{executorFixture: base, exporter: exporter}
	fx.queue = jobs.NewQueue("exports", jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
		OnExhausted: func(ctx context.Context, job jobs.Job, err error) {
			fx.jobs.OnExhausted(ctx, job, err)
		},
	})
	fx.jobs = NewExportJobService(base.store, fx.queue, exporter, base.prefs, time.Hour, nil)
	worker := NewExportWorker(fx.jobs, exporter, nil)
	fx.queue.Handle(ExportJobType, worker.Handle)
	fx.queue.Start(context.Background())
	t.Cleanup(fx.queue.Stop)
	return fx
}

func (fx *exportFixture) waitFor(t *testing.T, id string, status models.ExportStatus) *models.ExportJob {
	t.Helper()
	var job *models.ExportJob
	require.Eventually(t, func() bool {
		current, err := fx.jobs.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		job = current
		return current.Status == status
	}, 3*time.Second, 20*time.Millisecond)
	return job
}

func TestExportJobProducesDownloadableAgenda(t *testing.T) {
	fx := newExportFixture(t)
	day := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)
	fx.google.seed(calendarEvent("g1", "Dentist", day.Add(10*time.Hour), 30))
	fx.google.seed(calendarEvent("g2", "Standup", day.Add(9*time.Hour), 15))
	fx.outlook.seed(calendarEvent("o1", "Board review", day.Add(14*time.Hour), 60))
	fx.google.seed(calendarEvent("g3", "Next week", day.Add(7*24*time.Hour), 60))
	ctx := context.Background()

	job, err := fx.jobs.CreateJob(ctx, ExportRequest{
		Format:    models.ExportFormatCSV,
		From:      day,
		To:        day.Add(24 * time.Hour),
		Providers: bothProviders(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	finished := fx.waitFor(t, job.ID, models.ExportStatusFinished)
	assert.Equal(t, 3, finished.EventCount)
	require.NotNil(t, finished.FinishedAt)
	assert.True(t, strings.HasPrefix(finished.DownloadURL, "/api/v1/exports/download/"))
	assert.True(t, strings.HasSuffix(finished.FileName, ".csv"))

	token := strings.TrimPrefix(finished.DownloadURL, "/api/v1/exports/download/")
	download, err := fx.jobs.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ExportFormatCSV, download.Format)

	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "Dentist")
	assert.Contains(t, body, "Board review")
	assert.NotContains(t, body, "Next week")
	assert.Less(t, strings.Index(body, "Standup"), strings.Index(body, "Dentist"))
}

func TestExportJobDefaultsToPreferredProviders(t *testing.T) {
	fx := newExportFixture(t)
	day := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)

	job, err := fx.jobs.CreateJob(context.Background(), ExportRequest{Format: models.ExportFormatICS, From: day, To: day.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []models.ProviderID{models.ProviderGoogle}, job.Providers)
	fx.waitFor(t, job.ID, models.ExportStatusFinished)
}

func TestExportJobValidation(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)

	_, err := fx.jobs.CreateJob(ctx, ExportRequest{Format: "xlsx", From: day, To: day.Add(time.Hour)})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	_, err = fx.jobs.CreateJob(ctx, ExportRequest{Format: models.ExportFormatCSV, From: day, To: day})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	_, err = fx.jobs.CreateJob(ctx, ExportRequest{Format: models.ExportFormatCSV, From: day, To: day.AddDate(2, 0, 0)})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = fx.jobs.GetStatus(ctx, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, err = fx.jobs.ResolveDownload(ctx, "not.a.valid.token")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportJobFailsAfterRetriesExhausted(t *testing.T) {
	fx := newExportFixture(t)
	fx.google.listErr = appErrors.Clone(appErrors.ErrNetwork, "calendar offline")
	day := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)

	job, err := fx.jobs.CreateJob(context.Background(), ExportRequest{
		Format:    models.ExportFormatPDF,
		From:      day,
		To:        day.Add(24 * time.Hour),
		Providers: []models.ProviderID{models.ProviderGoogle},
	})
	require.NoError(t, err)

	failed := fx.waitFor(t, job.ID, models.ExportStatusFailed)
	assert.Contains(t, failed.ErrorMessage, "calendar offline")
	require.NotNil(t, failed.FinishedAt)
}

type generatorStub struct {
	result *ExportResult
	err    error
}

func (s generatorStub) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return s.result, s.err
}

func TestExportWorkerRequeuesOnFailure(t *testing.T) {
	store := newMemoryStateStore()
	svc := NewExportJobService(store, jobs.NewQueue("idle", jobs.QueueConfig{}), nil, nil, time.Hour, nil)
	ctx := context.Background()
	record := &models.ExportJob{ID: "job-1", Format: models.ExportFormatCSV, Status: models.ExportStatusQueued}
	require.NoError(t, svc.save(ctx, record))

	worker := NewExportWorker(svc, generatorStub{err: errors.New("disk full")}, nil)
	err := worker.Handle(ctx, jobs.Job{ID: "job-1", Type: ExportJobType})
	require.Error(t, err)

	current, err := svc.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, current.Status)
	assert.Equal(t, "disk full", current.ErrorMessage)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "a_b-c-d", sanitizeFilename("a b/c:d"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 150)), 100)
}
