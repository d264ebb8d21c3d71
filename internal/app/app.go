package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/provider"
	"github.com/noah-isme/chronos/internal/repository"
	"github.com/noah-isme/chronos/internal/service"
	"github.com/noah-isme/chronos/pkg/cache"
	"github.com/noah-isme/chronos/pkg/config"
	"github.com/noah-isme/chronos/pkg/database"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/jobs"
	"github.com/noah-isme/chronos/pkg/storage"
)

// App holds every long-lived collaborator of the assistant. Both binaries build one.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	KV           repository.KVStore
	Metrics      *service.MetricsService
	Validate     *validator.Validate
	Auth         *service.AuthService
	Broker       *service.AuthBroker
	Registry     *provider.Registry
	Preferences  *service.PreferencesService
	Dedup        *service.DedupGuard
	Ledger       *service.ActionLedger
	Executor     *service.CommandExecutor
	Classifier   *service.IntentClassifier
	Drafts       *service.DisambiguationEngine
	Transcriber  *service.Transcriber
	Exports      *service.ExportJobService
	Housekeeping *service.HousekeepingService

	queue *jobs.Queue
}

// Option customises construction, mostly for tests.
type Option func(*options)

type options struct {
	kv         repository.KVStore
	httpClient *http.Client
}

// WithKVStore uses kv instead of opening the configured store.
func WithKVStore(kv repository.KVStore) Option {
	return func(o *options) { o.kv = kv }
}

// WithHTTPClient routes every outbound call through client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New wires the services. It opens the configured key-value store and loads the
// persisted ledger but starts no background work; call Start for that.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	a := &App{Config: cfg, Logger: logger, Metrics: service.NewMetricsService(), Validate: validator.New()}

	kv := o.kv
	if kv == nil {
		opened, err := openKV(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		kv = opened
	}
	a.KV = repository.NewObservedKVRepository(kv, a.Metrics)
	store := service.NewStateStore(a.KV, logger.Named("state"))

	a.Auth = service.NewAuthService(logger.Named("auth"), service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})

	cipher, err := service.NewTokenCipher(cfg.Tokens.EncryptionSecret)
	if err != nil {
		a.closeKV()
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	a.Broker = service.NewAuthBroker(store, cipher, service.AuthBrokerConfig{
		Google: service.OAuthClientConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			TokenURL:     cfg.Google.TokenURL,
		},
		Microsoft: service.OAuthClientConfig{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			Tenant:       cfg.Microsoft.Tenant,
			TokenURL:     cfg.Microsoft.TokenURL,
		},
		RefreshBuffer: cfg.Tokens.RefreshBuffer,
	}, httpClient, logger.Named("oauth"))

	a.Registry = buildRegistry(cfg, a.Broker, httpClient, a.Metrics, logger)

	a.Preferences = service.NewPreferencesService(store, models.Preferences{
		Providers:              defaultProviders(cfg, a.Registry),
		Timezone:               cfg.Defaults.Timezone,
		DefaultDurationMinutes: cfg.Defaults.DurationMinutes,
		ReminderMinutes:        cfg.Defaults.ReminderMinutes,
	}, logger.Named("preferences"))

	a.Dedup = service.NewDedupGuard(store, cfg.Dedup.Window)
	a.Ledger = service.NewActionLedger(store, a.Registry, a.Dedup, a.Metrics, service.LedgerConfig{
		MaxHistory:      cfg.Ledger.MaxHistory,
		ReminderMinutes: cfg.Defaults.ReminderMinutes,
	}, logger.Named("ledger"))
	if err := a.Ledger.Load(ctx); err != nil {
		logger.Sugar().Warnw("starting with an empty action history", "error", err)
	}

	a.Executor = service.NewCommandExecutor(a.Registry, a.Dedup, a.Ledger, a.Preferences, a.Preferences, a.Metrics, service.ExecutorConfig{
		ListMaxResults:  cfg.Defaults.ListMaxResults,
		ReminderMinutes: cfg.Defaults.ReminderMinutes,
	}, logger.Named("executor"))

	a.Classifier = service.NewIntentClassifier(
		service.NewInferenceClient(cfg.Inference, httpClient, logger.Named("inference")),
		service.NewFallbackParser(cfg.Defaults.DurationMinutes, cfg.Defaults.ReminderMinutes),
		service.MustDefaultDurationHeuristics(),
		a.Validate,
		a.Metrics,
		service.ClassifierConfig{DefaultReminderMinutes: cfg.Defaults.ReminderMinutes},
		logger.Named("classifier"),
	)
	a.Drafts = service.NewDisambiguationEngine(cfg.Defaults.DurationMinutes)
	a.Transcriber = service.NewTranscriber(cfg.Transcription, httpClient, logger.Named("transcription"))

	if err := a.buildExports(store); err != nil {
		a.closeKV()
		return nil, err
	}

	a.Housekeeping = service.NewHousekeepingService(a.KV, a.Broker, a.Exports, service.HousekeepingConfig{
		Timezone:   cfg.Housekeeping.Timezone,
		PurgeSpec:  cfg.Housekeeping.PurgeSpec,
		TokenSpec:  cfg.Housekeeping.TokenSpec,
		ExportSpec: cfg.Housekeeping.ExportSpec,
	}, logger.Named("housekeeping"))

	return a, nil
}

func (a *App) buildExports(store *service.StateStore) error {
	cfg := a.Config
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(a.Executor, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		Retention: cfg.Exports.Retention,
		Timezone:  cfg.Defaults.Timezone,
	}, a.Logger.Named("export"))

	a.queue = jobs.NewQueue("exports", jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     a.Logger.Named("queue"),
		OnExhausted: func(ctx context.Context, job jobs.Job, err error) {
			a.Exports.OnExhausted(ctx, job, err)
		},
	})
	a.Exports = service.NewExportJobService(store, a.queue, exporter, a.Preferences, cfg.Exports.Retention, a.Logger.Named("export_jobs"))
	a.queue.Handle(service.ExportJobType, service.NewExportWorker(a.Exports, exporter, a.Logger.Named("export_worker")).Handle)
	return nil
}

// Start launches the export workers and, when enabled, the housekeeping schedule.
func (a *App) Start(ctx context.Context) error {
	a.queue.Start(ctx)
	a.Exports.RecoverPendingJobs(ctx)
	if !a.Config.Housekeeping.Enabled {
		return nil
	}
	return a.Housekeeping.Start(ctx)
}

// Close stops background work and releases the store.
func (a *App) Close() {
	a.Housekeeping.Stop()
	a.queue.Stop()
	a.closeKV()
}

func (a *App) closeKV() {
	if a.KV == nil {
		return
	}
	if err := a.KV.Close(); err != nil {
		a.Logger.Sugar().Warnw("failed to close key-value store", "error", err)
	}
}

// Ready probes the key-value store.
func (a *App) Ready(ctx context.Context) error {
	if _, err := a.KV.Get(ctx, "readiness_probe"); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		return err
	}
	return nil
}

func openKV(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.KVStore, error) {
	switch cfg.Store.Driver {
	case "", config.StoreMemory:
		return repository.NewMemoryKVRepository(), nil
	case config.StoreRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return repository.NewRedisKVRepository(client, cfg.Redis.KeyPrefix, logger.Named("redis")), nil
	case config.StorePostgres, config.StorePgx, config.StoreSQLite:
		db, err := database.Open(ctx, cfg.Store.Driver, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
		return repository.NewSQLKVRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func buildRegistry(cfg *config.Config, tokens provider.TokenSource, client *http.Client, metrics *service.MetricsService, logger *zap.Logger) *provider.Registry {
	var adapters []provider.Adapter
	if cfg.Google.Enabled {
		google := provider.NewGoogleAdapter(provider.GoogleOptions{
			CalendarID: cfg.Google.CalendarID,
			Endpoint:   cfg.Google.Endpoint,
			HTTPClient: client,
		}, tokens, logger.Named("google"))
		adapters = append(adapters, provider.Instrument(google, metrics))
	}
	if cfg.Microsoft.Enabled {
		outlook := provider.NewOutlookAdapter(provider.OutlookOptions{
			BaseURL:    cfg.Microsoft.GraphURL,
			HTTPClient: client,
		}, tokens, logger.Named("outlook"))
		adapters = append(adapters, provider.Instrument(outlook, metrics))
	}
	return provider.NewRegistry(adapters...)
}

// defaultProviders keeps the configured defaults that are actually enabled.
func defaultProviders(cfg *config.Config, registry *provider.Registry) []models.ProviderID {
	enabled := make(map[models.ProviderID]bool)
	for _, id := range registry.IDs() {
		enabled[id] = true
	}
	var out []models.ProviderID
	for _, raw := range cfg.Defaults.Providers {
		if id := models.ProviderID(raw); enabled[id] {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		out = registry.IDs()
	}
	return out
}
