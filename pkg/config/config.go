package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StorePgx      = "pgx"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Store         StoreConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Inference     InferenceConfig
	Transcription TranscriptionConfig
	Google        GoogleConfig
	Microsoft     MicrosoftConfig
	Tokens        TokensConfig
	Ledger        LedgerConfig
	Dedup         DedupConfig
	Exports       ExportsConfig
	Housekeeping  HousekeepingConfig
	Defaults      DefaultsConfig
}

// StoreConfig selects the durable key-value backend.
type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// InferenceConfig points the intent classifier at a chat-completions backend.
type InferenceConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// TranscriptionConfig points voice uploads at a speech-to-text backend.
type TranscriptionConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Language       string
	Timeout        time.Duration
	MaxUploadBytes int64
}

type GoogleConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	CalendarID   string
	Endpoint     string
	TokenURL     string
}

type MicrosoftConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	Tenant       string
	GraphURL     string
	TokenURL     string
}

// TokensConfig governs provider token storage and refresh.
type TokensConfig struct {
	EncryptionSecret string
	RefreshBuffer    time.Duration
}

type LedgerConfig struct {
	MaxHistory int
}

type DedupConfig struct {
	Window time.Duration
}

// ExportsConfig configures asynchronous agenda exports.
type ExportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	Retention         time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// HousekeepingConfig holds cron specs for periodic maintenance.
type HousekeepingConfig struct {
	Enabled    bool
	Timezone   string
	PurgeSpec  string
	TokenSpec  string
	ExportSpec string
}

// DefaultsConfig seeds user preferences when none are stored.
type DefaultsConfig struct {
	Timezone        string
	DurationMinutes int
	ReminderMinutes int
	Providers       []string
	ListMaxResults  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Store = StoreConfig{Driver: strings.ToLower(v.GetString("STORE_DRIVER"))}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 30*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Inference = InferenceConfig{
		BaseURL:     v.GetString("INFERENCE_BASE_URL"),
		APIKey:      v.GetString("INFERENCE_API_KEY"),
		Model:       v.GetString("INFERENCE_MODEL"),
		Temperature: v.GetFloat64("INFERENCE_TEMPERATURE"),
		MaxTokens:   v.GetInt("INFERENCE_MAX_TOKENS"),
		Timeout:     parseDuration(v.GetString("INFERENCE_TIMEOUT"), 30*time.Second),
	}

	maxUpload := v.GetInt64("TRANSCRIPTION_MAX_UPLOAD")
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}
	transcriptionKey := v.GetString("TRANSCRIPTION_API_KEY")
	if transcriptionKey == "" {
		transcriptionKey = cfg.Inference.APIKey
	}
	cfg.Transcription = TranscriptionConfig{
		BaseURL:        v.GetString("TRANSCRIPTION_BASE_URL"),
		APIKey:         transcriptionKey,
		Model:          v.GetString("TRANSCRIPTION_MODEL"),
		Language:       v.GetString("TRANSCRIPTION_LANGUAGE"),
		Timeout:        parseDuration(v.GetString("TRANSCRIPTION_TIMEOUT"), 60*time.Second),
		MaxUploadBytes: maxUpload,
	}

	cfg.Google = GoogleConfig{
		Enabled:      v.GetBool("GOOGLE_ENABLED"),
		ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		CalendarID:   v.GetString("GOOGLE_CALENDAR_ID"),
		Endpoint:     v.GetString("GOOGLE_API_ENDPOINT"),
		TokenURL:     v.GetString("GOOGLE_TOKEN_URL"),
	}

	cfg.Microsoft = MicrosoftConfig{
		Enabled:      v.GetBool("MICROSOFT_ENABLED"),
		ClientID:     v.GetString("MICROSOFT_CLIENT_ID"),
		ClientSecret: v.GetString("MICROSOFT_CLIENT_SECRET"),
		Tenant:       v.GetString("MICROSOFT_TENANT"),
		GraphURL:     v.GetString("MICROSOFT_GRAPH_URL"),
		TokenURL:     v.GetString("MICROSOFT_TOKEN_URL"),
	}

	cfg.Tokens = TokensConfig{
		EncryptionSecret: v.GetString("TOKEN_ENCRYPTION_SECRET"),
		RefreshBuffer:    parseDuration(v.GetString("TOKEN_REFRESH_BUFFER"), 10*time.Minute),
	}

	cfg.Ledger = LedgerConfig{MaxHistory: v.GetInt("LEDGER_MAX_HISTORY")}
	cfg.Dedup = DedupConfig{Window: parseDuration(v.GetString("DEDUP_WINDOW"), 24*time.Hour)}

	cfg.Exports = ExportsConfig{
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		Retention:         parseDuration(v.GetString("EXPORTS_RETENTION"), 72*time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	cfg.Housekeeping = HousekeepingConfig{
		Enabled:    v.GetBool("HOUSEKEEPING_ENABLED"),
		Timezone:   v.GetString("HOUSEKEEPING_TIMEZONE"),
		PurgeSpec:  v.GetString("HOUSEKEEPING_PURGE_SPEC"),
		TokenSpec:  v.GetString("HOUSEKEEPING_TOKEN_SPEC"),
		ExportSpec: v.GetString("HOUSEKEEPING_EXPORT_SPEC"),
	}

	cfg.Defaults = DefaultsConfig{
		Timezone:        v.GetString("DEFAULT_TIMEZONE"),
		DurationMinutes: v.GetInt("DEFAULT_DURATION_MINUTES"),
		ReminderMinutes: v.GetInt("DEFAULT_REMINDER_MINUTES"),
		Providers:       splitAndTrim(v.GetString("DEFAULT_PROVIDERS")),
		ListMaxResults:  v.GetInt("LIST_MAX_RESULTS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("STORE_DRIVER", StoreMemory)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "chronos")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("SQLITE_PATH", "./chronos.sqlite")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "chronos:")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "chronos")
	v.SetDefault("JWT_EXPIRATION", "720h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("INFERENCE_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("INFERENCE_API_KEY", "")
	v.SetDefault("INFERENCE_MODEL", "gpt-4o-mini")
	v.SetDefault("INFERENCE_TEMPERATURE", 0.3)
	v.SetDefault("INFERENCE_MAX_TOKENS", 1500)
	v.SetDefault("INFERENCE_TIMEOUT", "30s")

	v.SetDefault("TRANSCRIPTION_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("TRANSCRIPTION_API_KEY", "")
	v.SetDefault("TRANSCRIPTION_MODEL", "whisper-1")
	v.SetDefault("TRANSCRIPTION_LANGUAGE", "en")
	v.SetDefault("TRANSCRIPTION_TIMEOUT", "60s")
	v.SetDefault("TRANSCRIPTION_MAX_UPLOAD", 25*1024*1024)

	v.SetDefault("GOOGLE_ENABLED", true)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("GOOGLE_API_ENDPOINT", "")
	v.SetDefault("GOOGLE_TOKEN_URL", "")

	v.SetDefault("MICROSOFT_ENABLED", true)
	v.SetDefault("MICROSOFT_CLIENT_ID", "")
	v.SetDefault("MICROSOFT_CLIENT_SECRET", "")
	v.SetDefault("MICROSOFT_TENANT", "common")
	v.SetDefault("MICROSOFT_GRAPH_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("MICROSOFT_TOKEN_URL", "")

	v.SetDefault("TOKEN_ENCRYPTION_SECRET", "dev_token_secret")
	v.SetDefault("TOKEN_REFRESH_BUFFER", "10m")

	v.SetDefault("LEDGER_MAX_HISTORY", 50)
	v.SetDefault("DEDUP_WINDOW", "24h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_RETENTION", "72h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("HOUSEKEEPING_ENABLED", true)
	v.SetDefault("HOUSEKEEPING_TIMEZONE", "UTC")
	v.SetDefault("HOUSEKEEPING_PURGE_SPEC", "@every 15m")
	v.SetDefault("HOUSEKEEPING_TOKEN_SPEC", "@every 5m")
	v.SetDefault("HOUSEKEEPING_EXPORT_SPEC", "0 3 * * *")

	v.SetDefault("DEFAULT_TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_DURATION_MINUTES", 60)
	v.SetDefault("DEFAULT_REMINDER_MINUTES", 60)
	v.SetDefault("DEFAULT_PROVIDERS", "google")
	v.SetDefault("LIST_MAX_RESULTS", 50)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
