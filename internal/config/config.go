package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Guard         GuardConfig
	UI            UIConfig
	Archive       ArchiveConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	Schema          string
	IncludeTables   []string
	SampleRows      int
	MaxRows         int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// APIKeyConfigured reports whether a model credential was supplied.
func (c AIConfig) APIKeyConfigured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type GuardConfig struct {
	ReadOnly bool
}

type UIConfig struct {
	HistoryLimit   int
	HistoryDisplay int
	SamplesFile    string
}

type ArchiveConfig struct {
	Enabled       bool
	BatchSize     int
	FlushInterval time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKDB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var includeTables string
	steps := []func() error{
		func() error { return applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKDB_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "ASKDB_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "ASKDB_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyString(lookup, "ASKDB_DB_SCHEMA", &cfg.Database.Schema) },
		func() error { return applyString(lookup, "ASKDB_DB_INCLUDE_TABLES", &includeTables) },
		func() error { return applyInt(lookup, "ASKDB_DB_SAMPLE_ROWS", &cfg.Database.SampleRows) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_ROWS", &cfg.Database.MaxRows) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error { return applyDuration(lookup, "ASKDB_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "ASKDB_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime) },
		func() error { return applyString(lookup, "ASKDB_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "ASKDB_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "ASKDB_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "ASKDB_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "ASKDB_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "ASKDB_GUARD_READ_ONLY", &cfg.Guard.ReadOnly) },
		func() error { return applyInt(lookup, "ASKDB_UI_HISTORY_LIMIT", &cfg.UI.HistoryLimit) },
		func() error { return applyInt(lookup, "ASKDB_UI_HISTORY_DISPLAY", &cfg.UI.HistoryDisplay) },
		func() error { return applyString(lookup, "ASKDB_UI_SAMPLES_FILE", &cfg.UI.SamplesFile) },
		func() error { return applyBool(lookup, "ASKDB_ARCHIVE_ENABLED", &cfg.Archive.Enabled) },
		func() error { return applyInt(lookup, "ASKDB_ARCHIVE_BATCH_SIZE", &cfg.Archive.BatchSize) },
		func() error { return applyDuration(lookup, "ASKDB_ARCHIVE_FLUSH_INTERVAL", &cfg.Archive.FlushInterval) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ASKDB_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "ASKDB_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if includeTables != "" {
		cfg.Database.IncludeTables = splitList(includeTables)
	}
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.AI.APIKey = resolveAPIKey(lookup, cfg.AI.Provider)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeDriver folds the accepted driver aliases onto their canonical
// names; unknown values pass through for validate to reject.
func normalizeDriver(raw string) string {
	driver := strings.ToLower(strings.TrimSpace(raw))
	switch driver {
	case "postgresql", "pgx":
		return DriverPostgres
	}
	return driver
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverDuckDB:
	default:
		return fmt.Errorf("invalid ASKDB_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver != DriverDuckDB {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Database.SampleRows < 0 {
		return fmt.Errorf("ASKDB_DB_SAMPLE_ROWS must be >= 0")
	}
	if cfg.Database.MaxRows < 0 {
		return fmt.Errorf("ASKDB_DB_MAX_ROWS must be >= 0")
	}
	switch cfg.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid ASKDB_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ASKDB_AI_TEMPERATURE must be between 0 and 2")
	}
	if cfg.AI.Timeout <= 0 {
		return fmt.Errorf("ASKDB_AI_TIMEOUT must be > 0")
	}
	if cfg.UI.HistoryLimit <= 0 {
		return fmt.Errorf("ASKDB_UI_HISTORY_LIMIT must be > 0")
	}
	if cfg.UI.HistoryDisplay <= 0 || cfg.UI.HistoryDisplay > cfg.UI.HistoryLimit {
		return fmt.Errorf("ASKDB_UI_HISTORY_DISPLAY must be between 1 and ASKDB_UI_HISTORY_LIMIT")
	}
	if cfg.Archive.Enabled {
		if cfg.Archive.BatchSize <= 0 {
			return fmt.Errorf("ASKDB_ARCHIVE_BATCH_SIZE must be > 0")
		}
		if cfg.Archive.FlushInterval <= 0 {
			return fmt.Errorf("ASKDB_ARCHIVE_FLUSH_INTERVAL must be > 0")
		}
		if cfg.ObjectStore.Bucket == "" {
			return fmt.Errorf("object store bucket is required when archive is enabled")
		}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb-api"},
		HTTP: HTTPConfig{
			Address:      ":7860",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			DSN:             "file:Chinook.db",
			SampleRows:      0,
			MaxRows:         0,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		AI: AIConfig{
			Provider:    ProviderGemini,
			Model:       "gemini-2.5-flash",
			Temperature: 0,
			Timeout:     60 * time.Second,
		},
		Guard: GuardConfig{
			ReadOnly: true,
		},
		UI: UIConfig{
			HistoryLimit:   50,
			HistoryDisplay: 5,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 30 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "askdb",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "transcripts",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":17860"
		cfg.Database.DSN = ":memory:"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

// resolveAPIKey prefers ASKDB_AI_API_KEY and falls back to the
// provider's conventional variable.
func resolveAPIKey(lookup LookupFunc, provider string) string {
	if raw, ok := lookup("ASKDB_AI_API_KEY"); ok && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}
	fallback := "GOOGLE_API_KEY"
	if provider == ProviderOpenAI {
		fallback = "OPENAI_API_KEY"
	}
	if raw, ok := lookup(fallback); ok {
		return strings.TrimSpace(raw)
	}
	return ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
