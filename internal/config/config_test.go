package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("askdb-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":7860" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "file:Chinook.db" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Database.SampleRows != 0 {
		t.Fatalf("Database.SampleRows = %d", cfg.Database.SampleRows)
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Model != "gemini-2.5-flash" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if !cfg.Guard.ReadOnly {
		t.Fatal("Guard.ReadOnly should default to true")
	}
	if cfg.UI.HistoryDisplay != 5 {
		t.Fatalf("UI.HistoryDisplay = %d", cfg.UI.HistoryDisplay)
	}
	if cfg.Archive.Enabled {
		t.Fatal("Archive.Enabled should default to false")
	}
	if cfg.AI.APIKeyConfigured() {
		t.Fatal("APIKeyConfigured() = true with no key set")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("askdb-api", mapLookup(map[string]string{"ASKDB_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ASKDB_PROFILE":                "test",
		"ASKDB_SERVICE_NAME":           "askdb-custom",
		"ASKDB_HTTP_ADDR":              ":9999",
		"ASKDB_HTTP_READ_TIMEOUT":      "2s",
		"ASKDB_HTTP_WRITE_TIMEOUT":     "3s",
		"ASKDB_LOG_LEVEL":              "error",
		"ASKDB_DB_DRIVER":              "Postgres",
		"ASKDB_DB_DSN":                 "postgres://example",
		"ASKDB_DB_SCHEMA":              "music",
		"ASKDB_DB_INCLUDE_TABLES":      "Artist, Album,,Track",
		"ASKDB_DB_SAMPLE_ROWS":         "3",
		"ASKDB_DB_MAX_ROWS":            "500",
		"ASKDB_DB_MAX_OPEN_CONNS":      "42",
		"ASKDB_AI_PROVIDER":            "openai",
		"ASKDB_AI_BASE_URL":            "https://api.example.com",
		"ASKDB_AI_API_KEY":             "secret-key",
		"ASKDB_AI_MODEL":               "gpt-5.2",
		"ASKDB_AI_TEMPERATURE":         "0.3",
		"ASKDB_AI_TIMEOUT":             "21s",
		"ASKDB_GUARD_READ_ONLY":        "false",
		"ASKDB_UI_HISTORY_LIMIT":       "20",
		"ASKDB_UI_HISTORY_DISPLAY":     "10",
		"ASKDB_UI_SAMPLES_FILE":        "/etc/askdb/samples.yaml",
		"ASKDB_ARCHIVE_ENABLED":        "true",
		"ASKDB_ARCHIVE_BATCH_SIZE":     "7",
		"ASKDB_ARCHIVE_FLUSH_INTERVAL": "900ms",
		"ASKDB_OBJECTSTORE_ENDPOINT":   "s3.example.com",
		"ASKDB_OBJECTSTORE_BUCKET":     "askdb-prod",
		"ASKDB_OBJECTSTORE_USE_SSL":    "true",
		"ASKDB_OBJECTSTORE_PREFIX":     "audit",
	})
	cfg, err := Load("askdb-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "askdb-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP timeouts = %s/%s", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "postgres://example" || cfg.Database.Schema != "music" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if len(cfg.Database.IncludeTables) != 3 || cfg.Database.IncludeTables[1] != "Album" {
		t.Fatalf("Database.IncludeTables = %#v", cfg.Database.IncludeTables)
	}
	if cfg.Database.SampleRows != 3 || cfg.Database.MaxRows != 500 || cfg.Database.MaxOpenConns != 42 {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.AI.Provider != ProviderOpenAI || cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-5.2" || cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.Guard.ReadOnly {
		t.Fatal("Guard.ReadOnly = true, want false")
	}
	if cfg.UI.HistoryLimit != 20 || cfg.UI.HistoryDisplay != 10 || cfg.UI.SamplesFile != "/etc/askdb/samples.yaml" {
		t.Fatalf("UI = %+v", cfg.UI)
	}
	if !cfg.Archive.Enabled || cfg.Archive.BatchSize != 7 || cfg.Archive.FlushInterval != 900*time.Millisecond {
		t.Fatalf("Archive = %+v", cfg.Archive)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" || cfg.ObjectStore.Bucket != "askdb-prod" || cfg.ObjectStore.Prefix != "audit" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL = false, want true")
	}
}

func TestLoadFallsBackToProviderAPIKey(t *testing.T) {
	cfg, err := Load("askdb-api", mapLookup(map[string]string{"GOOGLE_API_KEY": " g-key "}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "g-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}

	cfg, err = Load("askdb-api", mapLookup(map[string]string{
		"ASKDB_AI_PROVIDER": "openai",
		"GOOGLE_API_KEY":    "g-key",
		"OPENAI_API_KEY":    "o-key",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "o-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
}

func TestLoadNormalizesDriverAliases(t *testing.T) {
	for _, alias := range []string{"postgresql", "PGX", " Postgres "} {
		cfg, err := Load("askdb-api", mapLookup(map[string]string{
			"ASKDB_DB_DRIVER": alias,
			"ASKDB_DB_DSN":    "postgres://example",
		}))
		if err != nil {
			t.Fatalf("Load(%q) error = %v", alias, err)
		}
		if cfg.Database.Driver != DriverPostgres {
			t.Fatalf("Driver for %q = %q", alias, cfg.Database.Driver)
		}
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"ASKDB_PROFILE": "oops"},
		{"ASKDB_HTTP_READ_TIMEOUT": "NaN"},
		{"ASKDB_DB_DRIVER": "oracle"},
		{"ASKDB_DB_MAX_OPEN_CONNS": "oops"},
		{"ASKDB_DB_SAMPLE_ROWS": "-1"},
		{"ASKDB_AI_PROVIDER": "watson"},
		{"ASKDB_AI_TEMPERATURE": "bad"},
		{"ASKDB_AI_TEMPERATURE": "3"},
		{"ASKDB_AI_TIMEOUT": "0s"},
		{"ASKDB_GUARD_READ_ONLY": "not-bool"},
		{"ASKDB_UI_HISTORY_DISPLAY": "100"},
		{"ASKDB_ARCHIVE_ENABLED": "true", "ASKDB_ARCHIVE_BATCH_SIZE": "0"},
		{"ASKDB_ARCHIVE_ENABLED": "true", "ASKDB_OBJECTSTORE_BUCKET": ""},
		{"ASKDB_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("askdb-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
