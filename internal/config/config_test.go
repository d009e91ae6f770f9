package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("textsql-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "http://localhost:5173" {
		t.Fatalf("HTTP.CORSOrigins = %#v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Store.DefaultPath != "user_db.db" {
		t.Fatalf("Store.DefaultPath = %q", cfg.Store.DefaultPath)
	}
	if cfg.Store.ReadOnly || len(cfg.Store.AllowedStatements) != 0 {
		t.Fatalf("store isolation should be off by default: %+v", cfg.Store)
	}
	if cfg.Upload.MaxBytes != 10<<20 {
		t.Fatalf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.AI.Enabled() {
		t.Fatal("AI should be disabled without a key")
	}
	if cfg.AI.SQLModel != "llama-3.1-8b-instant" || cfg.AI.MaxTokens != 512 {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Timeout != 0 {
		t.Fatalf("AI.Timeout = %s, want no timeout", cfg.AI.Timeout)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Fatalf("Auth.TokenTTL = %s", cfg.Auth.TokenTTL)
	}
	if !cfg.Auth.ProviderStub {
		t.Fatal("Auth.ProviderStub should default to true in dev")
	}
	if !cfg.Auth.Demo.Enabled || cfg.Auth.Demo.Username != "demo" || cfg.Auth.Demo.Password != "demo123" {
		t.Fatalf("Auth.Demo = %+v", cfg.Auth.Demo)
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
}

func TestLoadProdProfileRejectsDefaultSecret(t *testing.T) {
	_, err := Load("textsql-api", mapLookup(map[string]string{"TEXTSQL_PROFILE": "prod"}))
	if err == nil {
		t.Fatal("expected error for default secret in prod")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("textsql-api", mapLookup(map[string]string{
		"TEXTSQL_PROFILE":     "prod",
		"TEXTSQL_AUTH_SECRET": "prod-secret",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.ProviderStub {
		t.Fatal("Auth.ProviderStub should be off in prod")
	}
	if cfg.Auth.Demo.Enabled {
		t.Fatal("Auth.Demo.Enabled should be off in prod")
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TEXTSQL_PROFILE":                  "test",
		"TEXTSQL_SERVICE_NAME":             "textsql-custom",
		"TEXTSQL_HTTP_ADDR":                ":9999",
		"TEXTSQL_HTTP_READ_TIMEOUT":        "2s",
		"TEXTSQL_HTTP_CORS_ORIGINS":        "https://a.example, ,https://b.example",
		"TEXTSQL_LOG_LEVEL":                "error",
		"TEXTSQL_CATALOG_DSN":              "postgres://example",
		"TEXTSQL_CATALOG_MAX_OPEN_CONNS":   "42",
		"TEXTSQL_STORE_DEFAULT_PATH":       "/data/store.db",
		"TEXTSQL_STORE_READ_ONLY":          "true",
		"TEXTSQL_STORE_ALLOWED_STATEMENTS": "select,with",
		"TEXTSQL_UPLOAD_MAX_BYTES":         "2048",
		"TEXTSQL_OBJECTSTORE_ENABLED":      "true",
		"TEXTSQL_OBJECTSTORE_ENDPOINT":     "s3.example.com",
		"TEXTSQL_OBJECTSTORE_BUCKET":       "uploads",
		"TEXTSQL_AI_BASE_URL":              "https://api.example.com",
		"TEXTSQL_AI_API_KEY":               "secret-key",
		"TEXTSQL_AI_SQL_MODEL":             "model-a",
		"TEXTSQL_AI_CHAT_MODEL":            "model-b",
		"TEXTSQL_AI_TIMEOUT":               "21s",
		"TEXTSQL_AUTH_SECRET":              "s3cret",
		"TEXTSQL_AUTH_TOKEN_TTL":           "5m",
		"TEXTSQL_AUTH_PROVIDER_STUB":       "false",
	})
	cfg, err := Load("textsql-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "textsql-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[0] != "https://a.example" {
		t.Fatalf("HTTP.CORSOrigins = %#v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Catalog.DSN != "postgres://example" || cfg.Catalog.MaxOpenConns != 42 {
		t.Fatalf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.Store.DefaultPath != "/data/store.db" || !cfg.Store.ReadOnly {
		t.Fatalf("Store = %+v", cfg.Store)
	}
	if len(cfg.Store.AllowedStatements) != 2 || cfg.Store.AllowedStatements[1] != "with" {
		t.Fatalf("Store.AllowedStatements = %#v", cfg.Store.AllowedStatements)
	}
	if cfg.Upload.MaxBytes != 2048 {
		t.Fatalf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if !cfg.ObjectStore.Enabled || cfg.ObjectStore.Bucket != "uploads" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.AI.Enabled() || cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.SQLModel != "model-a" || cfg.AI.ChatModel != "model-b" {
		t.Fatalf("AI models = %q/%q", cfg.AI.SQLModel, cfg.AI.ChatModel)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.Auth.Secret != "s3cret" || cfg.Auth.TokenTTL != 5*time.Minute || cfg.Auth.ProviderStub {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
}

func TestLoadAcceptsUnprefixedFallbacks(t *testing.T) {
	cfg, err := Load("textsql-api", mapLookup(map[string]string{
		"GROQ_API_KEY": "groq-key",
		"SECRET_KEY":   "legacy-secret",
		"DATABASE_URL": "postgres://legacy",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "groq-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.Auth.Secret != "legacy-secret" {
		t.Fatalf("Auth.Secret = %q", cfg.Auth.Secret)
	}
	if cfg.Catalog.DSN != "postgres://legacy" {
		t.Fatalf("Catalog.DSN = %q", cfg.Catalog.DSN)
	}

	cfg, err = Load("textsql-api", mapLookup(map[string]string{
		"GROQ_API_KEY":       "groq-key",
		"TEXTSQL_AI_API_KEY": "prefixed-key",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "prefixed-key" {
		t.Fatalf("AI.APIKey = %q, want prefixed key to win", cfg.AI.APIKey)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"TEXTSQL_PROFILE": "oops"},
		{"TEXTSQL_HTTP_READ_TIMEOUT": "NaN"},
		{"TEXTSQL_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"TEXTSQL_STORE_READ_ONLY": "not-bool"},
		{"TEXTSQL_STORE_DEFAULT_PATH": ""},
		{"TEXTSQL_STORE_ALLOWED_STATEMENTS": "select;drop"},
		{"TEXTSQL_UPLOAD_MAX_BYTES": "-1"},
		{"TEXTSQL_AI_MAX_TOKENS": "0"},
		{"TEXTSQL_AUTH_SECRET": ""},
		{"TEXTSQL_AUTH_TOKEN_TTL": "0s"},
		{"TEXTSQL_OBJECTSTORE_ENABLED": "true", "TEXTSQL_OBJECTSTORE_BUCKET": ""},
		{"TEXTSQL_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("textsql-api", mapLookup(env))
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
