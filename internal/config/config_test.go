package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("GATEWAY_URL", "https://gateway.example.com/")
}

func TestLoadAll_HappyPath_NoRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if cfg.Gateway.URL != "https://gateway.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Gateway.URL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Server.WebhookTimeout != 25*time.Second {
		t.Fatalf("unexpected WebhookTimeout default: %v", cfg.Server.WebhookTimeout)
	}
	if cfg.Gateway.MediaTimeout != 20*time.Second {
		t.Fatalf("unexpected MediaTimeout default: %v", cfg.Gateway.MediaTimeout)
	}
	if cfg.Agent.Timeout != 10*time.Second {
		t.Fatalf("unexpected Agent.Timeout default: %v", cfg.Agent.Timeout)
	}
	if cfg.Agent.URL != "" {
		t.Fatalf("expected agent disabled by default, got %q", cfg.Agent.URL)
	}
	if cfg.Ingest.CountryCode != "55" {
		t.Fatalf("unexpected CountryCode default: %q", cfg.Ingest.CountryCode)
	}
	if cfg.Ingest.PreviewMax != 100 {
		t.Fatalf("unexpected PreviewMax default: %d", cfg.Ingest.PreviewMax)
	}
	if cfg.Blob.Driver != BlobDriverFS {
		t.Fatalf("unexpected Blob.Driver default: %q", cfg.Blob.Driver)
	}
	if cfg.Warming.ResetCron != "0 0 * * *" {
		t.Fatalf("unexpected ResetCron default: %q", cfg.Warming.ResetCron)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel default: %v", cfg.LogLevel)
	}

	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_HappyPath_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	t.Run("missing POSTGRES_URL", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("GATEWAY_URL", "https://gateway.example.com")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "POSTGRES_URL") {
			t.Fatalf("expected error mentioning POSTGRES_URL, got: %v", err)
		}
	})

	t.Run("missing GATEWAY_URL", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "GATEWAY_URL") {
			t.Fatalf("expected error mentioning GATEWAY_URL, got: %v", err)
		}
	})

	t.Run("both missing are reported together", func(t *testing.T) {
		clearTestEnv(t)

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "POSTGRES_URL") || !strings.Contains(err.Error(), "GATEWAY_URL") {
			t.Fatalf("expected both keys in error, got: %v", err)
		}
	})
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid WEBHOOK_TIMEOUT_SECONDS", "WEBHOOK_TIMEOUT_SECONDS", "abc"},
		{"invalid MEDIA_FETCH_TIMEOUT_SECONDS", "MEDIA_FETCH_TIMEOUT_SECONDS", "nope"},
		{"invalid AGENT_TIMEOUT_SECONDS", "AGENT_TIMEOUT_SECONDS", "x"},
		{"invalid PREVIEW_MAX", "PREVIEW_MAX", "many"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REDIS_TTL_SECONDS", "REDIS_TTL_SECONDS", "bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)

			// Enable redis only for redis-related invalid ints.
			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}

			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		set  func(t *testing.T)
		want string
	}{
		{
			name: "webhook timeout <= 0",
			set:  func(t *testing.T) { t.Setenv("WEBHOOK_TIMEOUT_SECONDS", "0") },
			want: "WEBHOOK_TIMEOUT_SECONDS",
		},
		{
			name: "preview max <= 0",
			set:  func(t *testing.T) { t.Setenv("PREVIEW_MAX", "0") },
			want: "PREVIEW_MAX",
		},
		{
			name: "non numeric country code",
			set:  func(t *testing.T) { t.Setenv("DEFAULT_COUNTRY_CODE", "+55") },
			want: "DEFAULT_COUNTRY_CODE",
		},
		{
			name: "unknown blob driver",
			set:  func(t *testing.T) { t.Setenv("BLOB_DRIVER", "s3") },
			want: "BLOB_DRIVER",
		},
		{
			name: "http blob driver without url",
			set:  func(t *testing.T) { t.Setenv("BLOB_DRIVER", "http") },
			want: "BLOB_HTTP_URL",
		},
		{
			name: "bad cron",
			set:  func(t *testing.T) { t.Setenv("WARMING_RESET_CRON", "every day") },
			want: "WARMING_RESET_CRON",
		},
		{
			name: "bad log level",
			set:  func(t *testing.T) { t.Setenv("LOG_LEVEL", "loud") },
			want: "LOG_LEVEL",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)
			tc.set(t)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoadAll_CronWithTimezone(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)
	t.Setenv("WARMING_RESET_CRON", "CRON_TZ=UTC 0 0 * * *")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if cfg.Warming.ResetCron != "CRON_TZ=UTC 0 0 * * *" {
		t.Fatalf("unexpected ResetCron: %q", cfg.Warming.ResetCron)
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"POSTGRES_URL",
		"GATEWAY_URL",
		"GATEWAY_API_KEY",
		"SERVER_ADDRESS",
		"WEBHOOK_TIMEOUT_SECONDS",
		"MEDIA_FETCH_TIMEOUT_SECONDS",
		"MEDIA_MAX_BYTES",
		"AGENT_URL",
		"AGENT_TOKEN",
		"AGENT_TIMEOUT_SECONDS",
		"PREVIEW_MAX",
		"DEFAULT_COUNTRY_CODE",
		"BLOB_DRIVER",
		"BLOB_HTTP_URL",
		"WARMING_RESET_CRON",
		"LOG_LEVEL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
