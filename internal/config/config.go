package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Blob     BlobConfig
	Agent    AgentConfig
	Ingest   IngestConfig
	Warming  WarmingConfig
	LogLevel slog.Level
}

type ServerConfig struct {
	Address        string
	WebhookTimeout time.Duration
	AllowedOrigins string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type GatewayConfig struct {
	URL           string
	APIKey        string
	MediaTimeout  time.Duration
	MediaMaxBytes int64
}

const (
	BlobDriverFS   = "fs"
	BlobDriverHTTP = "http"
)

type BlobConfig struct {
	Driver    string
	FSRoot    string
	PublicURL string
	HTTPURL   string
	Bucket    string
	Token     string
}

// AgentConfig describes the auto-reply trigger. An empty URL disables it.
type AgentConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type IngestConfig struct {
	CountryCode string
	PreviewMax  int
}

type WarmingConfig struct {
	ResetCron string
}

// LoadAll reads the whole configuration from the environment. Every problem
// found is reported in the returned error, not only the first one.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	postgresURL, err := requireEnv("POSTGRES_URL")
	collect(err)
	gatewayURL, err := requireEnv("GATEWAY_URL")
	collect(err)

	webhookTimeout, err := getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 25)
	collect(err)
	mediaTimeout, err := getEnvInt("MEDIA_FETCH_TIMEOUT_SECONDS", 20)
	collect(err)
	mediaMax, err := getEnvInt("MEDIA_MAX_BYTES", 32<<20)
	collect(err)
	agentTimeout, err := getEnvInt("AGENT_TIMEOUT_SECONDS", 10)
	collect(err)
	previewMax, err := getEnvInt("PREVIEW_MAX", 100)
	collect(err)

	redisCfg, err := loadRedisConfig()
	collect(err)

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)

	cfg := &Config{
		Server: ServerConfig{
			Address:        getEnv("SERVER_ADDRESS", ":8080"),
			WebhookTimeout: time.Duration(webhookTimeout) * time.Second,
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Redis: redisCfg,
		Gateway: GatewayConfig{
			URL:           strings.TrimRight(gatewayURL, "/"),
			APIKey:        os.Getenv("GATEWAY_API_KEY"),
			MediaTimeout:  time.Duration(mediaTimeout) * time.Second,
			MediaMaxBytes: int64(mediaMax),
		},
		Blob: BlobConfig{
			Driver:    strings.ToLower(getEnv("BLOB_DRIVER", BlobDriverFS)),
			FSRoot:    getEnv("BLOB_FS_ROOT", "data/media"),
			PublicURL: strings.TrimRight(getEnv("BLOB_PUBLIC_URL", "http://localhost:8080/media"), "/"),
			HTTPURL:   strings.TrimRight(os.Getenv("BLOB_HTTP_URL"), "/"),
			Bucket:    getEnv("BLOB_HTTP_BUCKET", "whatsapp-media"),
			Token:     os.Getenv("BLOB_HTTP_TOKEN"),
		},
		Agent: AgentConfig{
			URL:     os.Getenv("AGENT_URL"),
			Token:   os.Getenv("AGENT_TOKEN"),
			Timeout: time.Duration(agentTimeout) * time.Second,
		},
		Ingest: IngestConfig{
			CountryCode: getEnv("DEFAULT_COUNTRY_CODE", "55"),
			PreviewMax:  previewMax,
		},
		Warming: WarmingConfig{
			ResetCron: getEnv("WARMING_RESET_CRON", "0 0 * * *"),
		},
		LogLevel: level,
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, dbErr := getEnvInt("REDIS_DB", 0)
	ttl, ttlErr := getEnvInt("REDIS_TTL_SECONDS", 86400)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errors.Join(dbErr, ttlErr)
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Server.WebhookTimeout <= 0 {
		errs = append(errs, errors.New("WEBHOOK_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Gateway.MediaTimeout <= 0 {
		errs = append(errs, errors.New("MEDIA_FETCH_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Gateway.MediaMaxBytes <= 0 {
		errs = append(errs, errors.New("MEDIA_MAX_BYTES must be > 0"))
	}
	if cfg.Agent.Timeout <= 0 {
		errs = append(errs, errors.New("AGENT_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Ingest.PreviewMax <= 0 {
		errs = append(errs, errors.New("PREVIEW_MAX must be > 0"))
	}
	if _, err := strconv.ParseUint(cfg.Ingest.CountryCode, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_COUNTRY_CODE must be numeric: %q", cfg.Ingest.CountryCode))
	}
	switch cfg.Blob.Driver {
	case BlobDriverFS:
	case BlobDriverHTTP:
		if cfg.Blob.HTTPURL == "" {
			errs = append(errs, errors.New("BLOB_HTTP_URL is required when BLOB_DRIVER=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_DRIVER must be %q or %q, got %q", BlobDriverFS, BlobDriverHTTP, cfg.Blob.Driver))
	}
	if _, err := cron.ParseStandard(cfg.Warming.ResetCron); err != nil {
		errs = append(errs, fmt.Errorf("WARMING_RESET_CRON invalid: %w", err))
	}
	return errs
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw, err)
	}
	return level, nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
