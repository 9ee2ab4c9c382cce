package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/api"
	"github.com/LeventeLantos/messaging-ingest/internal/blob"
	"github.com/LeventeLantos/messaging-ingest/internal/cache"
	"github.com/LeventeLantos/messaging-ingest/internal/client"
	"github.com/LeventeLantos/messaging-ingest/internal/config"
	"github.com/LeventeLantos/messaging-ingest/internal/identity"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
	"github.com/LeventeLantos/messaging-ingest/internal/scheduler"
	"github.com/LeventeLantos/messaging-ingest/internal/service"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("messaging-ingest stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	var msgCache cache.MessageCache = cache.NopCache{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		msgCache = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	store, media, err := newBlobStore(cfg.Blob, cfg.Gateway.MediaTimeout)
	if err != nil {
		return err
	}

	instances := repo.NewPostgresInstanceRepo(db)
	messages := repo.NewPostgresMessageRepo(db)
	warming := repo.NewPostgresWarmingRepo(db)

	gw := client.NewGatewayClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.MediaTimeout, cfg.Gateway.MediaMaxBytes)

	ingestor := service.NewIngestor(
		&identity.Resolver{CountryCode: cfg.Ingest.CountryCode, Log: log},
		service.NewContactReconciler(repo.NewPostgresContactRepo(db), cfg.Ingest.CountryCode, log),
		service.NewConversationManager(repo.NewPostgresConversationRepo(db), cfg.Ingest.PreviewMax),
		service.NewMediaMaterializer(gw, store, cfg.Gateway.MediaMaxBytes, log),
		service.NewMessageWriter(messages),
		msgCache,
		log,
	)
	ingestor.Subscribe(service.NewEngagementDetector(warming, cfg.Ingest.CountryCode, log))

	var notifier *service.Notifier
	if cfg.Agent.URL != "" {
		notifier = service.NewNotifier(client.NewAgentClient(cfg.Agent.URL, cfg.Agent.Token, cfg.Agent.Timeout), cfg.Agent.Timeout, log)
		ingestor.Subscribe(notifier)
	}

	router := service.NewEventRouter(instances, ingestor, service.NewStatusMapper(messages, log), log)

	sched, err := scheduler.New(cfg.Warming.ResetCron, func(ctx context.Context) {
		n, err := warming.ResetDailyCounters(ctx)
		if err != nil {
			log.Error("warming reset failed", slog.Any("err", err))
			return
		}
		log.Info("warming counters reset", slog.Int64("schedules", n))
	}, log)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start()

	h := api.NewHandler(router, sched, cfg.Server.WebhookTimeout, log)
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins, Media: media})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("messaging-ingest starting",
		slog.String("addr", cfg.Server.Address),
		slog.String("blob_driver", cfg.Blob.Driver),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("agent", notifier != nil),
		slog.String("warming_reset", cfg.Warming.ResetCron),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WebhookTimeout+5*time.Second)
		defer cancel()

		sched.Stop()
		err := srv.Shutdown(shutdownCtx)
		if notifier != nil {
			notifier.Wait()
		}
		log.Info("messaging-ingest stopped")
		return err
	})

	return g.Wait()
}

// newBlobStore returns the configured store and, for the filesystem driver,
// the handler that serves its public URLs.
func newBlobStore(cfg config.BlobConfig, timeout time.Duration) (blob.Store, http.Handler, error) {
	if cfg.Driver == config.BlobDriverHTTP {
		return blob.NewHTTPStore(cfg.HTTPURL, cfg.Bucket, cfg.Token, timeout), nil, nil
	}
	fs, err := blob.NewFSStore(cfg.FSRoot, cfg.PublicURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open media store: %w", err)
	}
	return fs, fs.Handler(), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
