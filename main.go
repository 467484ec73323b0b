package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	alertapp "thermo-cloud/internal/alerts/application"
	"thermo-cloud/internal/alerts/notify"
	analytics "thermo-cloud/internal/analytics/application"
	"thermo-cloud/internal/auth"
	"thermo-cloud/internal/cache"
	"thermo-cloud/internal/config"
	"thermo-cloud/internal/eventbus"
	"thermo-cloud/internal/logging"
	"thermo-cloud/internal/observability/metrics"
	readingsapp "thermo-cloud/internal/readings/application"
	"thermo-cloud/internal/readings/application/events"
	readings "thermo-cloud/internal/readings/domain"
	"thermo-cloud/internal/readings/infrastructure/memory"
	readingspostgres "thermo-cloud/internal/readings/infrastructure/postgres"
	readingssqlite "thermo-cloud/internal/readings/infrastructure/sqlite"
	readingshttp "thermo-cloud/internal/readings/interfaces/http"
	"thermo-cloud/internal/readings/interfaces/legacy"
	readingsmqtt "thermo-cloud/internal/readings/interfaces/mqtt"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.Log.Format, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer repo.Close()
	metrics.Init(repo)

	queryCache, closeCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	bus := eventbus.NewInMemoryBus()
	svcOpts := []readingsapp.ServiceOption{
		readingsapp.WithLocation(loc),
		readingsapp.WithLogger(logging.Component(logger, "readings")),
	}
	ingestService, err := readingsapp.NewIngestService(repo, queryCache, bus, svcOpts...)
	if err != nil {
		return err
	}
	engine, err := analytics.NewEngine(repo, loc, logging.Component(logger, "analytics"))
	if err != nil {
		return err
	}
	queryService, err := readingsapp.NewQueryService(repo, queryCache, engine, svcOpts...)
	if err != nil {
		return err
	}

	broker := readingshttp.NewSSEBroker(loc)
	eventbus.SubscribeTyped[events.ReadingRecorded](bus, broker.HandleReadingRecorded)

	notifiers := []alertapp.AlertNotifier{broker}
	if cfg.Alerts.WebhookURL != "" {
		webhook, err := buildWebhookNotifier(cfg.Alerts.WebhookURL, logger)
		if err != nil {
			return err
		}
		defer webhook.Close()
		notifiers = append(notifiers, webhook)
	}
	alertService, err := alertapp.NewService(
		cfg.Alerts.Rules,
		alertapp.WithNotifier(notify.NewMultiNotifier(notifiers...)),
		alertapp.WithCooldown(cfg.Alerts.Cooldown),
		alertapp.WithLocation(loc),
		alertapp.WithLogger(logging.Component(logger, "alerts")),
	)
	if err != nil {
		return err
	}
	eventbus.SubscribeTyped[events.ReadingRecorded](bus, alertService.HandleReadingRecorded)

	handler, err := readingshttp.NewHandler(
		ingestService,
		queryService,
		readingshttp.WithAlertHistory(alertService),
		readingshttp.WithLogger(logging.Component(logger, "http")),
	)
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.JWTSecret, cfg.Auth.BasicUser, cfg.Auth.BasicPassword)
	if err != nil {
		return err
	}
	authMiddleware := auth.NewMiddleware(verifier, auth.NewDefaultPolicy(
		[]string{"/submit", "/healthz", "/metrics", "/api/health"},
		nil,
	))

	var submitHandler http.Handler = handler
	if cfg.Auth.IngestHMACSecret != "" {
		submitHandler = auth.NewIngestAuthMiddleware([]byte(cfg.Auth.IngestHMACSecret), cfg.IngestMaxSkew()).Wrap(handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/submit", submitHandler)
	mux.Handle("/api/data", handler)
	mux.Handle("/api/stats", handler)
	mux.Handle("/api/health", handler)
	mux.Handle("/api/export", handler)
	mux.Handle("/api/report.pdf", handler)
	mux.Handle("/api/alerts", handler)
	mux.Handle("/api/stream", readingshttp.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.MQTT.Broker != "" {
		subscriber, err := readingsmqtt.NewSubscriber(readingsmqtt.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		}, ingestService, logging.Component(logger, "mqtt"))
		if err != nil {
			return err
		}
		if err := subscriber.Start(); err != nil {
			return err
		}
		defer subscriber.Close()
	}

	if cfg.LegacyLogDir != "" {
		importer, err := legacy.NewImporter(cfg.LegacyLogDir, ingestService, logging.Component(logger, "legacy"))
		if err != nil {
			return err
		}
		go func() {
			result, err := importer.Run(ctx)
			if err != nil {
				logger.Error("legacy import aborted", "error", err)
				return
			}
			logger.Info("legacy import finished", "files", result.Files, "imported", result.Imported, "rejected", result.Rejected, "failed", result.Failed)
		}()
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logging.Component(logger, "access")),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(broker.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "storage", cfg.Storage.Driver, "cache", cfg.Cache.Backend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openRepository(ctx context.Context, cfg config.Config, loc *time.Location) (readings.ReadingRepository, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.NewReadingRepository(), nil
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		repo := readingspostgres.NewReadingRepository(db, readingspostgres.WithLocation(loc))
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return repo, nil
	default:
		return readingssqlite.Open(cfg.Storage.SQLitePath, readingssqlite.WithLocation(loc))
	}
}

func buildCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (*cache.Cache, func(), error) {
	opts := []cache.Option{cache.WithLogger(logging.Component(logger, "cache"))}
	closeFn := func() {}
	if cfg.Cache.Backend == config.CacheRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		backend, err := cache.NewRedisBackend(client, "")
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		opts = append(opts, cache.WithBackend(backend))
		closeFn = func() { _ = backend.Close() }
	}
	return cache.New(cfg.Cache.TTL, opts...), closeFn, nil
}

func buildWebhookNotifier(url string, logger *slog.Logger) (*notify.Notifier, error) {
	channel, err := notify.NewWebhookChannel(url)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate("")
	if err != nil {
		return nil, err
	}
	return notify.NewNotifier(channel, tpl, notify.WithLogger(logging.Component(logger, "notify")))
}

func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working behind the access log.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
