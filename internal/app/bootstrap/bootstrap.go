package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	commitrevealvoting "commitreveal/contexts/governance/commit-reveal-voting"
	"commitreveal/contexts/governance/commit-reveal-voting/adapters/memory"
	postgresadapter "commitreveal/contexts/governance/commit-reveal-voting/adapters/postgres"
	workerapp "commitreveal/contexts/governance/commit-reveal-voting/application/workers"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
	"commitreveal/internal/platform/config"
	"commitreveal/internal/platform/db"
	"commitreveal/internal/platform/httpserver"
	"commitreveal/internal/platform/messaging"
	"commitreveal/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const moduleName = "internal/app/bootstrap"

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	// worker is set when the API runs on the in-memory store and therefore
	// has to drain its own outbox.
	worker *WorkerApp
	logger *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	announcer    workerapp.ResultAnnouncer
	pollInterval time.Duration
	logger       *slog.Logger
}

// backend is the set of ports a process needs from its storage choice.
type backend struct {
	sessions    ports.SessionRepository
	idempotency ports.IdempotencyStore
	outboxW     ports.OutboxWriter
	outboxR     ports.OutboxRepository
	dedup       ports.EventDedupStore
	clock       ports.Clock
	idGen       ports.IDGenerator
	postgres    *db.Postgres
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	be, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		votingMetrics  ports.VotingMetrics
		metricsHandler http.Handler
	)
	if cfg.EnableMetrics {
		m := metrics.NewVoting(strings.ReplaceAll(cfg.ServiceName, "-", "_"))
		votingMetrics = m
		metricsHandler = m.Handler()
	}

	module := commitrevealvoting.NewModule(commitrevealvoting.Dependencies{
		Sessions:       be.sessions,
		Idempotency:    be.idempotency,
		Outbox:         be.outboxW,
		Metrics:        votingMetrics,
		Clock:          be.clock,
		IDGen:          be.idGen,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger,
	})

	app := &APIApp{
		server:   httpserver.New(module, metricsHandler, logger, normalizeAddr(cfg.HTTPPort)),
		postgres: be.postgres,
		logger:   logger,
	}
	if be.postgres == nil {
		worker, err := newWorkerApp(cfg, be, logger)
		if err != nil {
			return nil, err
		}
		app.worker = worker
	}
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	be, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newWorkerApp(cfg, be, logger)
}

func openBackend(cfg config.Config, logger *slog.Logger) (backend, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory store",
			"event", "bootstrap_memory_store_selected",
			"module", moduleName,
			"layer", "platform",
		)
		store := memory.NewStore(nil)
		return backend{
			sessions:    store,
			idempotency: store,
			outboxW:     store,
			outboxR:     store,
			dedup:       store,
			clock:       store,
			idGen:       store,
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PostgresConnectTimeout+30*time.Second)
	defer cancel()
	pg, err := db.Connect(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxOpenConns:   cfg.PostgresMaxOpenConns,
		ConnectTimeout: cfg.PostgresConnectTimeout,
	}, logger)
	if err != nil {
		return backend{}, err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(ctx); err != nil {
		_ = pg.Close()
		return backend{}, err
	}
	return backend{
		sessions:    repo,
		idempotency: repo,
		outboxW:     repo,
		outboxR:     repo,
		dedup:       repo,
		clock:       postgresadapter.SystemClock{},
		idGen:       postgresadapter.UUIDGenerator{},
		postgres:    pg,
	}, nil
}

func newWorkerApp(cfg config.Config, be backend, logger *slog.Logger) (*WorkerApp, error) {
	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		postgres: be.postgres,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:      be.outboxR,
			Publisher:   kafka,
			Clock:       be.clock,
			BatchSize:   cfg.OutboxBatchSize,
			TopicPrefix: cfg.EventTopicPrefix,
			Logger:      logger,
		},
		announcer: workerapp.ResultAnnouncer{
			Subscriber:    kafka,
			Dedup:         be.dedup,
			Sessions:      be.sessions,
			Outbox:        be.outboxW,
			Clock:         be.clock,
			IDGen:         be.idGen,
			ConsumerGroup: "commit-reveal-result-announcer-cg",
			TopicPrefix:   cfg.EventTopicPrefix,
			DedupTTL:      7 * 24 * time.Hour,
			Disabled:      !cfg.EnableResultAnnouncer,
			Logger:        logger,
		},
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", moduleName,
		"layer", "platform",
		"embedded_worker", a.worker != nil,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.worker != nil {
		group.Go(func() error {
			return a.worker.Run(groupCtx)
		})
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.announcer.Start(ctx); err != nil {
		return err
	}

	pollInterval := w.pollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", moduleName,
		"layer", "platform",
		"poll_interval", pollInterval.String(),
	)

	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("outbox relay cycle failed",
				"event", "bootstrap_worker_relay_failed",
				"module", moduleName,
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
