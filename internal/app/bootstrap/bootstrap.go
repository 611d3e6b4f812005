package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	ballotengine "quorum/contexts/election-core/ballot-engine"
	ballotpostgres "quorum/contexts/election-core/ballot-engine/adapters/postgres"
	ballotworkers "quorum/contexts/election-core/ballot-engine/application/workers"
	tallyengine "quorum/contexts/election-core/tally-engine"
	tallypostgres "quorum/contexts/election-core/tally-engine/adapters/postgres"
	tallycommands "quorum/contexts/election-core/tally-engine/application/commands"
	tallyworkers "quorum/contexts/election-core/tally-engine/application/workers"
	"quorum/internal/platform/config"
	"quorum/internal/platform/db"
	"quorum/internal/platform/httpserver"
	"quorum/internal/platform/messaging"
	"quorum/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres *db.Postgres
	reaper   ballotworkers.GraceReaper
	relay    ballotworkers.OutboxRelay
	consumer tallyworkers.VoteConfirmedConsumer
	cutter   tallyworkers.DeltaCutter

	enableReaper bool
	enableRelay  bool
	enableCutter bool

	reaperInterval time.Duration
	outboxInterval time.Duration
	cutterInterval time.Duration
	logger         *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	ballotRepo := ballotpostgres.NewRepository(pg.DB, logger)
	ballotModule := ballotengine.NewModule(ballotengine.Dependencies{
		Votes:              ballotRepo,
		Clock:              ballotpostgres.SystemClock{},
		IDGen:              ballotpostgres.UUIDGenerator{},
		DefaultGracePeriod: cfg.DefaultGracePeriod,
		Logger:             logger,
	})

	tallyRepo := tallypostgres.NewRepository(pg.DB, logger)
	tallyModule := tallyengine.NewModule(tallyengine.Dependencies{
		Tallies: tallyRepo,
		Configs: tallyRepo,
		Clock:   tallypostgres.SystemClock{},
		Logger:  logger,
	})

	server := httpserver.New(ballotModule, tallyModule, metrics.New(), logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
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

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	bus := messaging.NewBus(logger)
	ballotRepo := ballotpostgres.NewRepository(pg.DB, logger)
	tallyRepo := tallypostgres.NewRepository(pg.DB, logger)

	return &WorkerApp{
		postgres: pg,
		reaper: ballotworkers.GraceReaper{
			Votes:     ballotRepo,
			Clock:     ballotpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		relay: ballotworkers.OutboxRelay{
			Outbox:    ballotRepo,
			Publisher: bus,
			Clock:     ballotpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		consumer: tallyworkers.VoteConfirmedConsumer{
			Subscriber: bus,
			Dedup:      tallyRepo,
			Aggregator: tallycommands.TallyAggregatorUseCase{
				Tallies: tallyRepo,
				Clock:   tallypostgres.SystemClock{},
				Logger:  logger,
			},
			Clock:         tallypostgres.SystemClock{},
			ConsumerGroup: cfg.TallyConsumerGroup,
			DedupTTL:      7 * 24 * time.Hour,
			Disabled:      !cfg.EnableConfirmConsumer,
			Logger:        logger,
		},
		cutter: tallyworkers.DeltaCutter{
			Tallies: tallyRepo,
			Configs: tallyRepo,
			Clock:   tallypostgres.SystemClock{},
			Logger:  logger,
		},
		enableReaper:   cfg.EnableGraceReaper,
		enableRelay:    cfg.EnableOutboxRelay,
		enableCutter:   cfg.EnableDeltaCutter,
		reaperInterval: cfg.ReaperInterval,
		outboxInterval: cfg.OutboxInterval,
		cutterInterval: cfg.DeltaCutInterval,
		logger:         logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run starts the consumer subscription and the periodic loops. Loops stop
// cleanly on context cancellation; no finalization is lost across restarts
// because the reaper re-scans persisted pending votes and the outbox is
// persistent.
func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.consumer.Start(ctx); err != nil {
		return err
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"reaper_interval", w.reaperInterval.String(),
		"outbox_interval", w.outboxInterval.String(),
		"cutter_interval", w.cutterInterval.String(),
	)

	group, ctx := errgroup.WithContext(ctx)
	if w.enableReaper {
		group.Go(func() error {
			return runLoop(ctx, w.reaperInterval, w.reaper.RunOnce)
		})
	}
	if w.enableRelay {
		group.Go(func() error {
			return runLoop(ctx, w.outboxInterval, w.relay.RunOnce)
		})
	}
	if w.enableCutter {
		group.Go(func() error {
			return runLoop(ctx, w.cutterInterval, w.cutter.RunOnce)
		})
	}
	return group.Wait()
}

func runLoop(ctx context.Context, interval time.Duration, pass func(context.Context) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := pass(ctx); err != nil {
			return err
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
