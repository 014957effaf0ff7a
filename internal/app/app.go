// Package app initializes and holds the long-lived services of one run, acting
// as a small dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/config"
	iduuid "github.com/JakeFAU/reverse411/internal/id/uuid"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/metrics"
	"github.com/JakeFAU/reverse411/internal/progress"
	"github.com/JakeFAU/reverse411/internal/progress/sinks"
	"github.com/JakeFAU/reverse411/internal/publisher/pubsub"
	"github.com/JakeFAU/reverse411/internal/storage"
	"github.com/JakeFAU/reverse411/internal/storage/postgres"
	"github.com/JakeFAU/reverse411/internal/store"
	"github.com/JakeFAU/reverse411/internal/telemetry"
)

// App holds the services shared by the resolve command.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   uuid.UUID
	archive lookup.BlobStore
	hub     *progress.Hub
	ledger  store.LedgerRepository

	closeArchive storage.Closer
	closeLedger  func()
	publisher    *pubsub.Publisher
	tracer       *sdktrace.TracerProvider
	closeOnce    sync.Once
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// RunID returns the identifier of this run.
func (a *App) RunID() uuid.UUID { return a.runID }

// Archive returns the page archive, or nil when archiving is off.
func (a *App) Archive() lookup.BlobStore { return a.archive }

// Events returns the progress emitter.
func (a *App) Events() progress.Emitter { return a.hub }

// Ledger returns the run ledger, or nil when db.dsn is empty.
func (a *App) Ledger() store.LedgerRepository { return a.ledger }

// NewApp builds every service the configuration asks for. It fails fast when
// an enabled dependency cannot be initialized. reg receives the progress
// collectors; nil means the default registry.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := iduuid.New().NewRawID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{cfg: cfg, logger: logger.With(zap.String("run_id", runID.String())), runID: runID}

	metrics.Init()

	a.tracer, err = telemetry.InitTracerProvider(ctx, runID.String())
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.archive, a.closeArchive, err = storage.NewArchive(ctx, cfg.Archive)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init archive: %w", err)
	}
	if a.archive != nil {
		a.logger.Info("archiving pages", zap.String("provider", cfg.Archive.Provider))
	}

	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger), promSink}

	if cfg.DB.DSN != "" {
		ledger, err := postgres.NewLedgerStore(ctx, postgres.LedgerStoreConfig{
			DSN:          cfg.DB.DSN,
			RunTable:     cfg.DB.RunTable,
			OutcomeTable: cfg.DB.OutcomeTable,
			MaxConns:     int32(cfg.DB.MaxConns), //nolint:gosec // validated small pool size
		})
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		a.closeLedger = ledger.Close
		if err := ledger.EnsureSchema(ctx); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
		a.ledger = ledger
		hubSinks = append(hubSinks, sinks.NewLedgerSink(ledger, a.logger))
		a.logger.Info("run ledger enabled", zap.String("table", cfg.DB.RunTable))
	}

	if cfg.PubSub.Enabled() {
		pub, err := pubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.publisher = pub
		hubSinks = append(hubSinks, sinks.NewPublishSink(pub, cfg.PubSub.TopicName, a.logger))
		a.logger.Info("publishing saved batches", zap.String("topic", cfg.PubSub.TopicName))
	}

	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait(),
		Logger:         a.logger,
	}, hubSinks...)

	return a, nil
}

// Close flushes progress sinks and releases every service. It is safe to call
// on a partially built App and more than once.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() { a.close(ctx) })
}

func (a *App) close(ctx context.Context) {
	var errs []error
	if a.hub != nil {
		errs = append(errs, a.hub.Close(ctx))
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.closeLedger != nil {
		a.closeLedger()
	}
	if a.closeArchive != nil {
		errs = append(errs, a.closeArchive())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
