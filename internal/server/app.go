// Package server builds the application's dependency graph and runs the HTTP
// service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/accounts"
	"github.com/JakeFAU/bulkgen/internal/api"
	"github.com/JakeFAU/bulkgen/internal/clock/system"
	"github.com/JakeFAU/bulkgen/internal/config"
	"github.com/JakeFAU/bulkgen/internal/counters"
	"github.com/JakeFAU/bulkgen/internal/export"
	"github.com/JakeFAU/bulkgen/internal/hash/sha256"
	"github.com/JakeFAU/bulkgen/internal/id/uuid"
	"github.com/JakeFAU/bulkgen/internal/job"
	"github.com/JakeFAU/bulkgen/internal/logbridge"
	"github.com/JakeFAU/bulkgen/internal/logging"
	"github.com/JakeFAU/bulkgen/internal/metrics"
	"github.com/JakeFAU/bulkgen/internal/policy/ratelimit"
	"github.com/JakeFAU/bulkgen/internal/progress"
	progresssinks "github.com/JakeFAU/bulkgen/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/bulkgen/internal/publisher/pubsub"
	"github.com/JakeFAU/bulkgen/internal/stats"
	"github.com/JakeFAU/bulkgen/internal/storage"
	gcsstorage "github.com/JakeFAU/bulkgen/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bulkgen/internal/storage/local"
	memorystorage "github.com/JakeFAU/bulkgen/internal/storage/memory"
	pgstore "github.com/JakeFAU/bulkgen/internal/storage/postgres"
	"github.com/JakeFAU/bulkgen/internal/telemetry"
	"github.com/JakeFAU/bulkgen/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	bridge      *logbridge.Bridge
	counters    *counters.Registry
	supervisor  *job.Supervisor
	stats       *stats.Aggregator
	apiServer   *api.Server
	progressHub *progress.Hub

	accounts  accounts.Store
	gcs       *gcsstorage.BlobStore
	publisher *gcppublisher.Publisher
	runStore  *pgstore.RunStore
	tracer    *sdktrace.TracerProvider

	closeOnce sync.Once
	closeErr  error
}

// Option customizes Build.
type Option func(*App)

// WithRegisterer registers collectors against reg instead of the default
// Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.registerer = reg
	}
}

// WithLogger uses logger instead of building one from cfg.Logging. The log
// bridge is not teed into a supplied logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// Bridge returns the dashboard log buffer.
func (a *App) Bridge() *logbridge.Bridge { return a.bridge }

// Supervisor returns the job supervisor.
func (a *App) Supervisor() *job.Supervisor { return a.supervisor }

// Stats returns the snapshot aggregator.
func (a *App) Stats() *stats.Aggregator { return a.stats }

// Accounts returns the account store.
func (a *App) Accounts() accounts.Store { return a.accounts }

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP and blocks until ctx is canceled or a termination signal
// arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve http: %w", err)
	}
	return closeErr
}

// Close stops any running job and releases infrastructure. Later calls return
// the first call's result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close(ctx)
	})
	return a.closeErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.supervisor != nil {
		a.supervisor.Stop()
		if err := a.supervisor.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	app.bridge = logbridge.New(logbridge.Config{Capacity: cfg.Bridge.Capacity})
	if app.logger == nil {
		logger, err := logging.New(logging.Options{
			Development:   cfg.Logging.Development,
			Level:         cfg.Logging.Level,
			Bridge:        app.bridge,
			BridgeLevel:   cfg.Logging.BridgeLevel,
			BridgeExclude: cfg.Logging.BridgeExclude,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		zap.ReplaceGlobals(logger)
	}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("accounts_backend", cfg.Accounts.Backend),
		zap.String("export_backend", cfg.Export.Backend),
	)

	metrics.Init()
	if err := metrics.RegisterBridge(app.registerer, app.bridge); err != nil {
		return nil, fmt.Errorf("bridge metrics init failed: %w", err)
	}

	built := false
	defer func() {
		if !built {
			_ = app.Close(ctx) //nolint:errcheck // partial build cleanup
		}
	}()

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     cfg.Telemetry.Version,
			ProjectID:   cfg.Telemetry.ProjectID,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		app.tracer = tp
	}

	var err error
	if app.accounts, err = setupAccounts(app); err != nil {
		return nil, err
	}
	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	if err = setupPublisher(ctx, app); err != nil {
		return nil, err
	}
	if err = setupProgress(ctx, app); err != nil {
		return nil, err
	}
	if err = setupSupervisor(ctx, app); err != nil {
		return nil, err
	}

	clock := system.New()
	exporter, err := export.New(app.accounts, blobStore, sha256.New(), clock, export.Config{
		Prefix:     cfg.Export.Prefix,
		FilePrefix: cfg.Export.FilePrefix,
	}, app.logger.Named("export"))
	if err != nil {
		return nil, fmt.Errorf("exporter init failed: %w", err)
	}
	app.stats = stats.New(app.counters, app.supervisor, clock)

	deps := api.Deps{
		Jobs:     app.supervisor,
		Stats:    app.stats,
		Logs:     app.bridge,
		Accounts: app.accounts,
		Exporter: exporter,
		Defaults: cfg.Job.Defaults(),
		Auth:     cfg.Auth,
		Logger:   app.logger.Named("api"),
	}
	if app.runStore != nil {
		deps.Runs = app.runStore
		deps.Ready = app.runStore.Ping
	}
	app.apiServer = api.NewServer(deps)

	built = true
	return app, nil
}

func setupAccounts(app *App) (accounts.Store, error) {
	switch app.cfg.Accounts.Backend {
	case config.BackendFilesystem:
		store, err := accounts.NewFileStore(app.cfg.Accounts.Dir)
		if err != nil {
			return nil, fmt.Errorf("account store init failed: %w", err)
		}
		app.logger.Info("using filesystem account store", zap.String("dir", store.BaseDir()))
		return store, nil
	default:
		app.logger.Info("using in-memory account store")
		return accounts.NewMemoryStore(), nil
	}
}

func setupStorage(ctx context.Context, app *App) (storage.BlobStore, error) {
	switch app.cfg.Export.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS export backend", zap.String("bucket", app.cfg.Export.Bucket))
		blobs, err := gcsstorage.Dial(ctx, gcsstorage.Config{
			Bucket:       app.cfg.Export.Bucket,
			CacheControl: app.cfg.Export.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.gcs = blobs
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Export.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local export backend", zap.String("path", app.cfg.Export.BaseDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory export backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("no DSN specified for database, run history disabled")
		return nil
	}
	runStore, err := pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{
		DSN:             app.cfg.DB.DSN,
		Table:           app.cfg.DB.Table,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
		AutoMigrate:     app.cfg.DB.AutoMigrate,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	app.runStore = runStore
	app.logger.Info("run store initialized", zap.String("table", app.cfg.DB.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub project configured, notifications disabled")
		return nil
	}
	pub, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.publisher = pub
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("run_topic", app.cfg.PubSub.RunTopic),
		zap.String("account_topic", app.cfg.PubSub.AccountTopic),
	)
	return nil
}

func setupProgress(ctx context.Context, app *App) error {
	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewLogSink(app.logger.Named("progress.log")),
	}
	if app.runStore != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(app.runStore, app.logger.Named("progress.store")))
		app.logger.Debug("added progress store sink")
	}
	if app.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(app.publisher, progresssinks.PublishSinkConfig{
			RunTopic:     app.cfg.PubSub.RunTopic,
			AccountTopic: app.cfg.PubSub.AccountTopic,
		}, app.logger.Named("progress.publish")))
		app.logger.Debug("added progress publish sink")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Progress.MaxBatchWait,
		SinkTimeout:    app.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress.hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func setupSupervisor(ctx context.Context, app *App) error {
	synthCfg := worker.SimulatedConfig{
		Seed:                  app.cfg.Synth.Seed,
		Latency:               app.cfg.Synth.Latency,
		CoupleRate:            app.cfg.Synth.CoupleRate,
		ActivationFailureRate: app.cfg.Synth.ActivationFailureRate,
		ErrorRate:             app.cfg.Synth.ErrorRate,
	}
	if app.cfg.Synth.Diagnostics {
		synthCfg.Diagnostics = app.bridge.Writer(os.Stderr)
	}

	var pacer worker.Pacer
	if app.cfg.RateLimit.RPS > 0 {
		pacer = ratelimit.New(ratelimit.Config{
			RPS:       app.cfg.RateLimit.RPS,
			Burst:     app.cfg.RateLimit.Burst,
			PerRegion: app.cfg.RateLimit.PerRegion,
			Observer:  metrics.ObserveRateLimitDelay,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", app.cfg.RateLimit.RPS),
			zap.Int("burst", app.cfg.RateLimit.Burst),
		)
	}

	app.counters = counters.New()
	sup, err := job.NewSupervisor(job.Options{
		Counters:     app.counters,
		Events:       app.bridge,
		Synth:        worker.NewSimulated(synthCfg),
		Accounts:     app.accounts,
		Progress:     app.progressHub,
		Pacer:        pacer,
		Clock:        system.New(),
		IDs:          uuid.New(),
		Logger:       app.logger.Named("job"),
		BaseContext:  context.WithoutCancel(ctx),
		PollInterval: app.cfg.Job.PollInterval,
		GhostRegion:  app.cfg.Job.GhostRegion,
		MaxFailures:  app.cfg.Job.MaxFailures,
	})
	if err != nil {
		return fmt.Errorf("supervisor init failed: %w", err)
	}
	app.supervisor = sup
	return nil
}
