// Package server wires the ingestion pipeline into a running process.
// It opens the database, runs migrations, builds the object store and the
// processing stack, starts the transcode workers and the metrics endpoint,
// and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/groupfiles/internal/document"
	"github.com/dmitrijs2005/groupfiles/internal/execx"
	"github.com/dmitrijs2005/groupfiles/internal/ffmpeg"
	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/dmitrijs2005/groupfiles/internal/raster"
	"github.com/dmitrijs2005/groupfiles/internal/server/config"
	"github.com/dmitrijs2005/groupfiles/internal/server/dispatch"
	"github.com/dmitrijs2005/groupfiles/internal/server/metrics"
	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/groupfiles/internal/server/services"
	"github.com/dmitrijs2005/groupfiles/internal/server/storage"
)

const (
	shutdownTimeout = 10 * time.Second
	// drainTimeout bounds how long queued transcodes may run after shutdown
	// starts.
	drainTimeout = time.Minute
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	gatherer prometheus.Gatherer
	pool     *storage.TranscodePool
	ingest   *services.IngestService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	registry, err := profiles.Load(c.TypePolicyFile)
	if err != nil {
		return nil, fmt.Errorf("type policy init error: %w", err)
	}
	preset, err := ffmpeg.LoadPresetFile(c.StreamingPresetFile, c.StreamingPreset)
	if err != nil {
		return nil, fmt.Errorf("streaming preset init error: %w", err)
	}

	wsp, err := filex.NewProvider(c.TempRoot, "groupfiles")
	if err != nil {
		return nil, fmt.Errorf("workspace init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metrics init error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:        c.S3Region,
		AccessKey:     c.S3RootUser,
		SecretKey:     c.S3RootPassword,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	runner := execx.NewExecRunner(logger)
	proc := raster.NewProcessor(raster.Options{
		PreviewWidth:  c.PreviewWidth,
		PreviewHeight: c.PreviewHeight,
		ThumbnailSize: c.ThumbnailSize,
		Quality:       c.JPEGQuality,
	})
	renderer := document.NewRenderer(runner, proc, document.Options{
		PdftoppmPath: c.PdftoppmPath,
		SofficePath:  c.SofficePath,
		DPI:          c.RenderDPI,
		Attempts:     c.RenderAttempts,
		Backoff:      c.RenderBackoff,
	}, logger)
	dispatcher := dispatch.New(
		ffmpeg.NewLocalProber(runner, c.FFprobePath),
		ffmpeg.NewFrameExtractor(runner, c.FFmpegPath),
		proc,
		renderer,
		raster.NewPlaceholder(proc),
		logger,
	)

	pool := storage.NewTranscodePool(
		ffmpeg.NewTranscoder(runner, c.FFmpegPath, preset),
		wsp,
		store,
		storage.StreamOutput{Extension: preset.Extension, ContentType: preset.ContentType},
		c.TranscodeWorkers,
		c.TranscodeQueue,
		logger,
	)
	pool.SetRecorder(m)
	store.SetDeriver(pool)

	ingest := services.NewIngestService(db, rm, services.IngestDeps{
		Registry:   registry,
		Workspaces: wsp,
		Processor:  dispatcher,
		Uploader:   storage.NewUploader(store, m, logger),
		Store:      store,
		Metrics:    m,
	}, c, logger)

	logger.Info(ctx, "ingestion pipeline ready",
		"content_types", registry.Len(), "streaming_preset", preset.Name, "soffice", c.SofficePath != "")

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		gatherer: reg,
		pool:     pool,
		ingest:   ingest,
	}, nil
}

// IngestService is the entry point handed to the embedding transport.
func (app *App) IngestService() *services.IngestService {
	return app.ingest
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.gatherer))
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping metrics server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// drainPool stops p and waits for its queued work. When that takes longer
// than timeout, cancel aborts the remaining work. It reports whether the
// queue drained in time.
func drainPool(p interface{ Stop() }, cancel context.CancelFunc, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		cancel()
		return true
	case <-timer.C:
		cancel()
		<-done
		return false
	}
}

// Run serves until ctx is cancelled or a signal arrives, then drains the
// transcode queue and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	poolCtx, cancelPool := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPool()
	app.pool.Start(poolCtx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()

	<-ctx.Done()
	if !drainPool(app.pool, cancelPool, drainTimeout) {
		app.logger.Warn(ctx, "transcode queue not drained in time, pending renditions aborted", "timeout", drainTimeout)
	}
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
