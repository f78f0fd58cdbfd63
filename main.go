package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/config"
	"github.com/epeers/netnet/internal/cache"
	"github.com/epeers/netnet/internal/checkpoint"
	"github.com/epeers/netnet/internal/database"
	"github.com/epeers/netnet/internal/handlers"
	"github.com/epeers/netnet/internal/jquants"
	"github.com/epeers/netnet/internal/middleware"
	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/output"
	"github.com/epeers/netnet/internal/repository"
	"github.com/epeers/netnet/internal/services"
	"github.com/epeers/netnet/internal/util"
)

const usage = `usage: netnet [command]

commands:
  universe   build and cache the ticker universe for the analysis dates
  collect    fetch fundamentals for every ticker not yet checkpointed
  screen     screen the checkpointed tickers for each analysis date
  run        collect, then screen (default)
  serve      start the admin HTTP API`

// app holds the components shared by every command.
type app struct {
	cfg *config.Config

	client   *jquants.Client
	store    *checkpoint.Store
	dataset  *checkpoint.Dataset
	sink     *output.Sink
	db       *database.DB
	repo     *repository.ScreeningRepository
	universe *services.UniverseService
	fetch    *services.FetchService
	screen   *services.ScreeningService
}

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "universe", "collect", "screen", "run", "serve":
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	started := time.Now()
	logFile, err := setupLogging(cfg, started)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, started)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.close()

	switch cmd {
	case "universe":
		err = a.runUniverse(ctx)
	case "collect":
		err = a.runCollect(ctx)
	case "screen":
		err = a.runScreen(ctx)
	case "run":
		if err = a.runCollect(ctx); err == nil {
			err = a.runScreen(ctx)
		}
	case "serve":
		err = a.serve(ctx)
	}
	if err != nil {
		log.Errorf("%s failed: %v", cmd, err)
		a.close()
		os.Exit(1)
	}
}

// setupLogging applies LOG_LEVEL and tees log output to a per-run file.
func setupLogging(cfg *config.Config, started time.Time) (*os.File, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.OutputDir, fmt.Sprintf("app_%s.log", started.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

func newApp(ctx context.Context, cfg *config.Config, started time.Time) (*app, error) {
	a := &app{cfg: cfg}

	// Initialize J-Quants client
	opts := []jquants.Option{
		jquants.WithTimeout(cfg.HTTPTimeout),
		jquants.WithRateLimit(cfg.RequestsPerSecond),
		jquants.WithRetryPolicy(jquants.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			MinWait:     cfg.RetryMinWait,
			MaxWait:     cfg.RetryMaxWait,
		}),
		jquants.WithCredentials(cfg.Email, cfg.Password),
	}
	if cfg.IDToken != "" {
		opts = append(opts, jquants.WithIDToken(cfg.IDToken))
	}
	a.client = jquants.NewClient(cfg.APIURL, opts...)

	// Load the checkpoint
	var err error
	a.store, err = checkpoint.Open(filepath.Join(cfg.DataDir, "checkpoint"))
	if err != nil {
		return nil, err
	}
	a.dataset, err = a.store.Load()
	if err != nil {
		return nil, err
	}

	a.sink, err = output.NewSink(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	// Optional Postgres sink
	if cfg.PGURL != "" {
		if err := database.Migrate(ctx, cfg.PGURL); err != nil {
			return nil, err
		}
		a.db, err = database.New(ctx, cfg.PGURL)
		if err != nil {
			return nil, err
		}
		a.repo = repository.NewScreeningRepository(a.db.Pool)
	}

	// Initialize services
	memCache := cache.NewMemoryCache(time.Hour)
	pricing := services.NewPricingService(a.client, memCache, cfg.PriceLookbackDays)
	a.universe = services.NewUniverseService(a.client, cfg.DataDir)
	a.fetch = services.NewFetchService(a.client, a.store, services.FetchOptions{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		BatchSize:        cfg.BatchSize,
		CollectPrices:    cfg.CollectPrices,
	})
	a.screen = services.NewScreeningService(a.dataset, pricing, a.sink, services.ScreeningOptions{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		Threshold:        cfg.NetNetThreshold,
		FSLookbehindDays: cfg.FSLookbehindDays,
		STLookbehindDays: cfg.STLookbehindDays,
		PerfLogInterval:  cfg.PerfLogInterval,
	}).WithPerfLog(output.NewPerfLog(cfg.OutputDir, started))
	if a.repo != nil {
		a.screen.WithResultStore(a.repo)
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warnf("Failed to close checkpoint: %v", err)
		}
		a.store = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// tickers returns the run universe: TICKERS_FILE when set, otherwise the
// listed issues of every analysis date.
func (a *app) tickers(ctx context.Context) ([]models.Ticker, error) {
	if a.cfg.TickersFile != "" {
		return services.LoadTickerFile(a.cfg.TickersFile)
	}
	if len(a.cfg.AnalysisDates) == 0 {
		return nil, errors.New("set TICKERS_FILE or ANALYSIS_DATES / ANALYSIS_DATE_RANGE")
	}
	return a.universe.ForDates(ctx, a.cfg.AnalysisDates)
}

func (a *app) runUniverse(ctx context.Context) error {
	tickers, err := a.tickers(ctx)
	if err != nil {
		return err
	}
	path := filepath.Join(a.cfg.DataDir, "tickers", "all_tickers.txt")
	if err := services.WriteTickerFile(path, tickers); err != nil {
		return err
	}
	log.Infof("Universe of %d tickers written to %s", len(tickers), path)
	return nil
}

func (a *app) runCollect(ctx context.Context) error {
	tickers, err := a.tickers(ctx)
	if err != nil {
		return err
	}
	summary, err := a.fetch.Run(ctx, tickers, a.dataset)
	if err != nil {
		return err
	}
	if n := len(summary.Failed); n > 0 {
		log.Warnf("%d tickers failed and will be retried on the next run", n)
	}
	return nil
}

func (a *app) runScreen(ctx context.Context) error {
	if len(a.cfg.AnalysisDates) == 0 {
		return errors.New("no analysis dates configured")
	}
	tickers, err := a.tickers(ctx)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	for _, date := range a.cfg.AnalysisDates {
		summary, err := a.screen.ScreenDate(ctx, runID, date, tickers)
		if err != nil {
			return err
		}
		log.Infof("%s: %d net-nets, %d new rows, %d rows in %s", util.FormatDate(date), len(summary.NetNets),
			summary.Written, summary.FileRows, output.ResultsPath(a.sink.Dir(), date))
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	adminHandler := handlers.NewAdminHandler(a.fetch, a.screen, a.dataset, a.tickers)
	// Keep a nil repository out of the interface.
	var resultsHandler *handlers.ResultsHandler
	if a.repo != nil {
		resultsHandler = handlers.NewResultsHandler(a.repo, a.cfg.OutputDir)
	} else {
		resultsHandler = handlers.NewResultsHandler(nil, a.cfg.OutputDir)
	}

	// Setup Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checkpointed": a.dataset.Len()})
	})

	admin := router.Group("/admin", middleware.RequireAdminToken(a.cfg.AdminToken))
	admin.POST("/collect", adminHandler.Collect)
	admin.POST("/screen", adminHandler.Screen)

	router.GET("/results", resultsHandler.Dates)
	router.GET("/results/:date", resultsHandler.Get)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: router,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %s", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}
