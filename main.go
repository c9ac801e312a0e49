package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/config"
	"github.com/bassamadnan/tmpmail/inbox"
	"github.com/bassamadnan/tmpmail/poller"
	"github.com/bassamadnan/tmpmail/schedule"
	"github.com/bassamadnan/tmpmail/store"
	"github.com/bassamadnan/tmpmail/tui"
	"github.com/bassamadnan/tmpmail/tui/classic"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	frontend := flag.String("ui", "", "front end to run: bubbletea or classic (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *frontend != "" {
		cfg.UI.Frontend = *frontend
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid -ui flag: %v", err)
		}
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer closeLog()
	defer logger.Sync()
	logger.Info("Application starting...", zap.String("frontend", cfg.UI.Frontend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cancelling context...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exited with error", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		closeLog()
		os.Exit(1)
	}
	logger.Info("Application stopped. Exiting.")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jar, err := openJar(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer jar.Close()
	book := store.NewBook(jar, cfg.Storage.CookieName, store.Policy{
		MaxRecords: cfg.Storage.MaxAddresses,
		Expiry:     cfg.Storage.Expiry,
	}, logger.Named("store"))

	client, err := api.NewClient(api.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		RetryAttempts: cfg.API.RetryAttempts,
		RetryDelay:    cfg.API.RetryDelay,
	}, api.WithLogger(logger.Named("api")))
	if err != nil {
		return fmt.Errorf("create api client: %w", err)
	}

	manager, err := inbox.NewManager(ctx, client, book, logger.Named("inbox"))
	if err != nil {
		logger.Warn("starting with an empty address list", zap.Error(err))
	}
	usage := manager.Usage(ctx)
	logger.Info("storage usage",
		zap.Int("addresses", usage.Count),
		zap.Int("bytes", usage.Size),
		zap.Float64("percent", usage.Percentage))
	manager.SetFilter(inbox.Filter{
		IgnoreSenders:           cfg.Filters.IgnoreSenders,
		IgnoreKeywordsInSubject: cfg.Filters.IgnoreKeywordsInSubject,
	})

	states := tui.NewStateFeed()
	p := poller.New(ctx, cfg.AutoRefresh.Interval,
		poller.WithLogger(logger.Named("poller")),
		poller.WithEnabled(cfg.AutoRefresh.Enabled),
		poller.WithOnChange(states.Publish))
	defer p.Close()

	scheduler, err := schedule.Start(ctx, cfg.Storage.SweepInterval, manager, jar, logger.Named("schedule"))
	if err != nil {
		return fmt.Errorf("start expiry sweep: %w", err)
	}
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics server starting", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var uiErr error
	switch cfg.UI.Frontend {
	case config.FrontendClassic:
		uiErr = runClassic(ctx, cfg, manager, p, states, logger)
	default:
		uiErr = runBubbletea(ctx, cfg, manager, client, p, states, logger)
	}

	cancel()
	if err := g.Wait(); err != nil {
		logger.Warn("metrics server stopped with error", zap.Error(err))
	}
	return uiErr
}

func runBubbletea(ctx context.Context, cfg config.Config, manager *inbox.Manager, client *api.Client, p *poller.Poller, states tui.StateFeed, logger *zap.Logger) error {
	uiLogger := logger.Named("tui")
	factory := func() tea.Model {
		if err := manager.Reload(ctx); err != nil {
			uiLogger.Error("reload addresses", zap.Error(err))
		}
		return tui.New(ctx, tui.Options{
			Manager:         manager,
			Poller:          p,
			States:          states,
			Health:          client,
			RefreshInterval: cfg.AutoRefresh.Interval,
			ToastDuration:   cfg.UI.ToastDuration,
			Logger:          uiLogger,
		})
	}

	program := tea.NewProgram(tui.NewBoundary(factory, uiLogger), tea.WithAltScreen(), tea.WithContext(ctx))
	logger.Info("TUI application initialized.")
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func runClassic(ctx context.Context, cfg config.Config, manager *inbox.Manager, p *poller.Poller, states tui.StateFeed, logger *zap.Logger) error {
	app := classic.NewApp(ctx, classic.Options{
		Manager:         manager,
		Poller:          p,
		States:          states,
		RefreshInterval: cfg.AutoRefresh.Interval,
		Logger:          logger.Named("classic"),
	})
	go func() {
		<-ctx.Done()
		app.Stop()
	}()
	logger.Info("classic TUI application initialized.")
	return app.Run()
}

func openJar(ctx context.Context, cfg config.StorageConfig) (store.Jar, error) {
	if cfg.Driver == config.DriverSQLite {
		jar, err := store.OpenSQLiteJar(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return jar, nil
	}
	jar, err := store.NewFileJar(cfg.Path)
	if err != nil {
		return nil, err
	}
	return jar, nil
}

// newLogger writes JSON logs to the configured file; the terminal belongs to
// the UI.
func newLogger(cfg config.LogConfig) (*zap.Logger, func(), error) {
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
	if err != nil {
		return nil, nil, err
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level)
	return zap.New(core, zap.AddCaller()), func() { f.Close() }, nil
}
