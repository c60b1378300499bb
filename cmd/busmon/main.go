package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"busmon.openmbta.org/internal/app"
	"busmon.openmbta.org/internal/appconf"
	"busmon.openmbta.org/internal/config"
	"busmon.openmbta.org/internal/csvlog"
	"busmon.openmbta.org/internal/logging"
	"busmon.openmbta.org/internal/metrics"
	"busmon.openmbta.org/internal/nextbus"
	"busmon.openmbta.org/internal/poller"
	"busmon.openmbta.org/internal/publish"
	"busmon.openmbta.org/internal/statusapi"
	"busmon.openmbta.org/internal/topology"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "busmon: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Env == appconf.Development {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stdout, level)

	if err := run(cfg, logger); err != nil {
		logger.Error("busmon exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := buildApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: statusapi.New(
			application.Snapshots, application.Metrics.Handler(), logger).Router(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	go func() {
		logger.Info("starting status server", "addr", srv.Addr, "env", cfg.Env.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()

	runPollLoop(ctx, application, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown failed", "error", err)
	}
	logger.Info("busmon stopped")
	return nil
}

func buildApplication(cfg *config.Config, logger *slog.Logger) (*app.Application, func(), error) {
	feed := nextbus.NewClient(
		cfg.Feed.BaseURL,
		cfg.Feed.Agency,
		time.Duration(cfg.Feed.TimeoutSeconds)*time.Second,
		logger)

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store topology.Store
	switch cfg.Topology.Backend {
	case "sqlite":
		sqlStore, err := topology.NewSQLStore(cfg.Topology.DBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening topology database: %w", err)
		}
		cleanups = append(cleanups, func() {
			logging.SafeCloseWithLogging(sqlStore, logger, "topology database")
		})
		store = sqlStore
	default:
		store = topology.NewFSStore(cfg.Topology.Dir)
	}

	collector := metrics.NewCollector()
	resolver := topology.NewResolver(feed, store, logger,
		topology.WithCacheMetrics(collector))

	application := &app.Application{
		Config:    cfg,
		Logger:    logger,
		Metrics:   collector,
		Topology:  resolver,
		Poller:    poller.New(resolver, feed, logger, poller.WithMetrics(collector)),
		Snapshots: poller.NewSnapshots(),
	}

	if cfg.TripLog.Enabled {
		application.TripLog = csvlog.NewWriter(cfg.TripLog.DataDir, logger)
	}
	if cfg.NATSURL != "" {
		publisher, err := publish.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, publisher.Close)
		application.Publisher = publisher
	}

	return application, cleanup, nil
}

// runPollLoop polls every configured route each interval until the context is
// cancelled. The first cycle runs immediately.
func runPollLoop(ctx context.Context, application *app.Application, logger *slog.Logger) {
	interval := time.Duration(application.Config.Poll.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("starting poll loop",
		"interval", interval,
		"routes", application.Config.Poll.Routes)

	for {
		pollAllRoutes(ctx, application, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pollAllRoutes(ctx context.Context, application *app.Application, logger *slog.Logger) {
	var wg sync.WaitGroup
	for _, routeID := range application.Config.Poll.Routes {
		wg.Add(1)
		go func(routeID string) {
			defer wg.Done()
			pollRoute(ctx, application, logger, routeID)
		}(routeID)
	}
	wg.Wait()
}

func pollRoute(ctx context.Context, application *app.Application, logger *slog.Logger, routeID string) {
	records, err := application.Poller.Poll(ctx, routeID)
	if err != nil {
		logging.LogError(logger, "poll failed", err, slog.String("route_id", routeID))
		return
	}
	application.Snapshots.Set(routeID, records)

	if application.Publisher != nil {
		application.Publisher.PublishSnapshot(records)
	}
	if application.TripLog != nil {
		route, err := application.Topology.Resolve(ctx, routeID)
		if err != nil {
			logging.LogError(logger, "trip log skipped, topology unavailable", err,
				slog.String("route_id", routeID))
			return
		}
		if err := application.TripLog.Append(route, records); err != nil {
			logging.LogError(logger, "trip log write failed", err,
				slog.String("route_id", routeID))
		}
	}
}
