// Command rendercache runs the cache's admin service: revalidation API,
// event stream, health and metrics.
//
// The service reaches render processes only through a shared handler, such
// as handlers.remote or handlers.public with type sql and a DSN every process
// opens. With the default in-memory handlers, revalidations submitted here
// mark entries in this process alone.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/config"
	"github.com/jonwraymond/rendercache/directive"
	"github.com/jonwraymond/rendercache/handlers"
	"github.com/jonwraymond/rendercache/health"
	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/resilience"
	"github.com/jonwraymond/rendercache/revalidate"
	"github.com/jonwraymond/rendercache/scope"
	"github.com/jonwraymond/rendercache/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config file")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "rendercache:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) (err error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return err
	}
	logger := obs.Logger()
	defer func() {
		err = errors.Join(err, obs.Shutdown(context.WithoutCancel(ctx)))
	}()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return err
	}
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		return err
	}
	directive.InitDeprecations(logger, cfg.Dev)

	set, err := handlers.Build(handlers.NewDefaultRegistry(), cfg.HandlerSettings(logger))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, set.Close()) }()

	guard := resilience.NewGuard(cfg.Store.Guard)
	store := cache.NewStore(cache.StoreConfig{
		Handlers:       set.Handlers,
		Guard:          guard,
		RefreshLimiter: resilience.NewLimiter(cfg.Store.Refresh),
		Stripes:        cfg.Store.Stripes,
		Logger:         logger,
		Metrics:        metrics,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		err = errors.Join(err, store.Drain(drainCtx))
	}()

	overrides, err := cfg.CacheProfiles()
	if err != nil {
		return err
	}
	profiles, err := cache.NewProfiles(overrides)
	if err != nil {
		return err
	}
	if loader.File() != "" {
		if err := loader.WatchProfiles(ctx, profiles, logger); err != nil {
			return err
		}
	}

	router, err := revalidate.NewRouter(revalidate.RouterConfig{Store: store, Middleware: mw, Logger: logger})
	if err != nil {
		return err
	}

	agg := health.NewAggregator(cfg.Health)
	agg.Register("store", health.NewStoreChecker("store", store, guard.Breaker()))

	logger.Info(ctx, "rendercache started",
		observe.F("config", loader.File()),
		observe.F("profiles", profiles.Names()),
		observe.F("build_id", cfg.BuildID))

	if !cfg.Server.Enabled {
		<-ctx.Done()
		return nil
	}
	if !cfg.SharedHandlers() {
		logger.Warn(ctx, "no shared handler configured, revalidations affect this process only")
	}

	sessions, err := scope.NewSessionResolver(cfg.Session)
	if err != nil {
		return err
	}
	keys, err := scope.NewKeyStore(cfg.APIKeys, nil)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg.Server, server.Deps{
		Router:   router,
		Sessions: sessions,
		Keys:     keys,
		Health:   agg,
		Profiles: profiles,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
