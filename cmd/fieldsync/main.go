package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fieldsync/api"
	"github.com/angelmondragon/fieldsync/api/controllers"
	"github.com/angelmondragon/fieldsync/api/routes"
	"github.com/angelmondragon/fieldsync/internal/connectivity"
	"github.com/angelmondragon/fieldsync/internal/device"
	"github.com/angelmondragon/fieldsync/internal/identity"
	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/settings"
	"github.com/angelmondragon/fieldsync/internal/syncer"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/metrics"
	"github.com/angelmondragon/fieldsync/pkg/migrate"
	"github.com/angelmondragon/fieldsync/pkg/outbox"
	"github.com/angelmondragon/fieldsync/pkg/redis"
)

const serviceName = "fieldsync"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "agent stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "agent shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	store := db.NewLazy(func(ctx context.Context) (*db.Client, error) {
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, err
		}
		if err := migrate.MaybeAuto(ctx, cfg.DB, logg, client); err != nil {
			return nil, multierr.Append(err, client.Close())
		}
		return client, nil
	})
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	dbClient, err := store.Get(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
	}

	var settingsStore settings.Store = settings.NewGormStore(dbClient.DB())
	if cfg.Settings.Backend == config.SettingsBackendRedis {
		settingsStore = settings.NewRedisStore(redisClient)
	}

	registry := prometheus.NewRegistry()
	var syncMetrics *metrics.SyncMetrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		syncMetrics = metrics.NewSyncMetrics(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	monitor := connectivity.NewMonitor(false, logg, connectivity.WithMetrics(syncMetrics))
	prober, err := connectivity.NewProber(cfg.Remote.BaseURL, connectivity.WithProbeTimeout(cfg.Sync.AttemptTimeout))
	if err != nil {
		return fmt.Errorf("create connectivity prober: %w", err)
	}
	poller := connectivity.NewPoller(monitor, prober, cfg.Sync.ProbeInterval, logg)

	remoteClient, err := remote.NewClient(cfg.Remote.BaseURL,
		remote.WithAttemptTimeout(cfg.Sync.AttemptTimeout),
		remote.WithSessionToken(cfg.Remote.SessionToken),
	)
	if err != nil {
		return fmt.Errorf("create remote client: %w", err)
	}

	redirector := identity.NewLogRedirector(logg)
	resolver := identity.NewResolver(identity.Params{
		Profiles:   remoteClient,
		Online:     monitor,
		Store:      settingsStore,
		Redirector: redirector,
		LoginURL:   identity.LoginURL(cfg.Remote.BaseURL, cfg.Remote.LoginPath, "http://"+cfg.API.Addr+"/v1/status"),
		Logger:     logg,
	})
	devices := device.NewProvider(settingsStore)

	queue := outbox.NewQueue(dbClient, outbox.NewRepository(dbClient.DB()), logg)
	if _, err := queue.RecoverInFlight(ctx); err != nil {
		return fmt.Errorf("recover outbox: %w", err)
	}

	orchestrator, err := syncer.NewOrchestrator(syncer.Params{
		Queue:        queue,
		Remote:       remoteClient,
		Identity:     resolver,
		Devices:      devices,
		Connectivity: monitor,
		Logger:       logg,
		Metrics:      syncMetrics,
		MaxAttempts:  cfg.Sync.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	defer orchestrator.Wait()

	var lock syncer.Lock = syncer.NopLock{}
	if redisClient != nil {
		lock, err = syncer.NewRedisLock(redisClient, redisClient.LockKey("drain"), 0)
		if err != nil {
			return fmt.Errorf("create drain lock: %w", err)
		}
	}
	runner, err := syncer.NewRunner(syncer.RunnerParams{
		Logger:   logg,
		Drainer:  orchestrator,
		Monitor:  monitor,
		Lock:     lock,
		Interval: cfg.Sync.DrainInterval,
	})
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}

	router := routes.NewRouter(cfg, logg, dbClient, orchestrator, queue, controllers.StatusSources{
		Online:   monitor.Online,
		Pending:  orchestrator.PendingCount,
		DeviceID: devices.GetOrCreate,
		UserID:   resolver.Cached,
		LoginURL: redirector.Pending,
	}, metricsHandler)
	server := api.NewServer(cfg.API, router)

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   cfg.API.Addr,
		"remote": remoteClient.BaseURL(),
		"driver": dbClient.Driver(),
	})
	logg.Info(logCtx, "starting fieldsync agent")

	poller.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(poller.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(runner.Run(gctx))
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("local api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.API.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
