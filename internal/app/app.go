// Package app wires configuration, logging, storage, and the scheduler
// services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"

	"worldevents/internal/catalog"
	"worldevents/internal/config"
	"worldevents/internal/eventbus"
	"worldevents/internal/ledger"
	"worldevents/internal/observability/pprof"
	"worldevents/internal/progression"
	rtsup "worldevents/internal/runtime/supervisor"
	"worldevents/internal/scheduler"
	"worldevents/internal/settlement"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	store  storage.Store
	cat    *catalog.Catalog
	led    *ledger.Ledger
	grants *settlement.Dispatcher
	sched  *scheduler.Service
	pprof  *pprof.Service

	sup *rtsup.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validateConfig(c)
	})

	bus := eventbus.New()

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", driverName(storeCfg)))

	extra, err := mapCatalogConfig(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.New(extra...)
	if err != nil {
		return nil, err
	}

	led := ledger.New(logSvc.Logger().With(logx.String("comp", "ledger")))

	sink := progression.NewLogSink(logSvc.Logger().With(logx.String("comp", "progression")))
	grants := settlement.NewDispatcher(
		mapSettlementConfig(cfg),
		sink,
		logSvc.Logger().With(logx.String("comp", "settlement")),
	)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, cat, store, bus, led, grants,
		logSvc.Logger().With(logx.String("comp", "scheduler")))

	defs, err := mapRecurringConfig(cfg)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := sched.RegisterDefinition(def); err != nil {
			return nil, err
		}
	}

	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, logSvc.Logger().With(logx.String("comp", "pprof")))

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		cat:    cat,
		led:    led,
		grants: grants,
		sched:  sched,
		pprof:  pprofSvc,
	}, nil
}

// Scheduler exposes the schedule driver for embedding surfaces
// (operator tooling, RPC handlers) built on top of this app.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Bus exposes the notification sink for client-facing bridges.
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.grants.Start(ctx)

	if a.sched.Enabled() {
		if err := a.sched.Start(ctx); err != nil {
			return err
		}
	} else {
		a.log.Warn("scheduler disabled by config")
	}

	if err := a.pprof.Start(ctx); err != nil {
		a.log.Error("pprof failed to start", logx.Err(err))
	}

	// Config hot reload: re-apply the sections that support it.
	a.sup.Go("config-watch", a.cfgm.Watch)
	updates := a.cfgm.Subscribe(1)
	a.sup.Go0("config-apply", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies hot-reloadable sections: logging and settlement
// dispatch. Catalog, recurring definitions, storage, and scheduler
// topology are start-time only; changing them requires a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLoggingConfig(cfg))
	a.grants.Apply(mapSettlementConfig(cfg))
	a.log.Info("config applied",
		logx.String("logging_level", cfg.Logging.Level))
}

func (a *App) Stop(ctx context.Context) error {
	a.sched.Stop(ctx)
	a.grants.Stop(ctx)
	a.pprof.Stop(ctx)
	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("app stopped")
	_ = a.logs.Close()
	return nil
}
