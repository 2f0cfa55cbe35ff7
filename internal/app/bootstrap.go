package app

import (
	"fmt"
	"strings"
	"time"

	"worldevents/internal/catalog"
	"worldevents/internal/config"
	"worldevents/internal/event"
	"worldevents/internal/observability/pprof"
	"worldevents/internal/recurrence"
	"worldevents/internal/scheduler"
	"worldevents/internal/settlement"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

// Mapping helpers: config file structs -> service configs.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func driverName(cfg storage.Config) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if d == "" {
		return "memory"
	}
	return d
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		TickInterval: tick,
		Timezone:     cfg.Scheduler.Timezone,
		HistoryLimit: cfg.Scheduler.HistoryLimit,
	}, nil
}

func mapSettlementConfig(cfg *config.Config) settlement.Config {
	if cfg.Settlement == nil {
		return settlement.Config{}
	}
	timeout, err := config.ParseDurationField("settlement.grant_timeout", cfg.Settlement.GrantTimeout)
	if err != nil {
		// Validated at load; fall back to the default here.
		timeout = 0
	}
	return settlement.Config{
		Workers:      cfg.Settlement.Workers,
		QueueSize:    cfg.Settlement.QueueSize,
		RatePerSec:   cfg.Settlement.RatePerSec,
		GrantTimeout: timeout,
	}
}

func mapCatalogConfig(cfg *config.Config) ([]catalog.TypeConfig, error) {
	out := make([]catalog.TypeConfig, 0, len(cfg.Catalog))
	for _, tc := range cfg.Catalog {
		minDur, err := config.ParseDurationField(fmt.Sprintf("catalog[%s].min_duration", tc.Type), tc.MinDuration)
		if err != nil {
			return nil, err
		}
		maxDur, err := config.ParseDurationField(fmt.Sprintf("catalog[%s].max_duration", tc.Type), tc.MaxDuration)
		if err != nil {
			return nil, err
		}
		defDur, err := config.ParseDurationField(fmt.Sprintf("catalog[%s].default_duration", tc.Type), tc.DefaultDuration)
		if err != nil {
			return nil, err
		}
		rewards := make(event.Rewards, len(tc.BaseRewards))
		for cur, amt := range tc.BaseRewards {
			rewards[cur] = amt
		}
		out = append(out, catalog.TypeConfig{
			Type:            event.Type(tc.Type),
			Name:            tc.Name,
			Description:     tc.Description,
			MinDuration:     minDur,
			MaxDuration:     maxDur,
			DefaultDuration: defDur,
			MinParticipants: tc.MinParticipants,
			MaxParticipants: tc.MaxParticipants,
			BaseRewards:     rewards,
			BonusRate:       tc.BonusRate,
			Mechanics:       tc.Mechanics,
		})
	}
	return out, nil
}

func mapRecurringConfig(cfg *config.Config) ([]scheduler.Definition, error) {
	out := make([]scheduler.Definition, 0, len(cfg.Recurring))
	for _, rc := range cfg.Recurring {
		rule, err := recurrence.ParseRule(rc.Rule)
		if err != nil {
			return nil, fmt.Errorf("recurring %q: %w", rc.Name, err)
		}
		dur, err := config.ParseDurationField(fmt.Sprintf("recurring[%s].duration", rc.Name), rc.Duration)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduler.Definition{
			Name:     rc.Name,
			Type:     event.Type(rc.Type),
			Scope:    event.Scope(rc.Scope),
			Rule:     rule,
			Duration: dur,
		})
	}
	return out, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	rt, err := config.ParseDurationField("pprof.read_timeout", cfg.Pprof.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	wt, err := config.ParseDurationField("pprof.write_timeout", cfg.Pprof.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	it, err := config.ParseDurationField("pprof.idle_timeout", cfg.Pprof.IdleTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Prefix:        cfg.Pprof.Prefix,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
		IdleTimeout:   it,
	}, nil
}

// validateConfig is the hot-reload gate: a config that fails any mapping
// never gets committed or published.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if cfg.Settlement != nil {
		if _, err := config.ParseDurationField("settlement.grant_timeout", cfg.Settlement.GrantTimeout); err != nil {
			return err
		}
	}
	extra, err := mapCatalogConfig(cfg)
	if err != nil {
		return err
	}
	if _, err := catalog.New(extra...); err != nil {
		return err
	}
	if _, err := mapRecurringConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	return nil
}
