package config

// Config is the full on-disk configuration.
//
// Files may be YAML (.yaml/.yml) or JSON; YAML is coerced to JSON and
// decoded strictly, so unknown fields are rejected in both formats.
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`

	// Catalog declares extra event types (or overrides built-ins).
	Catalog []EventTypeConfig `json:"catalog,omitempty"`

	// Recurring declares the recurring event definitions evaluated each tick.
	Recurring []RecurringConfig `json:"recurring,omitempty"`

	// Settlement controls the async reward-grant pipeline.
	Settlement *SettlementConfig `json:"settlement,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
}

// StorageConfig controls the event store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./worldevents.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the schedule driver.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// TickInterval is the fixed tick period; default "1m". Recurrence rules
	// are minute-resolution.
	TickInterval string `json:"tick_interval,omitempty"`

	// Timezone is the IANA zone recurrence rules are evaluated in.
	Timezone string `json:"timezone,omitempty"`

	HistoryLimit int `json:"history_limit,omitempty"`
}

// EventTypeConfig declares one catalog entry.
type EventTypeConfig struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	MinDuration     string `json:"min_duration"`
	MaxDuration     string `json:"max_duration"`
	DefaultDuration string `json:"default_duration,omitempty"`

	MinParticipants int `json:"min_participants"`
	MaxParticipants int `json:"max_participants"`

	BaseRewards map[string]int64 `json:"base_rewards,omitempty"`
	BonusRate   float64          `json:"bonus_rate,omitempty"`
	Mechanics   []string         `json:"mechanics,omitempty"`
}

// RecurringConfig declares one recurring definition.
//
// Rule is the restricted 5-field grammar: each field is "*", a literal,
// or "*/N". Lists and ranges are rejected.
type RecurringConfig struct {
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
	Scope    string `json:"scope,omitempty"` // empty = all realms
	Rule     string `json:"rule"`
	Duration string `json:"duration,omitempty"` // empty = catalog default
}

// SettlementConfig controls the reward-grant dispatch pipeline.
type SettlementConfig struct {
	Workers      int    `json:"workers,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
	GrantTimeout string `json:"grant_timeout,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
