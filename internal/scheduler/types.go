package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"worldevents/internal/catalog"
	"worldevents/internal/event"
	"worldevents/internal/eventbus"
	"worldevents/internal/ledger"
	"worldevents/internal/recurrence"
	"worldevents/internal/settlement"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

// ErrDuplicate is returned when an event of the same (type, scope) is
// already scheduled or active.
var ErrDuplicate = errors.New("event of this type is already scheduled or active in this scope")

// Config controls the schedule driver.
type Config struct {
	Enabled bool

	// TickInterval is the fixed tick period; default 60s. Recurrence rules
	// are minute-resolution, so intervals above one minute will miss
	// trigger minutes.
	TickInterval time.Duration

	// Timezone is the IANA zone recurrence rules are evaluated in
	// (e.g. "Europe/Lisbon"). Empty means local time.
	Timezone string

	// HistoryLimit caps the default History() result size; default 100.
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	return c
}

// Definition is one recurring event definition.
type Definition struct {
	Name     string
	Type     event.Type
	Scope    event.Scope
	Rule     recurrence.Rule
	Duration time.Duration // 0 = catalog default
	Anchor   *event.Anchor
}

// ScheduleRequest creates one event directly. Both the recurrence path
// and the operator trigger path flow through it.
type ScheduleRequest struct {
	Type       event.Type
	Scope      event.Scope       // empty = event.ScopeAll
	StartTime  time.Time         // zero = now
	Duration   time.Duration     // 0 = catalog default; clamped to catalog bounds
	Anchor     *event.Anchor
	Metadata   map[string]string
	Recurrence string // rule string for events spawned by a definition
}

type liveKey struct {
	typ   event.Type
	scope event.Scope
}

// Service is the schedule driver. The tick loop is the only writer of
// event state transitions; join/contribute run concurrently through the
// ledger.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	loc     *time.Location
	catalog *catalog.Catalog
	store   storage.Store
	bus     eventbus.Bus
	ledger  *ledger.Ledger
	grants  *settlement.Dispatcher

	c    *cron.Cron
	defs []Definition

	// Live index: non-terminal events by id and by (type, scope).
	live  map[string]event.ScheduledEvent
	byKey map[liveKey]string

	// Pending transitions, earliest first. Entries may be stale after a
	// cancel; advance() revalidates against the live index before acting.
	pending transitionQueue

	gate         tickGate
	ticksRun     uint64
	ticksSkipped uint64

	// now is swappable for tests.
	now func() time.Time
}

// tickGate is the in-progress flag that makes overlapping ticks skip
// instead of queueing.
type tickGate struct {
	mu       sync.Mutex
	inflight bool
}

func (g *tickGate) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight {
		return false
	}
	g.inflight = true
	return true
}

func (g *tickGate) release() {
	g.mu.Lock()
	g.inflight = false
	g.mu.Unlock()
}
