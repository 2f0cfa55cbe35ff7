package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"worldevents/internal/catalog"
	"worldevents/internal/event"
	"worldevents/internal/eventbus"
	"worldevents/internal/ledger"
	"worldevents/internal/progression"
	"worldevents/internal/recurrence"
	"worldevents/internal/settlement"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

// testService wires a driver against the in-memory store with a frozen,
// manually advanced clock. The dispatcher is left unstarted so settled
// grants show up as dropped in the stats.
func testService(t *testing.T, cfg Config) (*Service, *time.Time) {
	t.Helper()
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	s := New(cfg,
		cat,
		storage.NewMemory(),
		eventbus.New(),
		ledger.New(logx.Nop()),
		settlement.NewDispatcher(settlement.Config{}, progression.NewLogSink(logx.Nop()), logx.Nop()),
		logx.Nop(),
	)
	s.now = func() time.Time { return *clock }
	s.loc = time.UTC
	return s, clock
}

func TestScheduleEventDefaults(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()

	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ev.Scope != event.ScopeAll {
		t.Fatalf("scope = %q, want %q", ev.Scope, event.ScopeAll)
	}
	if ev.State != event.StateScheduled {
		t.Fatalf("state = %s", ev.State)
	}
	if ev.Duration != 15*time.Minute {
		t.Fatalf("duration = %v, want catalog default", ev.Duration)
	}
	if !ev.StartTime.Equal(*clock) {
		t.Fatalf("start = %v, want now", ev.StartTime)
	}
	if ev.BaseRewards["xp"] != 100 {
		t.Fatalf("rewards not snapshotted: %v", ev.BaseRewards)
	}

	// Same (type, scope) slot is occupied.
	if _, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate err = %v, want ErrDuplicate", err)
	}
	// A different scope is a different slot.
	if _, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower", Scope: "realm-7"}); err != nil {
		t.Fatalf("other scope: %v", err)
	}

	if _, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "volcano_dance"}); !errors.Is(err, catalog.ErrUnknownEventType) {
		t.Fatalf("unknown type err = %v, want ErrUnknownEventType", err)
	}
}

func TestScheduleClampsDuration(t *testing.T) {
	t.Parallel()
	s, _ := testService(t, Config{})
	ctx := context.Background()

	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower", Duration: time.Second})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ev.Duration < time.Second {
		t.Fatal("duration not clamped")
	}
	if ev.Duration != ev.EndTime.Sub(ev.StartTime) {
		t.Fatalf("window %v inconsistent with duration %v", ev.EndTime.Sub(ev.StartTime), ev.Duration)
	}
}

func TestEventLifecycle(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()
	start := *clock

	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower", Scope: "realm-1"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Join before activation fails.
	if _, err := s.Join(ctx, ev.ID, "alice"); !errors.Is(err, ledger.ErrNotActive) {
		t.Fatalf("join before start: err = %v, want ErrNotActive", err)
	}

	if !s.Tick(start) {
		t.Fatal("tick reported skipped")
	}
	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != event.StateActive {
		t.Fatalf("state after start tick = %s, want active", got.State)
	}

	active, err := s.ActiveEvents(ctx, "realm-1")
	if err != nil || len(active) != 1 {
		t.Fatalf("active = %v err = %v", active, err)
	}

	if _, err := s.Join(ctx, ev.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.Join(ctx, ev.ID, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Contribute(ctx, ev.ID, "alice", 30); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := s.Contribute(ctx, ev.ID, "bob", 70); err != nil {
		t.Fatalf("contribute: %v", err)
	}

	// Past the end: the event completes and settles.
	*clock = start.Add(16 * time.Minute)
	s.Tick(*clock)

	got, _ = s.GetEvent(ctx, ev.ID)
	if got.State != event.StateCompleted {
		t.Fatalf("state after end tick = %s, want completed", got.State)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("persisted participants = %+v", got.Participants)
	}

	// Dispatcher is not running, so both grants count as dropped.
	if snap := s.Snapshot(); snap.Dispatch.Dropped != 2 {
		t.Fatalf("dropped grants = %d, want 2", snap.Dispatch.Dropped)
	}

	// Joining after completion maps to not-active, not not-found.
	if _, err := s.Join(ctx, ev.ID, "carol"); !errors.Is(err, ledger.ErrNotActive) {
		t.Fatalf("join after end: err = %v, want ErrNotActive", err)
	}

	hist, err := s.History(ctx, 0)
	if err != nil || len(hist) != 1 || hist[0].ID != ev.ID {
		t.Fatalf("history = %v err = %v", hist, err)
	}
}

func TestElapsedWindowCompletesInOneTick(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()

	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// First tick after the whole window already passed: the event goes
	// scheduled -> active -> completed in a single pass.
	*clock = clock.Add(time.Hour)
	s.Tick(*clock)

	got, _ := s.GetEvent(ctx, ev.ID)
	if got.State != event.StateCompleted {
		t.Fatalf("state = %s, want completed", got.State)
	}
}

func TestFizzleWithoutParticipants(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()

	// harmonic_convergence needs 5 participants to pay out.
	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "harmonic_convergence"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Tick(*clock)
	if _, err := s.Join(ctx, ev.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	*clock = clock.Add(24 * time.Hour)
	s.Tick(*clock)

	got, _ := s.GetEvent(ctx, ev.ID)
	if got.State != event.StateCompleted {
		t.Fatalf("state = %s", got.State)
	}
	if snap := s.Snapshot(); snap.Dispatch.Dropped != 0 {
		t.Fatalf("fizzled event produced %d grants", snap.Dispatch.Dropped)
	}
}

func TestCancelEvent(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()

	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Tick(*clock)
	if _, err := s.Join(ctx, ev.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	ok, err := s.CancelEvent(ctx, ev.ID)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	got, _ := s.GetEvent(ctx, ev.ID)
	if got.State != event.StateCancelled {
		t.Fatalf("state = %s, want cancelled", got.State)
	}
	// Participation is kept for history, but nothing settles.
	if len(got.Participants) != 1 {
		t.Fatalf("participants = %+v", got.Participants)
	}
	if snap := s.Snapshot(); snap.Dispatch.Dropped != 0 {
		t.Fatal("cancelled event settled")
	}

	// Cancelling again is an idempotent no-op.
	ok, err = s.CancelEvent(ctx, ev.ID)
	if err != nil || ok {
		t.Fatalf("second cancel: ok=%v err=%v", ok, err)
	}
	if _, err := s.CancelEvent(ctx, "no-such-id"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cancel unknown: err = %v, want ErrNotFound", err)
	}

	// The slot frees up immediately.
	if _, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower"}); err != nil {
		t.Fatalf("reschedule after cancel: %v", err)
	}
}

func TestJoinUnknownEvent(t *testing.T) {
	t.Parallel()
	s, _ := testService(t, Config{})
	if _, err := s.Join(context.Background(), "no-such-id", "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.Contribute(context.Background(), "no-such-id", "alice", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecurringDefinitionSpawns(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()

	rule, err := recurrence.ParseRule("*/15 * * * *")
	if err != nil {
		t.Fatalf("parse rule: %v", err)
	}
	if err := s.RegisterDefinition(Definition{
		Type:     "aurora_borealis",
		Scope:    "realm-1",
		Rule:     rule,
		Duration: 10 * time.Minute,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// 12:00 matches */15; the spawned event starts immediately and the same
	// tick promotes it.
	s.Tick(*clock)
	active, err := s.ActiveEvents(ctx, "realm-1")
	if err != nil || len(active) != 1 {
		t.Fatalf("active = %v err = %v", active, err)
	}
	if active[0].Recurrence != "*/15 * * * *" {
		t.Fatalf("recurrence tag = %q", active[0].Recurrence)
	}

	// Next matching minute with the slot still occupied: suppressed.
	*clock = clock.Add(5 * time.Minute)
	s.Tick(*clock) // 12:05, no match
	all, _ := s.store.ListEvents(ctx, storage.Filter{Type: "aurora_borealis"})
	if len(all) != 1 {
		t.Fatalf("events after non-matching tick = %d", len(all))
	}

	// 12:15 matches, but definitions are evaluated before transitions: the
	// slot is still occupied, so the tick only ends the first occurrence.
	*clock = clock.Add(10 * time.Minute)
	s.Tick(*clock)
	all, _ = s.store.ListEvents(ctx, storage.Filter{Type: "aurora_borealis"})
	if len(all) != 1 {
		t.Fatalf("events after completing tick = %d", len(all))
	}

	// 12:30 finds the slot free and spawns the next occurrence.
	*clock = clock.Add(15 * time.Minute)
	s.Tick(*clock)
	all, _ = s.store.ListEvents(ctx, storage.Filter{Type: "aurora_borealis"})
	if len(all) != 2 {
		t.Fatalf("events after respawn tick = %d", len(all))
	}
}

func TestRegisterDefinitionValidation(t *testing.T) {
	t.Parallel()
	s, _ := testService(t, Config{})

	if err := s.RegisterDefinition(Definition{Type: "meteor_shower"}); err == nil {
		t.Fatal("definition without rule accepted")
	}
	rule, _ := recurrence.ParseRule("0 0 * * *")
	if err := s.RegisterDefinition(Definition{Type: "volcano_dance", Rule: rule}); !errors.Is(err, catalog.ErrUnknownEventType) {
		t.Fatalf("unknown type err = %v", err)
	}

	if err := s.RegisterDefinition(Definition{Type: "meteor_shower", Rule: rule}); err != nil {
		t.Fatalf("register: %v", err)
	}
	defs := s.Definitions()
	if len(defs) != 1 || defs[0].Scope != event.ScopeAll || defs[0].Name == "" {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestTickSkipsWhenInFlight(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})

	if !s.gate.tryAcquire() {
		t.Fatal("gate acquire failed")
	}
	if s.Tick(*clock) {
		t.Fatal("overlapping tick ran instead of skipping")
	}
	s.gate.release()
	if !s.Tick(*clock) {
		t.Fatal("tick after release skipped")
	}

	snap := s.Snapshot()
	if snap.TicksRun != 1 || snap.TicksSkipped != 1 {
		t.Fatalf("ticks run/skipped = %d/%d", snap.TicksRun, snap.TicksSkipped)
	}
}

func TestStartRestoresLiveEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := storage.NewMemory()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []event.ScheduledEvent{
		{
			ID: "ev-sched", Type: "meteor_shower", Scope: "realm-1",
			State: event.StateScheduled, StartTime: base.Add(time.Hour),
			EndTime: base.Add(75 * time.Minute), Duration: 15 * time.Minute,
			BaseRewards: event.Rewards{"xp": 100},
		},
		{
			ID: "ev-active", Type: "aurora_borealis", Scope: "realm-1",
			State: event.StateActive, StartTime: base.Add(-10 * time.Minute),
			EndTime: base.Add(20 * time.Minute), Duration: 30 * time.Minute,
			BaseRewards:  event.Rewards{"xp": 150},
			Participants: []event.Participant{{PlayerID: "alice", JoinedAt: base.Add(-5 * time.Minute)}},
		},
	}
	for _, ev := range seed {
		if err := store.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	now := base
	s := New(Config{Timezone: "UTC"}, cat, store,
		eventbus.New(), ledger.New(logx.Nop()),
		settlement.NewDispatcher(settlement.Config{}, progression.NewLogSink(logx.Nop()), logx.Nop()),
		logx.Nop())
	s.now = func() time.Time { return now }

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	if snap := s.Snapshot(); snap.LiveEvents != 2 {
		t.Fatalf("restored live events = %d, want 2", snap.LiveEvents)
	}

	// The restored active event accepts joins right away.
	if _, err := s.Join(ctx, "ev-active", "bob"); err != nil {
		t.Fatalf("join restored event: %v", err)
	}

	// And completes once its end passes.
	now = base.Add(21 * time.Minute)
	s.Tick(now)
	got, _ := s.GetEvent(ctx, "ev-active")
	if got.State != event.StateCompleted {
		t.Fatalf("restored event state = %s, want completed", got.State)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %+v", got.Participants)
	}
}

// A Join's best-effort participant write can race the closing
// transition: the ledger snapshot is taken while the event is active,
// but the store write only lands after the close has persisted the
// final list. The stale write must be skipped, not applied.
func TestStaleParticipantWriteSkippedAfterClose(t *testing.T) {
	t.Parallel()
	s, clock := testService(t, Config{})
	ctx := context.Background()

	ev, err := s.ScheduleEvent(ctx, ScheduleRequest{Type: "meteor_shower", Duration: 10 * time.Minute})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Tick(*clock)
	if _, err := s.Join(ctx, ev.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Contribute(ctx, ev.ID, "alice", 10); err != nil {
		t.Fatalf("contribute: %v", err)
	}

	// Let the close win the race: persist the terminal record and drop
	// the event from the live index while the ledger entry stays open,
	// exactly the window a delayed best-effort write lands in.
	final := []event.Participant{{PlayerID: "alice", Contribution: 10, JoinedAt: *clock}}
	completed := event.StateCompleted
	if err := s.store.UpdateEvent(ctx, ev.ID, storage.Update{State: &completed, Participants: final}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.mu.Lock()
	delete(s.live, ev.ID)
	delete(s.byKey, liveKey{ev.Type, ev.Scope})
	s.mu.Unlock()

	// Diverge the open ledger from the persisted list so a stale write
	// would be visible.
	if err := s.ledger.Contribute(ev.ID, "alice", 90); err != nil {
		t.Fatalf("ledger contribute: %v", err)
	}

	s.persistParticipants(ctx, ev.ID)

	got, err := s.store.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Participants) != 1 || got.Participants[0].Contribution != 10 {
		t.Fatalf("terminal participants overwritten by stale write: %+v", got.Participants)
	}
}
