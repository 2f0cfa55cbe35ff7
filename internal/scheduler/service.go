package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"worldevents/internal/catalog"
	"worldevents/internal/event"
	"worldevents/internal/eventbus"
	"worldevents/internal/ledger"
	"worldevents/internal/settlement"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

func New(cfg Config, cat *catalog.Catalog, store storage.Store, bus eventbus.Bus, led *ledger.Ledger, grants *settlement.Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		cfg:     cfg.withDefaults(),
		catalog: cat,
		store:   store,
		bus:     bus,
		ledger:  led,
		grants:  grants,
		live:    map[string]event.ScheduledEvent{},
		byKey:   map[liveKey]string{},
		now:     time.Now,
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Start restores live events from the store and begins ticking.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := s.loadLocationLocked()
	s.loc = loc

	if err := s.restoreLocked(ctx); err != nil {
		return fmt.Errorf("restore live events: %w", err)
	}

	s.c = cron.New(cron.WithLocation(loc))
	spec := fmt.Sprintf("@every %s", s.cfg.TickInterval)
	if _, err := s.c.AddFunc(spec, func() { s.Tick(s.now()) }); err != nil {
		s.c = nil
		return fmt.Errorf("register tick: %w", err)
	}
	s.c.Start()
	s.log.Info("schedule driver started",
		logx.String("tz", loc.String()),
		logx.Duration("tick", s.cfg.TickInterval),
		logx.Int("definitions", len(s.defs)),
		logx.Int("live", len(s.live)))
	return nil
}

// Stop stops ticking. Live events stay in the store and resume on the
// next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("schedule driver stopped")
}

// restoreLocked rebuilds the live index, pending transitions, and ledger
// entries from persisted scheduled/active events.
func (s *Service) restoreLocked(ctx context.Context) error {
	evs, err := s.store.ListEvents(ctx, storage.Filter{
		States: []event.State{event.StateScheduled, event.StateActive},
	})
	if err != nil {
		return err
	}
	for _, ev := range evs {
		key := liveKey{ev.Type, ev.Scope}
		if prev, ok := s.byKey[key]; ok {
			// Shouldn't happen with a single driver instance; keep the
			// first and leave the duplicate to age out untouched.
			s.log.Warn("duplicate live event for key, skipping restore",
				logx.String("event_id", ev.ID),
				logx.String("kept", prev),
				logx.String("type", string(ev.Type)),
				logx.String("scope", string(ev.Scope)))
			continue
		}
		s.live[ev.ID] = ev
		s.byKey[key] = ev.ID
		switch ev.State {
		case event.StateScheduled:
			s.pushTransitionLocked(transition{at: ev.StartTime, id: ev.ID, to: event.StateActive})
		case event.StateActive:
			cfg, err := s.catalog.Lookup(ev.Type)
			maxP := 0
			if err != nil {
				s.log.Error("restored event references unknown type", logx.String("event_id", ev.ID), logx.Err(err))
			} else {
				maxP = cfg.MaxParticipants
			}
			s.ledger.Open(ev.ID, maxP, ev.Participants)
			s.pushTransitionLocked(transition{at: ev.EndTime, id: ev.ID, to: event.StateCompleted})
		}
	}
	if len(evs) > 0 {
		s.log.Info("restored live events", logx.Int("count", len(evs)))
	}
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// RegisterDefinition adds a recurring definition. The referenced type
// must exist in the catalog.
func (s *Service) RegisterDefinition(def Definition) error {
	if def.Rule.IsZero() {
		return fmt.Errorf("definition %q: recurrence rule is required", def.Name)
	}
	if _, err := s.catalog.Lookup(def.Type); err != nil {
		return fmt.Errorf("definition %q: %w", def.Name, err)
	}
	if def.Scope == "" {
		def.Scope = event.ScopeAll
	}
	if def.Name == "" {
		def.Name = fmt.Sprintf("%s@%s", def.Type, def.Scope)
	}
	s.mu.Lock()
	s.defs = append(s.defs, def)
	s.mu.Unlock()
	s.log.Info("recurring definition registered",
		logx.String("name", def.Name),
		logx.String("rule", def.Rule.String()),
		logx.String("type", string(def.Type)),
		logx.String("scope", string(def.Scope)))
	return nil
}

// Definitions returns a copy of the registered recurring definitions.
func (s *Service) Definitions() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// settleLocked computes grants for a completed event and hands them to
// the dispatcher. Called exactly once per completion, inside the tick.
func (s *Service) settleLocked(ev event.ScheduledEvent, parts []event.Participant) {
	cfg, err := s.catalog.Lookup(ev.Type)
	if err != nil {
		s.log.Error("settlement skipped: unknown event type",
			logx.String("event_id", ev.ID),
			logx.Err(err))
		return
	}
	grants := settlement.Compute(ev.ID, ev.BaseRewards, cfg, parts)
	if len(grants) == 0 {
		s.log.Info("event fizzled, no rewards",
			logx.String("event_id", ev.ID),
			logx.Int("participants", len(parts)),
			logx.Int("min_participants", cfg.MinParticipants))
		return
	}
	s.grants.Enqueue(grants...)
	s.log.Info("settlement dispatched",
		logx.String("event_id", ev.ID),
		logx.Int("grants", len(grants)))
}

func (s *Service) publishEvent(topic eventbus.Topic, ev event.ScheduledEvent) {
	s.bus.Publish(eventbus.Message{
		Topic: topic,
		Data: eventbus.EventPayload{
			ID:        ev.ID,
			Type:      string(ev.Type),
			Scope:     string(ev.Scope),
			StartTime: ev.StartTime,
			EndTime:   ev.EndTime,
		},
	})
}
