package scheduler

import (
	"time"

	"worldevents/internal/settlement"
)

// DefinitionInfo is a read-only view of one recurring definition.
type DefinitionInfo struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Scope    string        `json:"scope"`
	Rule     string        `json:"rule"`
	Duration time.Duration `json:"duration"`
}

// Snapshot is a point-in-time diagnostic view of the driver.
type Snapshot struct {
	Enabled      bool          `json:"enabled"`
	Timezone     string        `json:"timezone"`
	TickInterval time.Duration `json:"tick_interval"`

	LiveEvents         int    `json:"live_events"`
	PendingTransitions int    `json:"pending_transitions"`
	TicksRun           uint64 `json:"ticks_run"`
	TicksSkipped       uint64 `json:"ticks_skipped"`

	Definitions []DefinitionInfo `json:"definitions"`
	Dispatch    settlement.Stats `json:"dispatch"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Enabled:            s.cfg.Enabled,
		Timezone:           s.cfg.Timezone,
		TickInterval:       s.cfg.TickInterval,
		LiveEvents:         len(s.live),
		PendingTransitions: len(s.pending),
		TicksRun:           s.ticksRun,
		TicksSkipped:       s.ticksSkipped,
		Definitions:        make([]DefinitionInfo, 0, len(s.defs)),
	}
	for _, d := range s.defs {
		snap.Definitions = append(snap.Definitions, DefinitionInfo{
			Name:     d.Name,
			Type:     string(d.Type),
			Scope:    string(d.Scope),
			Rule:     d.Rule.String(),
			Duration: d.Duration,
		})
	}
	if s.grants != nil {
		snap.Dispatch = s.grants.Stats()
	}
	return snap
}
