package event

import (
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateScheduled, StateActive, true},
		{StateScheduled, StateCancelled, true},
		{StateScheduled, StateCompleted, false},
		{StateActive, StateCompleted, true},
		{StateActive, StateCancelled, true},
		{StateActive, StateScheduled, false},
		{StateCompleted, StateActive, false},
		{StateCancelled, StateScheduled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	for _, s := range []State{StateCompleted, StateCancelled} {
		if !s.Terminal() || s.Live() {
			t.Errorf("%s: Terminal=%v Live=%v", s, s.Terminal(), s.Live())
		}
	}
	for _, s := range []State{StateScheduled, StateActive} {
		if s.Terminal() || !s.Live() {
			t.Errorf("%s: Terminal=%v Live=%v", s, s.Terminal(), s.Live())
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	orig := ScheduledEvent{
		ID:          "ev1",
		BaseRewards: Rewards{"xp": 100},
		Anchor:      &Anchor{X: 1, Radius: 50},
		Participants: []Participant{
			{PlayerID: "alice", JoinedAt: time.Now(), Contribution: 3},
		},
		Metadata: map[string]string{"biome": "tundra"},
	}

	cp := orig.Clone()
	cp.BaseRewards["xp"] = 1
	cp.Anchor.X = 99
	cp.Participants[0].Contribution = 0
	cp.Metadata["biome"] = "desert"

	if orig.BaseRewards["xp"] != 100 {
		t.Fatal("rewards shared")
	}
	if orig.Anchor.X != 1 {
		t.Fatal("anchor shared")
	}
	if orig.Participants[0].Contribution != 3 {
		t.Fatal("participants shared")
	}
	if orig.Metadata["biome"] != "tundra" {
		t.Fatal("metadata shared")
	}
}
