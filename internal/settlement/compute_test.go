package settlement

import (
	"testing"

	"worldevents/internal/catalog"
	"worldevents/internal/event"
)

func TestComputeWeightedShares(t *testing.T) {
	t.Parallel()
	cfg := catalog.TypeConfig{MinParticipants: 1, BonusRate: 0.05}
	base := event.Rewards{"xp": 100, "stardust": 50}
	parts := []event.Participant{
		{PlayerID: "alice", Contribution: 30},
		{PlayerID: "bob", Contribution: 70},
	}

	grants := Compute("ev1", base, cfg, parts)
	if len(grants) != 2 {
		t.Fatalf("grants = %d, want 2", len(grants))
	}

	// n=2, bonus=1.1; alice share 0.3 -> factor 0.715; bob share 0.7 -> 0.935.
	want := map[string]event.Rewards{
		"alice": {"xp": 71, "stardust": 35},
		"bob":   {"xp": 93, "stardust": 46},
	}
	for _, g := range grants {
		if g.EventID != "ev1" {
			t.Fatalf("event id = %s", g.EventID)
		}
		w := want[g.PlayerID]
		for cur, amt := range w {
			if g.Amounts[cur] != amt {
				t.Fatalf("%s %s = %d, want %d", g.PlayerID, cur, g.Amounts[cur], amt)
			}
		}
	}
}

func TestComputeEqualSplitWhenNoContributions(t *testing.T) {
	t.Parallel()
	cfg := catalog.TypeConfig{MinParticipants: 1, BonusRate: 0.05}
	base := event.Rewards{"xp": 100}
	parts := []event.Participant{
		{PlayerID: "alice"},
		{PlayerID: "bob"},
	}

	grants := Compute("ev1", base, cfg, parts)
	if len(grants) != 2 {
		t.Fatalf("grants = %d, want 2", len(grants))
	}
	// bonus 1.1, equal share 0.5 -> factor 1.1 * 0.75 = 0.825.
	for _, g := range grants {
		if g.Amounts["xp"] != 82 {
			t.Fatalf("%s xp = %d, want 82", g.PlayerID, g.Amounts["xp"])
		}
	}
}

func TestComputeSoloParticipant(t *testing.T) {
	t.Parallel()
	cfg := catalog.TypeConfig{MinParticipants: 1, BonusRate: 0.05}
	base := event.Rewards{"xp": 100, "stardust": 50}

	grants := Compute("ev1", base, cfg, []event.Participant{{PlayerID: "solo"}})
	if len(grants) != 1 {
		t.Fatalf("grants = %d, want 1", len(grants))
	}
	// bonus 1.05, share 1 -> factor 1.05.
	if got := grants[0].Amounts["xp"]; got != 105 {
		t.Fatalf("xp = %d, want 105", got)
	}
	if got := grants[0].Amounts["stardust"]; got != 52 {
		t.Fatalf("stardust = %d, want 52", got)
	}
}

// Contributing more never pays less: with the other participant held
// fixed, a player's grant in every currency is non-decreasing in their
// own contribution.
func TestComputeRewardGrowsWithOwnContribution(t *testing.T) {
	t.Parallel()
	cfg := catalog.TypeConfig{MinParticipants: 1, BonusRate: 0.05}
	base := event.Rewards{"xp": 100, "stardust": 50}

	grantFor := func(t *testing.T, own, other int64) event.Rewards {
		t.Helper()
		parts := []event.Participant{
			{PlayerID: "alice", Contribution: own},
			{PlayerID: "bob", Contribution: other},
		}
		for _, g := range Compute("ev1", base, cfg, parts) {
			if g.PlayerID == "alice" {
				return g.Amounts
			}
		}
		t.Fatalf("no grant for alice at contribution %d", own)
		return nil
	}

	for _, other := range []int64{0, 40} {
		// Starting at 0 covers the switch from the equal split to the
		// weighted share.
		steps := []int64{0, 1, 5, 40, 400, 4000}
		prev := grantFor(t, steps[0], other)
		for _, own := range steps[1:] {
			got := grantFor(t, own, other)
			for currency, amt := range got {
				if amt < prev[currency] {
					t.Fatalf("other=%d: %s dropped from %d to %d when contribution rose to %d",
						other, currency, prev[currency], amt, own)
				}
			}
			prev = got
		}
	}
}

func TestComputeFizzle(t *testing.T) {
	t.Parallel()
	cfg := catalog.TypeConfig{MinParticipants: 5, BonusRate: 0.02}
	parts := []event.Participant{
		{PlayerID: "a"}, {PlayerID: "b"}, {PlayerID: "c"},
	}
	if grants := Compute("ev1", event.Rewards{"xp": 100}, cfg, parts); grants != nil {
		t.Fatalf("expected fizzle, got %d grants", len(grants))
	}
	if grants := Compute("ev1", event.Rewards{"xp": 100}, cfg, nil); grants != nil {
		t.Fatal("expected no grants for zero participants")
	}
}
