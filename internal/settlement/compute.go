// Package settlement computes and dispatches reward payouts when an event
// completes.
//
// Compute is pure; Dispatcher owns the asynchronous hand-off to the
// progression collaborator so a slow sink can never stall the tick loop.
package settlement

import (
	"math"

	"worldevents/internal/catalog"
	"worldevents/internal/event"
)

// Grant is one participant's payout.
type Grant struct {
	EventID  string
	PlayerID string
	Amounts  event.Rewards
}

// Compute derives the grants for a completed event.
//
// Policy:
//   - Fewer participants than cfg.MinParticipants: the event fizzles and
//     no grants are emitted. Not an error.
//   - bonus = 1 + participants * cfg.BonusRate
//   - share = contribution / totalContribution, or an equal split when
//     nobody contributed anything measurable.
//   - per currency: floor(base * bonus * (0.5 + share*0.5))
//
// The 0.5 + share*0.5 blend guarantees every qualifying participant at
// least half the bonus-adjusted base while the top contributor can earn
// the full amount.
func Compute(eventID string, base event.Rewards, cfg catalog.TypeConfig, parts []event.Participant) []Grant {
	n := len(parts)
	if n < cfg.MinParticipants || n == 0 {
		return nil
	}

	bonus := 1 + float64(n)*cfg.BonusRate

	var total int64
	for _, p := range parts {
		total += p.Contribution
	}

	grants := make([]Grant, 0, n)
	for _, p := range parts {
		var share float64
		if total > 0 {
			share = float64(p.Contribution) / float64(total)
		} else {
			share = 1 / float64(n)
		}
		factor := bonus * (0.5 + share*0.5)

		amounts := make(event.Rewards, len(base))
		for cur, amt := range base {
			amounts[cur] = int64(math.Floor(float64(amt) * factor))
		}
		grants = append(grants, Grant{EventID: eventID, PlayerID: p.PlayerID, Amounts: amounts})
	}
	return grants
}
