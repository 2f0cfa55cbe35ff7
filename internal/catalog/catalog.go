// Package catalog holds the static per-event-type tunables.
//
// The catalog is assembled once at process start (built-in defaults plus
// config-declared types) and is immutable afterwards. Lookups never block.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"worldevents/internal/event"
)

var ErrUnknownEventType = errors.New("unknown event type")

// TypeConfig is the fixed tuning block for one event type.
type TypeConfig struct {
	Type        event.Type
	Name        string
	Description string

	MinDuration     time.Duration
	MaxDuration     time.Duration
	DefaultDuration time.Duration

	MinParticipants int
	MaxParticipants int

	// BaseRewards is the per-currency payout before the participant bonus.
	BaseRewards event.Rewards

	// BonusRate scales rewards with participant count:
	// multiplier = 1 + participants * BonusRate.
	BonusRate float64

	// Mechanics are free-form tags consumed by gameplay systems.
	Mechanics []string
}

type Catalog struct {
	types map[event.Type]TypeConfig
}

// New builds a catalog from the built-in defaults plus any extra types.
// An extra entry with a known type id overrides the built-in one.
func New(extra ...TypeConfig) (*Catalog, error) {
	c := &Catalog{types: make(map[event.Type]TypeConfig, len(builtins)+len(extra))}
	for _, tc := range builtins {
		c.types[tc.Type] = tc
	}
	for _, tc := range extra {
		if err := validate(tc); err != nil {
			return nil, fmt.Errorf("catalog type %q: %w", tc.Type, err)
		}
		c.types[tc.Type] = normalize(tc)
	}
	return c, nil
}

// Lookup returns the config for a type, or ErrUnknownEventType.
func (c *Catalog) Lookup(t event.Type) (TypeConfig, error) {
	tc, ok := c.types[t]
	if !ok {
		return TypeConfig{}, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	return tc, nil
}

// Types returns all registered configs sorted by type id.
func (c *Catalog) Types() []TypeConfig {
	out := make([]TypeConfig, 0, len(c.types))
	for _, tc := range c.types {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func validate(tc TypeConfig) error {
	if tc.Type == "" {
		return errors.New("type id is required")
	}
	if tc.MinDuration <= 0 || tc.MaxDuration < tc.MinDuration {
		return errors.New("invalid duration bounds")
	}
	if tc.DefaultDuration != 0 && (tc.DefaultDuration < tc.MinDuration || tc.DefaultDuration > tc.MaxDuration) {
		return errors.New("default duration outside bounds")
	}
	if tc.MinParticipants < 0 || tc.MaxParticipants <= 0 || tc.MaxParticipants < tc.MinParticipants {
		return errors.New("invalid participant bounds")
	}
	if tc.BonusRate < 0 {
		return errors.New("negative bonus rate")
	}
	for cur, amt := range tc.BaseRewards {
		if amt < 0 {
			return fmt.Errorf("negative base reward for %q", cur)
		}
	}
	return nil
}

func normalize(tc TypeConfig) TypeConfig {
	if tc.DefaultDuration == 0 {
		tc.DefaultDuration = tc.MinDuration
	}
	if tc.Name == "" {
		tc.Name = string(tc.Type)
	}
	return tc
}
