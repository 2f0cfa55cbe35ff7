package catalog

import (
	"time"

	"worldevents/internal/event"
)

// builtins are the stock world-event types. Operators can override or
// extend them via the catalog section of the config file.
var builtins = []TypeConfig{
	{
		Type:            "meteor_shower",
		Name:            "Meteor Shower",
		Description:     "Falling stardust collectable across the open world.",
		MinDuration:     5 * time.Minute,
		MaxDuration:     time.Hour,
		DefaultDuration: 15 * time.Minute,
		MinParticipants: 1,
		MaxParticipants: 100,
		BaseRewards:     event.Rewards{"xp": 100, "stardust": 50},
		BonusRate:       0.05,
		Mechanics:       []string{"collect", "sky"},
	},
	{
		Type:            "aurora_borealis",
		Name:            "Aurora Borealis",
		Description:     "Northern lights grant a crafting luck buff while active.",
		MinDuration:     10 * time.Minute,
		MaxDuration:     2 * time.Hour,
		DefaultDuration: 30 * time.Minute,
		MinParticipants: 1,
		MaxParticipants: 200,
		BaseRewards:     event.Rewards{"xp": 150, "stardust": 25},
		BonusRate:       0.02,
		Mechanics:       []string{"buff", "sky"},
	},
	{
		Type:            "harmonic_convergence",
		Name:            "Harmonic Convergence",
		Description:     "A group ritual that only succeeds with enough players.",
		MinDuration:     10 * time.Minute,
		MaxDuration:     time.Hour,
		DefaultDuration: 20 * time.Minute,
		MinParticipants: 5,
		MaxParticipants: 50,
		BaseRewards:     event.Rewards{"xp": 300, "stardust": 120},
		BonusRate:       0.04,
		Mechanics:       []string{"ritual", "group"},
	},
	{
		Type:            "starfall_bloom",
		Name:            "Starfall Bloom",
		Description:     "Rare flora sprouts near the impact site of last night's meteors.",
		MinDuration:     5 * time.Minute,
		MaxDuration:     45 * time.Minute,
		DefaultDuration: 10 * time.Minute,
		MinParticipants: 1,
		MaxParticipants: 40,
		BaseRewards:     event.Rewards{"xp": 80, "stardust": 90},
		BonusRate:       0.03,
		Mechanics:       []string{"gather", "ground"},
	},
}
