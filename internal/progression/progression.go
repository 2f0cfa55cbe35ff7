// Package progression is the outbound interface to the player-progression
// collaborator that actually credits rewards.
package progression

import (
	"context"

	"worldevents/internal/event"
	logx "worldevents/pkg/logx"
)

// Sink receives reward grants. Implementations may call an RPC service, a
// message queue, or anything else; the scheduler only sees this interface.
//
// Grants are fire-and-forget: a returned error is logged by the caller and
// never retried.
type Sink interface {
	GrantReward(ctx context.Context, playerID string, amounts event.Rewards) error
}

// LogSink is the default sink: it records grants in the log and credits
// nothing. Useful for development and as wiring until a real progression
// service is attached.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) GrantReward(_ context.Context, playerID string, amounts event.Rewards) error {
	s.log.Info("reward granted",
		logx.String("player_id", playerID),
		logx.Any("amounts", amounts))
	return nil
}
