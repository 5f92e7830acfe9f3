package ping

import (
	"context"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// State is the persisted per-installation ping state.
type State struct {
	// LastSent is the most recent day whose signal was acknowledged. Zero
	// means nothing was ever sent.
	LastSent heartbeat.Date
}

// SentOn reports whether the signal for day was already acknowledged.
func (s State) SentOn(day heartbeat.Date) bool {
	return !s.LastSent.IsZero() && s.LastSent == day
}

// StateStore persists State across process restarts.
type StateStore interface {
	LoadState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, state State) error
}

// Outcome describes what a trigger did.
type Outcome int

const (
	// OutcomeSkipped means today's signal was already acknowledged.
	OutcomeSkipped Outcome = iota
	// OutcomeSent means the signal was acknowledged and the state advanced.
	OutcomeSent
	// OutcomeFailed means the attempt failed and today stays pending.
	OutcomeFailed
	// OutcomeAborted means required host metadata was missing.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSent:
		return "sent"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
