package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RunTimeouts sweeps sessions on a ticker and times out the ones past their
// deadline. Blocks until ctx is cancelled.
func (o *Orchestrator) RunTimeouts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepTimeouts(ctx)
		}
	}
}

func (o *Orchestrator) sweepTimeouts(ctx context.Context) {
	now := time.Now()

	o.mu.Lock()
	snapshot := make(map[string]*sessionState, len(o.states))
	for id, st := range o.states {
		snapshot[id] = st
	}
	o.mu.Unlock()

	for id, st := range snapshot {
		st.mu.Lock()
		due := !st.deadline.IsZero() && now.After(st.deadline)
		st.mu.Unlock()
		if !due {
			continue
		}
		if err := o.Timeout(ctx, id); err != nil {
			// A session that reached a terminal state between the deadline
			// check and the transition is not the sweeper's problem.
			var stateErr *StateError
			if errors.As(err, &stateErr) {
				continue
			}
			o.log.Error("session timeout failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}
}
