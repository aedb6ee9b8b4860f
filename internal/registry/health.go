package registry

import (
	"context"
	"time"

	"github.com/team-llm/experiment-platform/internal/model"

	"go.uber.org/zap"
)

// HealthChecker periodically probes idle connections and drops the ones that
// stay silent. Probing sends an application-level ping event; a client that
// answers anything at all refreshes its activity timestamp.
type HealthChecker struct {
	registry *Registry

	Interval  time.Duration
	ProbeIdle time.Duration
	DropIdle  time.Duration
}

// NewHealthChecker creates a health checker with the given thresholds.
func NewHealthChecker(r *Registry, interval, probeIdle, dropIdle time.Duration) *HealthChecker {
	return &HealthChecker{
		registry:  r,
		Interval:  interval,
		ProbeIdle: probeIdle,
		DropIdle:  dropIdle,
	}
}

// Run sweeps connections on a ticker until ctx is cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *HealthChecker) sweep() {
	now := time.Now()
	for _, c := range h.registry.snapshot() {
		idle := now.Sub(c.LastActive())
		switch {
		case idle >= h.DropIdle:
			h.registry.log.Info("dropping unresponsive connection",
				zap.String("session_id", c.SessionID),
				zap.String("participant_id", c.ParticipantID),
				zap.Duration("idle", idle),
			)
			h.registry.Disconnect(c.SessionID, c.ParticipantID)

		case idle >= h.ProbeIdle:
			if err := c.Send(&model.PingEvent{Type: model.EventPing, Timestamp: now}); err != nil {
				h.registry.Disconnect(c.SessionID, c.ParticipantID)
			}
		}
	}
}
