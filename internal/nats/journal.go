package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/pkg/logger"
	"github.com/team-llm/experiment-platform/pkg/metrics"

	"go.uber.org/zap"
)

const (
	streamName     = "TEAM_SESSIONS"
	streamSubjects = "team.>"
	streamMaxAge   = 30 * 24 * time.Hour
)

// Journal records session messages and lifecycle events to JetStream. The
// in-memory stores stay authoritative; a publish failure is logged and
// counted but never surfaces to the caller.
type Journal struct {
	js  nats.JetStreamContext
	log *logger.Logger
}

// NewJournal builds a journal over an established client and ensures the
// backing stream exists.
func NewJournal(c *Client) (*Journal, error) {
	j := &Journal{js: c.js, log: c.log}
	if err := j.ensureStream(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) ensureStream() error {
	_, err := j.js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("checking stream %s: %w", streamName, err)
	}

	_, err = j.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{streamSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", streamName, err)
	}
	j.log.Info("created journal stream", zap.String("stream", streamName))
	return nil
}

// RecordMessage journals a persisted chat message.
func (j *Journal) RecordMessage(m *model.Message) {
	j.publish(fmt.Sprintf("team.%s.msg", m.SessionID), m)
}

// RecordEvent journals a session lifecycle event.
func (j *Journal) RecordEvent(sessionID string, eventType model.EventType, payload any) {
	j.publish(fmt.Sprintf("team.%s.event.%s", sessionID, eventType), payload)
}

func (j *Journal) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		j.log.Warn("journal marshal failed", zap.String("subject", subject), zap.Error(err))
		metrics.JournalPublishFailures.Inc()
		return
	}
	if _, err := j.js.PublishAsync(subject, data); err != nil {
		j.log.Warn("journal publish failed", zap.String("subject", subject), zap.Error(err))
		metrics.JournalPublishFailures.Inc()
	}
}
