package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/metrics"

	"go.uber.org/zap"
)

// agentTurnTimeout bounds one agent's generation, retries included.
const agentTurnTimeout = 60 * time.Second

// maxTurnPasses caps how many consecutive turn-taking passes one inbound
// message can trigger. Anti-domination normally quiets the roster well before
// the cap.
const maxTurnPasses = 25

// OnChatMessage persists a participant's message, broadcasts it, checks the
// completion trigger, and kicks off AI turn-taking.
func (o *Orchestrator) OnChatMessage(ctx context.Context, sessionID, participantID, content string, metadata map[string]any) (*model.Message, error) {
	st, err := o.state(sessionID)
	if err != nil {
		return nil, err
	}
	p, err := o.stores.Participants.GetParticipant(ctx, participantID)
	if err != nil || p.SessionID != sessionID || !p.Present() {
		return nil, store.ErrNotFound
	}

	msg, completed, err := o.appendChat(ctx, st, p, content, metadata)
	if err != nil {
		return nil, err
	}

	if !completed {
		go o.runAITurns(sessionID)
	}
	return msg, nil
}

// appendChat persists one chat message under the session lock and handles the
// keyword completion trigger. Returns completed=true when the message ended
// the session.
func (o *Orchestrator) appendChat(ctx context.Context, st *sessionState, p *model.Participant, content string, metadata map[string]any) (*model.Message, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := o.stores.Sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, false, err
	}
	if sess.Status != model.SessionActive {
		return nil, false, &StateError{SessionID: sess.ID, Status: string(sess.Status), Op: "send message"}
	}

	msg := &model.Message{
		ID:              uuid.NewString(),
		SessionID:       sess.ID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		ParticipantType: p.Type,
		Content:         content,
		Metadata:        metadata,
		Timestamp:       time.Now().UTC(),
	}
	if _, err := o.stores.Messages.Append(ctx, msg); err != nil {
		return nil, false, err
	}
	metrics.MessagesTotal.WithLabelValues(string(p.Type)).Inc()
	o.journal.RecordMessage(msg)
	o.registry.BroadcastToSession(sess.ID, model.NewChatEvent(msg), "")

	if matched, value := st.config.Scenario.CompletionTrigger.Match(content); matched {
		o.completeLocked(ctx, st, sess, model.TriggerKeyword, value)
		return msg, true, nil
	}
	return msg, false, nil
}

// runAITurns gives each present AI participant, in join order, a chance to
// respond. An AI response is a chat message in its own right, so a pass that
// produced any is followed by another one until a full pass stays silent, the
// session leaves ACTIVE, or the pass cap is reached. Passes for the same
// session never overlap; a pass started while another runs waits its turn and
// re-reads the conversation.
func (o *Orchestrator) runAITurns(sessionID string) {
	st, err := o.state(sessionID)
	if err != nil {
		return
	}

	st.turnMu.Lock()
	defer st.turnMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	ctx := context.Background()
	aiParticipants, err := o.stores.Participants.PresentOfType(ctx, sessionID, model.ParticipantAI)
	if err != nil {
		o.log.Error("loading AI participants failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	responses := 0
	for pass := 0; pass < maxTurnPasses; pass++ {
		produced := false
		for _, p := range aiParticipants {
			sess, err := o.stores.Sessions.GetSession(ctx, sessionID)
			if err != nil || sess.Status != model.SessionActive {
				return
			}

			ag := st.agents[p.Name]
			role := st.config.RoleByName(p.Name)
			if ag == nil || role == nil {
				o.log.Warn("AI participant has no matching role, skipping",
					zap.String("session_id", sessionID),
					zap.String("participant", p.Name),
				)
				continue
			}

			recent, err := o.stores.Messages.Recent(ctx, sessionID, historyWindow)
			if err != nil || len(recent) == 0 {
				continue
			}
			history := model.ConversationView(recent)
			last := &history[len(history)-1]

			if !ag.ShouldParticipate(history, last) {
				continue
			}

			genCtx, cancel := context.WithTimeout(ctx, agentTurnTimeout)
			resp, err := ag.GenerateResponse(genCtx, history, st.config.Scenario.Task, last)
			cancel()
			if err != nil {
				o.log.Warn("agent turn failed, skipping",
					zap.String("session_id", sessionID),
					zap.String("agent", p.Name),
					zap.Error(err),
				)
				continue
			}
			if resp == nil || !resp.ShouldRespond || resp.Content == "" {
				continue
			}

			if responses > 0 && o.opts.AITurnPacing > 0 {
				time.Sleep(o.opts.AITurnPacing)
			}

			if _, completed, err := o.appendChat(ctx, st, p, resp.Content, resp.Metadata); err != nil {
				var stateErr *StateError
				if errors.As(err, &stateErr) {
					return
				}
				o.log.Error("persisting agent message failed",
					zap.String("session_id", sessionID),
					zap.String("agent", p.Name),
					zap.Error(err),
				)
				continue
			} else if completed {
				return
			}
			responses++
			produced = true
		}
		if !produced {
			return
		}
	}
}
