// Package agent provides AI team member implementations and their
// participation heuristics.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/team-llm/experiment-platform/internal/model"
)

// historyWindow is the number of trailing messages included as generation
// context.
const historyWindow = 20

// maxResponseLength is the behavioral cap agents are instructed to respect;
// responses are also truncated to it defensively by the mock variant.
const maxResponseLength = 250

// fallbackContent is what participants see when a provider stays unreachable
// after retries.
const fallbackContent = "Sorry, I'm having trouble responding right now."

// Response is the transient result of one generation call. The caller
// persists it as a Message.
type Response struct {
	Content       string
	ShouldRespond bool
	Metadata      map[string]any
}

// Agent is an AI team member: it decides whether to speak and produces
// utterances grounded in its configured knowledge.
type Agent interface {
	// Name returns the agent's role name within the session.
	Name() string

	// ShouldParticipate decides whether the agent responds to the last message.
	ShouldParticipate(history []model.ConversationMessage, last *model.ConversationMessage) bool

	// GenerateResponse produces an utterance. Transient provider failures are
	// retried and then degraded to a fallback response; a non-nil error means
	// the agent skips its turn.
	GenerateResponse(ctx context.Context, history []model.ConversationMessage, taskInstructions string, last *model.ConversationMessage) (*Response, error)
}

// base carries the configuration and heuristics shared by all agent variants.
type base struct {
	name      string
	modelID   string
	persona   string
	strategy  string
	knowledge model.Knowledge

	policy *Policy
	typos  *Perturber
}

func (b *base) Name() string {
	return b.name
}

func (b *base) ShouldParticipate(history []model.ConversationMessage, last *model.ConversationMessage) bool {
	return b.policy.ShouldParticipate(b.name, b.knowledge, history, last)
}

// formatKnowledge renders the agent's knowledge as a readable outline.
func (b *base) formatKnowledge() string {
	var sb strings.Builder
	for _, topic := range sortedKeys(b.knowledge) {
		sb.WriteString("\n")
		sb.WriteString(topic)
		sb.WriteString(":")
		criteria := b.knowledge[topic]
		for _, criterion := range sortedKeys(criteria) {
			sb.WriteString(fmt.Sprintf("\n  - %s: %s", criterion, criteria[criterion]))
		}
	}
	return sb.String()
}

// systemPrompt assembles the persona, task context, knowledge outline,
// optional strategy hint and the fixed behavior rules.
func (b *base) systemPrompt(taskInstructions string) string {
	parts := []string{
		b.persona,
		"\nTASK INSTRUCTIONS:",
		taskInstructions,
		"\nYOUR UNIQUE INFORMATION:",
		b.formatKnowledge(),
	}
	if b.strategy != "" {
		parts = append(parts, "\nSTRATEGY: "+b.strategy)
	}
	parts = append(parts,
		"\nIMPORTANT RULES:",
		"- Keep messages under 250 characters",
		"- Respond naturally and conversationally",
		"- Share your unique information when relevant",
		"- Help the team work toward completing the task",
		"- Say 'task-complete' only when the team has agreed on a final answer",
	)

	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// recent returns at most the last n history entries, order preserved.
func recent(history []model.ConversationMessage, n int) []model.ConversationMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// sortedKeys returns map keys in stable order so seeded draws and prompts are
// reproducible.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// retryProvider runs op with bounded exponential backoff. maxAttempts counts
// the first call: 3 attempts means two retries, backing off from initial
// toward 10s.
func retryProvider(ctx context.Context, maxAttempts int, initial time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = 10 * time.Second
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), uint64(maxAttempts-1)))
}

// degraded builds the safe fallback response used when retries are exhausted.
func degraded(modelID string, err error) *Response {
	return &Response{
		Content:       fallbackContent,
		ShouldRespond: true,
		Metadata: map[string]any{
			"model":    modelID,
			"degraded": true,
			"error":    err.Error(),
		},
	}
}

// providerModel extracts the bare model name from a provider/model identifier.
func providerModel(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}
