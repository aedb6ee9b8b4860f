package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/pkg/logger"
	"github.com/team-llm/experiment-platform/pkg/metrics"

	"go.uber.org/zap"
)

// messageCreator is the slice of the Anthropic client agents use. Tests stub it.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicAgent is an AI team member backed by a Claude model.
type AnthropicAgent struct {
	base

	messages    messageCreator
	maxAttempts int
	retryBase   time.Duration
	log         *logger.Logger
}

// GenerateResponse calls the Anthropic API with the agent's system prompt and
// recent history, retrying transient failures and degrading to a fallback
// response once retries are exhausted.
func (a *AnthropicAgent) GenerateResponse(ctx context.Context, history []model.ConversationMessage, taskInstructions string, last *model.ConversationMessage) (*Response, error) {
	start := time.Now()

	window := recent(history, historyWindow)
	params := make([]anthropic.MessageParam, 0, len(window))
	for _, msg := range window {
		role := anthropic.MessageParamRoleUser
		if msg.ParticipantName == a.name {
			role = anthropic.MessageParamRoleAssistant
		}
		params = append(params, anthropic.MessageParam{
			Role: anthropic.F(role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(fmt.Sprintf("%s: %s", msg.ParticipantName, msg.Content)),
				},
			}),
		})
	}
	if len(params) == 0 {
		// The API rejects empty message lists; seed the turn explicitly.
		params = append(params, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRoleUser),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F("The conversation is starting."),
				},
			}),
		})
	}

	var content string
	op := func() error {
		resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.F(providerModel(a.modelID)),
			MaxTokens: anthropic.F(int64(150)),
			System: anthropic.F([]anthropic.TextBlockParam{
				{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(a.systemPrompt(taskInstructions)),
				},
			}),
			Messages: anthropic.F(params),
		})
		if err != nil {
			return &ProviderError{Provider: "anthropic", Err: err}
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == anthropic.ContentBlockTypeText {
				sb.WriteString(block.Text)
			}
		}
		content = strings.TrimSpace(sb.String())
		if content == "" {
			return &ProviderError{Provider: "anthropic", Err: errors.New("empty completion")}
		}
		return nil
	}

	if err := retryProvider(ctx, a.maxAttempts, a.retryBase, op); err != nil {
		a.log.Warn("provider unreachable, degrading response",
			zap.String("agent", a.name),
			zap.Error(err),
		)
		metrics.RecordAgentResponse("anthropic", "degraded", time.Since(start).Seconds())
		return degraded(a.modelID, err), nil
	}

	content = a.typos.Apply(content)
	metrics.RecordAgentResponse("anthropic", "ok", time.Since(start).Seconds())

	return &Response{
		Content:       content,
		ShouldRespond: true,
		Metadata:      map[string]any{"model": a.modelID},
	}, nil
}
