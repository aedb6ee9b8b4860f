package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/pkg/logger"
	"github.com/team-llm/experiment-platform/pkg/metrics"

	"go.uber.org/zap"
)

// chatCompleter is the slice of the OpenAI client agents use. Tests stub it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAgent is an AI team member backed by an OpenAI chat model.
type OpenAIAgent struct {
	base

	client      chatCompleter
	maxAttempts int
	retryBase   time.Duration
	log         *logger.Logger
}

// GenerateResponse calls the OpenAI API with the agent's system prompt and
// recent history, retrying transient failures and degrading to a fallback
// response once retries are exhausted.
func (a *OpenAIAgent) GenerateResponse(ctx context.Context, history []model.ConversationMessage, taskInstructions string, last *model.ConversationMessage) (*Response, error) {
	start := time.Now()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt(taskInstructions)},
	}
	for _, msg := range recent(history, historyWindow) {
		role := openai.ChatMessageRoleUser
		if msg.ParticipantName == a.name {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: fmt.Sprintf("%s: %s", msg.ParticipantName, msg.Content),
		})
	}

	var content string
	var tokens int
	op := func() error {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:            providerModel(a.modelID),
			Messages:         messages,
			Temperature:      0.7,
			MaxTokens:        150,
			PresencePenalty:  0.1,
			FrequencyPenalty: 0.1,
		})
		if err != nil {
			return &ProviderError{Provider: "openai", Err: err}
		}
		if len(resp.Choices) == 0 {
			return &ProviderError{Provider: "openai", Err: errors.New("empty completion")}
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		tokens = resp.Usage.TotalTokens
		return nil
	}

	if err := retryProvider(ctx, a.maxAttempts, a.retryBase, op); err != nil {
		a.log.Warn("provider unreachable, degrading response",
			zap.String("agent", a.name),
			zap.Error(err),
		)
		metrics.RecordAgentResponse("openai", "degraded", time.Since(start).Seconds())
		return degraded(a.modelID, err), nil
	}

	content = a.typos.Apply(content)
	metrics.RecordAgentResponse("openai", "ok", time.Since(start).Seconds())

	return &Response{
		Content:       content,
		ShouldRespond: true,
		Metadata: map[string]any{
			"model":       a.modelID,
			"tokens_used": tokens,
		},
	}, nil
}
