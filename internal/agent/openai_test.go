package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/pkg/logger"
)

// stubCompleter scripts provider outcomes per call.
type stubCompleter struct {
	calls    int
	failures int
	content  string
	lastReq  openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	s.lastReq = req
	if s.calls <= s.failures {
		return openai.ChatCompletionResponse{}, errors.New("rate limited")
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
		Usage: openai.Usage{TotalTokens: 42},
	}, nil
}

func newOpenAITestAgent(client chatCompleter) *OpenAIAgent {
	return &OpenAIAgent{
		base:        testBase("Sam"),
		client:      client,
		maxAttempts: 3,
		retryBase:   time.Millisecond,
		log:         logger.NewNop(),
	}
}

func TestOpenAIGenerate_Success(t *testing.T) {
	stub := &stubCompleter{content: "I'd suggest Luigi's for the price."}
	a := newOpenAITestAgent(stub)

	history := []model.ConversationMessage{convMsg("Jordan", "where should we eat?")}
	last := history[0]
	resp, err := a.GenerateResponse(context.Background(), history, "pick a restaurant", &last)
	require.NoError(t, err)

	assert.True(t, resp.ShouldRespond)
	assert.Equal(t, "I'd suggest Luigi's for the price.", resp.Content)
	assert.Equal(t, 42, resp.Metadata["tokens_used"])
	assert.Equal(t, 1, stub.calls)

	// System prompt first, then history with speaker prefixes.
	require.NotEmpty(t, stub.lastReq.Messages)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.lastReq.Messages[0].Role)
	assert.Equal(t, "Jordan: where should we eat?", stub.lastReq.Messages[1].Content)
	assert.Equal(t, "gpt-4", stub.lastReq.Model)
}

func TestOpenAIGenerate_OwnMessagesAreAssistantRole(t *testing.T) {
	stub := &stubCompleter{content: "ok"}
	a := newOpenAITestAgent(stub)

	history := []model.ConversationMessage{
		convMsg("Jordan", "hello"),
		convMsg("Sam", "hi there"),
	}
	last := history[1]
	_, err := a.GenerateResponse(context.Background(), history, "task", &last)
	require.NoError(t, err)

	assert.Equal(t, openai.ChatMessageRoleUser, stub.lastReq.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, stub.lastReq.Messages[2].Role)
}

func TestOpenAIGenerate_RetriesThenSucceeds(t *testing.T) {
	stub := &stubCompleter{failures: 2, content: "made it"}
	a := newOpenAITestAgent(stub)

	last := convMsg("Jordan", "hi")
	resp, err := a.GenerateResponse(context.Background(), nil, "task", &last)
	require.NoError(t, err)

	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, "made it", resp.Content)
}

func TestOpenAIGenerate_DegradesAfterExhaustedRetries(t *testing.T) {
	stub := &stubCompleter{failures: 10}
	a := newOpenAITestAgent(stub)

	last := convMsg("Jordan", "hi")
	resp, err := a.GenerateResponse(context.Background(), nil, "task", &last)
	require.NoError(t, err)

	// Exactly maxAttempts calls, then the canned fallback.
	assert.Equal(t, 3, stub.calls)
	assert.True(t, resp.ShouldRespond)
	assert.Equal(t, fallbackContent, resp.Content)
	assert.Equal(t, true, resp.Metadata["degraded"])
}

func TestOpenAIGenerate_HistoryWindowed(t *testing.T) {
	stub := &stubCompleter{content: "ok"}
	a := newOpenAITestAgent(stub)

	history := make([]model.ConversationMessage, 0, 30)
	for i := 0; i < 30; i++ {
		history = append(history, convMsg("Jordan", "filler"))
	}
	last := history[len(history)-1]
	_, err := a.GenerateResponse(context.Background(), history, "task", &last)
	require.NoError(t, err)

	// One system message plus the trailing window.
	assert.Len(t, stub.lastReq.Messages, 1+historyWindow)
}
