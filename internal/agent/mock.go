package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/team-llm/experiment-platform/internal/model"
)

// responseTemplates are filled with a knowledge topic/criterion pair to
// synthesize plausible discussion turns without a model provider.
var responseTemplates = []string{
	"I think {option} is a good choice because {reason}",
	"Based on {criterion}, I'd suggest {option}",
	"Have we considered {option}? It has {benefit}",
	"I agree with {participant} about {topic}",
	"{option} seems like the best option for {criterion}",
	"My information shows that {option} has {attribute}",
	"Let's go with {option}, it fits our needs",
	"What about {option}? It could work well",
	"I'd rank {option} highly for {reason}",
}

var fallbackLines = []string{
	"That's an interesting point to consider.",
	"I see what you mean. Let me think about that.",
	"Good observation! What do others think?",
	"That could work. Any other suggestions?",
	"I'm learning a lot from this discussion.",
}

// MockAgent simulates AI behavior without calling any external provider.
// It draws from its configured knowledge to fill response templates and
// suspends briefly to imitate thinking time.
type MockAgent struct {
	base

	rng      *lockedRand
	minThink time.Duration
	maxThink time.Duration
}

// GenerateResponse synthesizes a response from the agent's knowledge after a
// bounded simulated thinking delay. The delay respects ctx cancellation and
// never blocks other agents.
func (a *MockAgent) GenerateResponse(ctx context.Context, history []model.ConversationMessage, taskInstructions string, last *model.ConversationMessage) (*Response, error) {
	think := a.minThink
	if a.maxThink > a.minThink {
		think += time.Duration(a.rng.Float64() * float64(a.maxThink-a.minThink))
	}
	if think > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(think):
		}
	}

	// Long conversations occasionally converge.
	if len(history) > 15 && a.rng.Float64() < 0.2 {
		return &Response{
			Content:       "I think we've reached a consensus. task-complete",
			ShouldRespond: true,
			Metadata:      map[string]any{"mock": true},
		}, nil
	}

	content := a.contextualResponse(history)
	content = a.typos.Apply(content)

	return &Response{
		Content:       content,
		ShouldRespond: true,
		Metadata: map[string]any{
			"mock":             true,
			"model":            "mock",
			"thinking_seconds": think.Seconds(),
		},
	}, nil
}

// contextualResponse fills a template with a random knowledge topic and
// criterion. Keys are drawn in sorted order so a fixed seed yields a fixed
// response.
func (a *MockAgent) contextualResponse(history []model.ConversationMessage) string {
	topics := sortedKeys(a.knowledge)
	if len(topics) > 0 {
		topic := topics[a.rng.Intn(len(topics))]
		criteria := a.knowledge[topic]
		names := sortedKeys(criteria)
		if len(names) > 0 {
			criterion := names[a.rng.Intn(len(names))]
			value := criteria[criterion]

			participant := "everyone"
			if others := otherSpeakers(a.name, recent(history, recentWindow)); len(others) > 0 {
				participant = others[a.rng.Intn(len(others))]
			}

			template := responseTemplates[a.rng.Intn(len(responseTemplates))]
			response := strings.NewReplacer(
				"{option}", topic,
				"{topic}", topic,
				"{criterion}", criterion,
				"{reason}", fmt.Sprintf("%s is %s", criterion, value),
				"{benefit}", fmt.Sprintf("%s: %s", criterion, value),
				"{attribute}", fmt.Sprintf("%s: %s", criterion, value),
				"{participant}", participant,
			).Replace(template)

			if len(response) > maxResponseLength {
				response = response[:maxResponseLength]
			}
			return response
		}
	}

	return fallbackLines[a.rng.Intn(len(fallbackLines))]
}

func otherSpeakers(self string, history []model.ConversationMessage) []string {
	var names []string
	for _, msg := range history {
		if msg.ParticipantName != self {
			names = append(names, msg.ParticipantName)
		}
	}
	return names
}
