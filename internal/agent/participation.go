package agent

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/team-llm/experiment-platform/internal/model"
)

const (
	// recentWindow is the history slice inspected by the anti-domination rule.
	recentWindow = 5
	// recentLimit is the most messages an agent may have in that window
	// before it sits out (absent an explicit mention).
	recentLimit = 2
)

// lockedRand is a seedable random source safe for use across concurrent
// sessions. Tests fix the seed to make every draw deterministic.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(rng *rand.Rand) *lockedRand {
	return &lockedRand{rng: rng}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// Policy decides whether an agent speaks in response to a message. The rules
// are evaluated in order, first match wins:
//
//  1. no last message: stay silent
//  2. the agent is mentioned by name: speak
//  3. the message touches the agent's knowledge: speak (always when both a
//     topic and one of its criteria match, with TopicMatchChance when only
//     the topic matches)
//  4. the agent already sent 2 of the last 5 messages: stay silent
//  5. otherwise speak with IdleChance, so conversation stays organic
type Policy struct {
	TopicMatchChance float64
	IdleChance       float64

	rng *lockedRand
}

// NewPolicy builds a participation policy around a shared random source.
func NewPolicy(topicMatchChance, idleChance float64, rng *lockedRand) *Policy {
	return &Policy{
		TopicMatchChance: topicMatchChance,
		IdleChance:       idleChance,
		rng:              rng,
	}
}

// ShouldParticipate applies the participation rules for the named agent.
func (p *Policy) ShouldParticipate(name string, knowledge model.Knowledge, history []model.ConversationMessage, last *model.ConversationMessage) bool {
	if last == nil {
		return false
	}

	content := strings.ToLower(last.Content)

	// A direct mention overrides everything else.
	if strings.Contains(content, strings.ToLower(name)) {
		return true
	}

	if hit, exact := matchKnowledge(knowledge, content); hit {
		if exact {
			return true
		}
		return p.rng.Float64() < p.TopicMatchChance
	}

	if recentCount(name, history) >= recentLimit {
		return false
	}

	return p.rng.Float64() < p.IdleChance
}

// matchKnowledge reports whether the message touches any knowledge topic, and
// whether a criterion nested under a matching topic also appears.
func matchKnowledge(knowledge model.Knowledge, loweredContent string) (hit, exact bool) {
	for topic, criteria := range knowledge {
		if !strings.Contains(loweredContent, strings.ToLower(topic)) {
			continue
		}
		hit = true
		for criterion := range criteria {
			if strings.Contains(loweredContent, strings.ToLower(criterion)) {
				return true, true
			}
		}
	}
	return hit, false
}

// recentCount counts the agent's own messages in the tail of the history.
func recentCount(name string, history []model.ConversationMessage) int {
	start := len(history) - recentWindow
	if start < 0 {
		start = 0
	}
	n := 0
	for _, msg := range history[start:] {
		if msg.ParticipantName == name {
			n++
		}
	}
	return n
}
