package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-llm/experiment-platform/internal/agent"
	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/internal/registry"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/logger"
)

// fakeChannel records broadcast events for assertions.
type fakeChannel struct {
	mu     sync.Mutex
	events []any
}

func (f *fakeChannel) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, v)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) sent() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.events))
	copy(out, f.events)
	return out
}

// scriptedAgent gives tests full control over one AI seat. It speaks at most
// limit times (default once), so repeated turn-taking passes wind down.
type scriptedAgent struct {
	name        string
	participate bool
	content     string
	err         error
	limit       int

	mu    sync.Mutex
	calls int
}

func (s *scriptedAgent) Name() string { return s.name }

func (s *scriptedAgent) ShouldParticipate(history []model.ConversationMessage, _ *model.ConversationMessage) bool {
	if !s.participate {
		return false
	}
	limit := s.limit
	if limit == 0 {
		limit = 1
	}
	own := 0
	for _, m := range history {
		if m.ParticipantName == s.name {
			own++
		}
	}
	return own < limit
}

func (s *scriptedAgent) GenerateResponse(context.Context, []model.ConversationMessage, string, *model.ConversationMessage) (*agent.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &agent.Response{Content: s.content, ShouldRespond: true}, nil
}

func (s *scriptedAgent) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type harness struct {
	orch    *Orchestrator
	stores  Stores
	reg     *registry.Registry
	session *model.Session
}

func testConfig(humans int, aiNames ...string) *model.ExperimentConfig {
	cfg := &model.ExperimentConfig{
		ExperimentName: "restaurant-study",
		Scenario: model.Scenario{
			Type: "decision",
			Task: "Pick a restaurant everyone can agree on.",
			CompletionTrigger: model.CompletionTrigger{
				Type:  model.TriggerKeyword,
				Value: "task-complete",
			},
		},
	}
	for i := 0; i < humans; i++ {
		cfg.Roles = append(cfg.Roles, model.Role{
			Name: "Participant " + string(rune('A'+i)),
			Type: model.ParticipantHuman,
		})
	}
	for _, name := range aiNames {
		cfg.Roles = append(cfg.Roles, model.Role{
			Name:  name,
			Type:  model.ParticipantAI,
			Model: "mock",
			Knowledge: model.Knowledge{
				"Luigi's": {"price": "moderate"},
			},
		})
	}
	return cfg
}

func newHarness(t *testing.T, cfg *model.ExperimentConfig) *harness {
	t.Helper()
	ctx := context.Background()

	stores := Stores{
		Sessions:     store.NewMemorySessionStore(),
		Participants: store.NewMemoryParticipantStore(),
		Messages:     store.NewMemoryMessageStore(),
		Experiments:  store.NewMemoryExperimentStore(),
	}
	exp := &model.Experiment{ID: "e1", Name: cfg.ExperimentName, Config: cfg}
	cond := &model.Condition{ID: "c1", ExperimentID: "e1", Name: "default", AccessCode: "TESTCODE"}
	require.NoError(t, stores.Experiments.CreateExperiment(ctx, exp, []*model.Condition{cond}))

	factory := agent.NewFactory(agent.Options{Rand: rand.New(rand.NewSource(1))}, logger.NewNop())
	reg := registry.New(logger.NewNop())
	orch := New(stores, factory, reg, nil, Options{SessionTimeout: time.Hour}, logger.NewNop())

	sess, err := orch.CreateSession(ctx, "TESTCODE")
	require.NoError(t, err)

	return &harness{orch: orch, stores: stores, reg: reg, session: sess}
}

func (h *harness) join(t *testing.T, name string) *model.Participant {
	t.Helper()
	p, err := h.orch.Join(context.Background(), h.session.ID, name)
	require.NoError(t, err)
	return p
}

func (h *harness) currentSession(t *testing.T) *model.Session {
	t.Helper()
	sess, err := h.stores.Sessions.GetSession(context.Background(), h.session.ID)
	require.NoError(t, err)
	return sess
}

// script replaces an activated AI seat with a test agent.
func (h *harness) script(t *testing.T, a agent.Agent) {
	t.Helper()
	st, err := h.orch.state(h.session.ID)
	require.NoError(t, err)
	st.mu.Lock()
	defer st.mu.Unlock()
	require.Contains(t, st.agents, a.Name())
	st.agents[a.Name()] = a
}

// say appends a chat message and runs turn-taking synchronously.
func (h *harness) say(t *testing.T, p *model.Participant, content string) {
	t.Helper()
	st, err := h.orch.state(h.session.ID)
	require.NoError(t, err)
	_, completed, err := h.orch.appendChat(context.Background(), st, p, content, nil)
	require.NoError(t, err)
	if !completed {
		h.orch.runAITurns(h.session.ID)
	}
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t, testConfig(2, "Sam"))

	assert.Equal(t, model.SessionWaiting, h.session.Status)
	assert.Equal(t, 2, h.session.RequiredHumans)
	assert.Equal(t, 3, h.session.TeamSize)
	assert.Len(t, h.session.CompletionCode, 8)

	_, err := h.orch.CreateSession(context.Background(), "WRONG")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJoin_ActivatesAtRequiredHumans(t *testing.T) {
	h := newHarness(t, testConfig(2, "Sam", "Alex"))
	ctx := context.Background()

	h.join(t, "Jordan")
	assert.Equal(t, model.SessionWaiting, h.currentSession(t).Status)

	h.join(t, "Taylor")
	sess := h.currentSession(t)
	assert.Equal(t, model.SessionActive, sess.Status)
	require.NotNil(t, sess.StartedAt)

	ai, err := h.stores.Participants.PresentOfType(ctx, h.session.ID, model.ParticipantAI)
	require.NoError(t, err)
	require.Len(t, ai, 2)
	assert.Equal(t, "Sam", ai[0].Name)
	assert.Equal(t, "mock", ai[0].AIModel)
	require.NotNil(t, ai[0].AIConfig)

	// Activation posts a system message.
	msgs, err := h.stores.Messages.All(ctx, h.session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.ParticipantSystem, msgs[0].ParticipantType)
	assert.Equal(t, uint64(1), msgs[0].SequenceNumber)
}

func TestJoin_RejectedAfterActivation(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.join(t, "Jordan")

	_, err := h.orch.Join(context.Background(), h.session.ID, "Latecomer")
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, string(model.SessionActive), stateErr.Status)
}

func TestJoin_UnknownSession(t *testing.T) {
	h := newHarness(t, testConfig(1))
	_, err := h.orch.Join(context.Background(), "nope", "Jordan")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChat_SequencesAreMonotonic(t *testing.T) {
	h := newHarness(t, testConfig(1))
	p := h.join(t, "Jordan")
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		_, err := h.orch.OnChatMessage(ctx, h.session.ID, p.ID, text, nil)
		require.NoError(t, err)
	}

	msgs, err := h.stores.Messages.All(ctx, h.session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4) // activation notice + three chats
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.SequenceNumber)
	}
}

func TestChat_RejectedBeforeActivation(t *testing.T) {
	h := newHarness(t, testConfig(2))
	p := h.join(t, "Jordan")

	_, err := h.orch.OnChatMessage(context.Background(), h.session.ID, p.ID, "hello?", nil)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, string(model.SessionWaiting), stateErr.Status)
}

func TestChat_KeywordCompletesSession(t *testing.T) {
	h := newHarness(t, testConfig(1))
	p := h.join(t, "Jordan")
	ctx := context.Background()

	ch := &fakeChannel{}
	h.reg.Connect(&registry.Conn{Channel: ch, SessionID: h.session.ID, ParticipantID: p.ID, ParticipantName: p.Name})

	_, err := h.orch.OnChatMessage(ctx, h.session.ID, p.ID, "Great, TASK-COMPLETE everyone!", nil)
	require.NoError(t, err)

	sess := h.currentSession(t)
	assert.Equal(t, model.SessionCompleted, sess.Status)
	require.NotNil(t, sess.CompletedAt)

	var completedEvent *model.SessionCompletedEvent
	for _, e := range ch.sent() {
		if ce, ok := e.(*model.SessionCompletedEvent); ok {
			completedEvent = ce
		}
	}
	require.NotNil(t, completedEvent, "expected a session_completed broadcast")
	assert.Equal(t, sess.CompletionCode, completedEvent.CompletionCode)
	assert.Equal(t, model.TriggerKeyword, completedEvent.TriggerType)

	// Terminal sessions refuse further messages.
	_, err = h.orch.OnChatMessage(ctx, h.session.ID, p.ID, "one more thing", nil)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestAITurn_RespondsAndPersists(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam"))
	p := h.join(t, "Jordan")
	h.script(t, &scriptedAgent{name: "Sam", participate: true, content: "Luigi's works for me."})

	h.say(t, p, "Sam, where should we go?")

	msgs, err := h.stores.Messages.All(context.Background(), h.session.ID)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, model.ParticipantAI, last.ParticipantType)
	assert.Equal(t, "Sam", last.ParticipantName)
	assert.Equal(t, "Luigi's works for me.", last.Content)
}

func TestAITurn_AgentsRespondInJoinOrder(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam", "Alex"))
	p := h.join(t, "Jordan")
	h.script(t, &scriptedAgent{name: "Sam", participate: true, content: "Sam speaking."})
	h.script(t, &scriptedAgent{name: "Alex", participate: true, content: "Alex speaking."})

	h.say(t, p, "what does everyone think?")

	msgs, err := h.stores.Messages.All(context.Background(), h.session.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, "Sam", msgs[len(msgs)-2].ParticipantName)
	assert.Equal(t, "Alex", msgs[len(msgs)-1].ParticipantName)
}

// mentionAgent speaks once, and only when the newest message names it.
type mentionAgent struct {
	name    string
	content string
}

func (m *mentionAgent) Name() string { return m.name }

func (m *mentionAgent) ShouldParticipate(history []model.ConversationMessage, last *model.ConversationMessage) bool {
	if last == nil || last.ParticipantName == m.name {
		return false
	}
	for _, msg := range history {
		if msg.ParticipantName == m.name {
			return false
		}
	}
	return strings.Contains(strings.ToLower(last.Content), strings.ToLower(m.name))
}

func (m *mentionAgent) GenerateResponse(context.Context, []model.ConversationMessage, string, *model.ConversationMessage) (*agent.Response, error) {
	return &agent.Response{Content: m.content, ShouldRespond: true}, nil
}

func TestAITurn_AgentMentionStartsAnotherPass(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam", "Alex"))
	p := h.join(t, "Jordan")
	h.script(t, &mentionAgent{name: "Sam", content: "Happy to weigh in."})
	h.script(t, &mentionAgent{name: "Alex", content: "What do you think, Sam?"})

	h.say(t, p, "Alex, your thoughts?")

	msgs, err := h.stores.Messages.All(context.Background(), h.session.ID)
	require.NoError(t, err)
	var names []string
	for _, m := range msgs {
		names = append(names, m.ParticipantName)
	}
	// Alex answers the human; Sam answers the mention in Alex's message, which
	// takes a second pass because Sam precedes Alex in join order.
	assert.Contains(t, names, "Sam")
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, "Alex", msgs[len(msgs)-2].ParticipantName)
	assert.Equal(t, "Sam", msgs[len(msgs)-1].ParticipantName)
}

func TestAITurn_PassesAreBounded(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam"))
	p := h.join(t, "Jordan")
	chatty := &scriptedAgent{name: "Sam", participate: true, content: "still going", limit: 1000}
	h.script(t, chatty)

	h.say(t, p, "go ahead")

	assert.Equal(t, maxTurnPasses, chatty.callCount())
}

func TestAITurn_SilentAgentStaysSilent(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam"))
	p := h.join(t, "Jordan")
	quiet := &scriptedAgent{name: "Sam", participate: false, content: "never sent"}
	h.script(t, quiet)

	h.say(t, p, "anyone?")

	assert.Equal(t, 0, quiet.callCount())
	msgs, err := h.stores.Messages.All(context.Background(), h.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantHuman, msgs[len(msgs)-1].ParticipantType)
}

func TestAITurn_FailureContainment(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam", "Alex"))
	p := h.join(t, "Jordan")
	h.script(t, &scriptedAgent{name: "Sam", participate: true, err: errors.New("provider gone")})
	h.script(t, &scriptedAgent{name: "Alex", participate: true, content: "still here"})

	h.say(t, p, "thoughts?")

	sess := h.currentSession(t)
	assert.Equal(t, model.SessionActive, sess.Status)

	msgs, err := h.stores.Messages.All(context.Background(), h.session.ID)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Alex", last.ParticipantName)
	for _, m := range msgs {
		assert.NotEqual(t, "Sam", m.ParticipantName)
	}
}

func TestAITurn_AgentKeywordCompletes(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam", "Alex"))
	p := h.join(t, "Jordan")
	h.script(t, &scriptedAgent{name: "Sam", participate: true, content: "I think we agree. task-complete"})
	late := &scriptedAgent{name: "Alex", participate: true, content: "too late"}
	h.script(t, late)

	h.say(t, p, "are we done?")

	assert.Equal(t, model.SessionCompleted, h.currentSession(t).Status)
	// The pass stops at completion; later agents never run.
	assert.Equal(t, 0, late.callCount())
}

func TestAITurn_StopsWhenSessionEnds(t *testing.T) {
	h := newHarness(t, testConfig(1, "Sam"))
	h.join(t, "Jordan")
	live := &scriptedAgent{name: "Sam", participate: true, content: "hello"}
	h.script(t, live)

	require.NoError(t, h.orch.Timeout(context.Background(), h.session.ID))
	h.orch.runAITurns(h.session.ID)

	assert.Equal(t, 0, live.callCount())
}

func TestLeave_LastHumanCancels(t *testing.T) {
	h := newHarness(t, testConfig(2, "Sam"))
	p1 := h.join(t, "Jordan")
	p2 := h.join(t, "Taylor")
	ctx := context.Background()

	require.NoError(t, h.orch.Leave(ctx, h.session.ID, p1.ID))
	assert.Equal(t, model.SessionActive, h.currentSession(t).Status)

	require.NoError(t, h.orch.Leave(ctx, h.session.ID, p2.ID))
	sess := h.currentSession(t)
	assert.Equal(t, model.SessionCancelled, sess.Status)
	require.NotNil(t, sess.CompletedAt)
}

func TestLeave_UnknownParticipant(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.join(t, "Jordan")
	err := h.orch.Leave(context.Background(), h.session.ID, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestComplete_ManualTrigger(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.join(t, "Jordan")
	ctx := context.Background()

	require.NoError(t, h.orch.Complete(ctx, h.session.ID))
	assert.Equal(t, model.SessionCompleted, h.currentSession(t).Status)

	// Completing twice is a state conflict, not silent success.
	var stateErr *StateError
	assert.ErrorAs(t, h.orch.Complete(ctx, h.session.ID), &stateErr)
}

func TestComplete_RejectedWhileWaiting(t *testing.T) {
	h := newHarness(t, testConfig(2))
	h.join(t, "Jordan")

	var stateErr *StateError
	assert.ErrorAs(t, h.orch.Complete(context.Background(), h.session.ID), &stateErr)
}

func TestTimeout_TerminalStateConflicts(t *testing.T) {
	h := newHarness(t, testConfig(1))
	p := h.join(t, "Jordan")
	ctx := context.Background()

	require.NoError(t, h.orch.Timeout(ctx, h.session.ID))
	sess := h.currentSession(t)
	assert.Equal(t, model.SessionTimeout, sess.Status)
	require.NotNil(t, sess.CompletedAt)
	first := *sess.CompletedAt

	// A second trigger is a state conflict and leaves the record untouched.
	var stateErr *StateError
	require.ErrorAs(t, h.orch.Timeout(ctx, h.session.ID), &stateErr)
	assert.Equal(t, string(model.SessionTimeout), stateErr.Status)
	assert.Equal(t, first, *h.currentSession(t).CompletedAt)

	_, err := h.orch.OnChatMessage(ctx, h.session.ID, p.ID, "too late", nil)
	assert.ErrorAs(t, err, &stateErr)
}

func TestTimeout_CompletedSessionKeepsStatus(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.join(t, "Jordan")
	ctx := context.Background()

	require.NoError(t, h.orch.Complete(ctx, h.session.ID))
	var stateErr *StateError
	require.ErrorAs(t, h.orch.Timeout(ctx, h.session.ID), &stateErr)
	assert.Equal(t, model.SessionCompleted, h.currentSession(t).Status)
}

func TestSweepTimeouts(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.join(t, "Jordan")

	st, err := h.orch.state(h.session.ID)
	require.NoError(t, err)
	st.mu.Lock()
	st.deadline = time.Now().Add(-time.Minute)
	st.mu.Unlock()

	h.orch.sweepTimeouts(context.Background())
	assert.Equal(t, model.SessionTimeout, h.currentSession(t).Status)

	// The deadline is disarmed after firing.
	st.mu.Lock()
	assert.True(t, st.deadline.IsZero())
	st.mu.Unlock()
}

func TestSweepTimeouts_TerminalSessionIgnored(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.join(t, "Jordan")
	ctx := context.Background()
	require.NoError(t, h.orch.Complete(ctx, h.session.ID))

	// Even with a stale armed deadline the sweep leaves the session alone.
	st, err := h.orch.state(h.session.ID)
	require.NoError(t, err)
	st.mu.Lock()
	st.deadline = time.Now().Add(-time.Minute)
	st.mu.Unlock()

	h.orch.sweepTimeouts(ctx)
	assert.Equal(t, model.SessionCompleted, h.currentSession(t).Status)
}
