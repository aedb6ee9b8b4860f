package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-llm/experiment-platform/internal/model"
)

var _ SessionStore = (*MemorySessionStore)(nil)
var _ ParticipantStore = (*MemoryParticipantStore)(nil)
var _ MessageStore = (*MemoryMessageStore)(nil)
var _ ExperimentStore = (*MemoryExperimentStore)(nil)

func TestSessionStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	sess := &model.Session{ID: "s1", Status: model.SessionWaiting}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionWaiting, got.Status)

	// Mutating the returned copy must not leak into the store.
	got.Status = model.SessionActive
	again, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionWaiting, again.Status)

	got.Status = model.SessionActive
	require.NoError(t, s.UpdateSession(ctx, got))
	updated, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, updated.Status)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateSession(ctx, &model.Session{ID: "missing"}), ErrNotFound)
}

func TestSessionStore_ListByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "a", Status: model.SessionWaiting}))
	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "b", Status: model.SessionActive}))
	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "c", Status: model.SessionCompleted}))

	live, err := s.ListByStatus(ctx, model.SessionWaiting, model.SessionActive)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestParticipantStore_JoinOrderAndPresence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryParticipantStore()

	add := func(id, name string, typ model.ParticipantType) {
		require.NoError(t, s.AddParticipant(ctx, &model.Participant{
			ID: id, SessionID: "s1", Name: name, Type: typ, JoinedAt: time.Now(),
		}))
	}
	add("p1", "Jordan", model.ParticipantHuman)
	add("p2", "Sam", model.ParticipantAI)
	add("p3", "Taylor", model.ParticipantHuman)
	add("p4", "Alex", model.ParticipantAI)

	all, err := s.Present(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Jordan", all[0].Name)
	assert.Equal(t, "Alex", all[3].Name)

	ai, err := s.PresentOfType(ctx, "s1", model.ParticipantAI)
	require.NoError(t, err)
	require.Len(t, ai, 2)
	assert.Equal(t, []string{"Sam", "Alex"}, []string{ai[0].Name, ai[1].Name})

	require.NoError(t, s.MarkLeft(ctx, "p1"))
	humans, err := s.PresentOfType(ctx, "s1", model.ParticipantHuman)
	require.NoError(t, err)
	require.Len(t, humans, 1)
	assert.Equal(t, "Taylor", humans[0].Name)

	// Leaving is idempotent and keeps the first timestamp.
	left, err := s.GetParticipant(ctx, "p1")
	require.NoError(t, err)
	first := *left.LeftAt
	require.NoError(t, s.MarkLeft(ctx, "p1"))
	leftAgain, err := s.GetParticipant(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first, *leftAgain.LeftAt)
}

func TestMessageStore_SequenceAssignment(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMessageStore()

	for i := 0; i < 5; i++ {
		m := &model.Message{ID: string(rune('a' + i)), SessionID: "s1", Content: "x"}
		seq, err := s.Append(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
		assert.Equal(t, seq, m.SequenceNumber)
	}

	// Sequences are per session.
	other := &model.Message{ID: "z", SessionID: "s2", Content: "y"}
	seq, err := s.Append(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	all, err := s.All(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, uint64(i+1), m.SequenceNumber)
	}
}

func TestMessageStore_Recent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMessageStore()
	for i := 0; i < 10; i++ {
		_, err := s.Append(ctx, &model.Message{SessionID: "s1", Content: "m"})
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(8), recent[0].SequenceNumber)
	assert.Equal(t, uint64(10), recent[2].SequenceNumber)

	all, err := s.Recent(ctx, "s1", 50)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	none, err := s.Recent(ctx, "empty", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExperimentStore_AccessCodes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperimentStore()

	cfg := &model.ExperimentConfig{ExperimentName: "study"}
	exp := &model.Experiment{ID: "e1", Name: "study", Config: cfg}
	conds := []*model.Condition{
		{ID: "c1", ExperimentID: "e1", Name: "control", AccessCode: "CODE1"},
		{ID: "c2", ExperimentID: "e1", Name: "treatment", AccessCode: "CODE2"},
	}
	require.NoError(t, s.CreateExperiment(ctx, exp, conds))

	cond, err := s.ConditionByAccessCode(ctx, "CODE2")
	require.NoError(t, err)
	assert.Equal(t, "treatment", cond.Name)

	_, err = s.ConditionByAccessCode(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.ConfigForCondition(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "study", got.ExperimentName)

	_, err = s.ConfigForCondition(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
