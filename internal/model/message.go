// Package model defines data structures for the experiment platform.
package model

import (
	"time"
)

// ParticipantType identifies who authored a message or holds a seat in a session.
type ParticipantType string

const (
	ParticipantHuman  ParticipantType = "HUMAN"
	ParticipantAI     ParticipantType = "AI"
	ParticipantSystem ParticipantType = "SYSTEM"
)

// Message is a persisted chat message. Immutable once created; ordered within
// a session by SequenceNumber, which the message store assigns on append and
// never reuses or reorders.
type Message struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	ParticipantID   string          `json:"participant_id"`
	ParticipantName string          `json:"participant_name"`
	ParticipantType ParticipantType `json:"participant_type"`
	Content         string          `json:"content"`
	SequenceNumber  uint64          `json:"sequence_number"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ConversationMessage is the agent-facing view of a message, carrying only
// what participation and generation decisions need.
type ConversationMessage struct {
	ParticipantName string          `json:"participant_name"`
	ParticipantType ParticipantType `json:"participant_type"`
	Content         string          `json:"content"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Conversation converts a persisted message into its agent-facing view.
func (m *Message) Conversation() ConversationMessage {
	return ConversationMessage{
		ParticipantName: m.ParticipantName,
		ParticipantType: m.ParticipantType,
		Content:         m.Content,
		Timestamp:       m.Timestamp,
	}
}

// ConversationView maps a slice of persisted messages to agent-facing views,
// preserving order.
func ConversationView(messages []Message) []ConversationMessage {
	out := make([]ConversationMessage, len(messages))
	for i := range messages {
		out[i] = messages[i].Conversation()
	}
	return out
}
