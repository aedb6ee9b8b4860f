package model

import (
	"time"
)

// EventType enumerates WebSocket message types exchanged with clients.
type EventType string

const (
	EventChat              EventType = "chat"
	EventTyping            EventType = "typing"
	EventTaskComplete      EventType = "task_complete"
	EventSessionInfo       EventType = "session_info"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventSessionCompleted  EventType = "session_completed"
	EventSessionTimeout    EventType = "session_timeout"
	EventPing              EventType = "ping"
	EventError             EventType = "error"
)

// Envelope is the generic inbound WebSocket frame. Type selects which of the
// optional fields are meaningful.
type Envelope struct {
	Type     EventType      `json:"type"`
	Content  string         `json:"content,omitempty"`
	IsTyping bool           `json:"is_typing,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatEvent is broadcast for every persisted chat message.
type ChatEvent struct {
	Type            EventType       `json:"type"`
	MessageID       string          `json:"message_id"`
	ParticipantID   string          `json:"participant_id"`
	ParticipantName string          `json:"participant_name"`
	ParticipantType ParticipantType `json:"participant_type"`
	Content         string          `json:"content"`
	SequenceNumber  uint64          `json:"sequence_number"`
	Timestamp       time.Time       `json:"timestamp"`
}

// NewChatEvent builds the broadcast event for a persisted message.
func NewChatEvent(m *Message) *ChatEvent {
	return &ChatEvent{
		Type:            EventChat,
		MessageID:       m.ID,
		ParticipantID:   m.ParticipantID,
		ParticipantName: m.ParticipantName,
		ParticipantType: m.ParticipantType,
		Content:         m.Content,
		SequenceNumber:  m.SequenceNumber,
		Timestamp:       m.Timestamp,
	}
}

// TypingEvent relays a typing indicator to the rest of the session.
type TypingEvent struct {
	Type            EventType `json:"type"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	IsTyping        bool      `json:"is_typing"`
}

// PresenceEvent announces a participant joining or leaving.
type PresenceEvent struct {
	Type            EventType `json:"type"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
}

// SessionInfoEvent is unicast to a newly connected participant.
type SessionInfoEvent struct {
	Type         EventType         `json:"type"`
	SessionID    string            `json:"session_id"`
	Status       SessionStatus     `json:"status"`
	Participants []ParticipantInfo `json:"participants"`
}

// ParticipantInfo is the connection-level identity of a live participant.
type ParticipantInfo struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
}

// SessionCompletedEvent carries the completion code to all participants.
type SessionCompletedEvent struct {
	Type           EventType   `json:"type"`
	CompletionCode string      `json:"completion_code"`
	TriggerType    TriggerType `json:"trigger_type"`
	TriggerValue   string      `json:"trigger_value,omitempty"`
}

// SessionTimeoutEvent announces that the session's time budget elapsed.
type SessionTimeoutEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// PingEvent is a liveness probe for idle connections.
type PingEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a rejected operation to one client.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}
