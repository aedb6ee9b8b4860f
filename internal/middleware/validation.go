package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates chat message content against the
// configured length cap.
func ValidateMessageContent(content string, maxLength int) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxLength {
		return fmt.Errorf("content exceeds maximum length of %d characters", maxLength)
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateParticipantID validates a participant ID.
func ValidateParticipantID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid participant ID format")
	}
	return nil
}

// ValidateParticipantName validates a display name chosen at join time.
func ValidateParticipantName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 64 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

// ValidateAccessCode validates a condition access code.
func ValidateAccessCode(code string) error {
	if code == "" {
		return errors.New("access code cannot be empty")
	}
	if len(code) > 64 {
		return errors.New("access code exceeds maximum length")
	}
	return nil
}
