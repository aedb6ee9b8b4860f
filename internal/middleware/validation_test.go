package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello", 2000))
	assert.Error(t, ValidateMessageContent("", 2000))
	assert.Error(t, ValidateMessageContent("   ", 2000))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", 2001), 2000))
	assert.NoError(t, ValidateMessageContent(strings.Repeat("a", 2000), 2000))
	assert.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe}), 2000))
}

func TestValidateIDs(t *testing.T) {
	id := uuid.NewString()
	assert.NoError(t, ValidateSessionID(id))
	assert.NoError(t, ValidateParticipantID(id))
	assert.Error(t, ValidateSessionID("not-a-uuid"))
	assert.Error(t, ValidateParticipantID(""))
}

func TestValidateParticipantName(t *testing.T) {
	assert.NoError(t, ValidateParticipantName("Jordan"))
	assert.Error(t, ValidateParticipantName(""))
	assert.Error(t, ValidateParticipantName("   "))
	assert.Error(t, ValidateParticipantName(strings.Repeat("x", 65)))
}

func TestValidateAccessCode(t *testing.T) {
	assert.NoError(t, ValidateAccessCode("ABC123"))
	assert.Error(t, ValidateAccessCode(""))
	assert.Error(t, ValidateAccessCode(strings.Repeat("x", 65)))
}
