package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: hello world\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
	"\r\n" +
	"body\r\n"

func TestExtractEnvelope(t *testing.T) {
	env, err := ExtractEnvelope([]byte(sampleMessage))
	require.NoError(t, err)

	assert.Equal(t, "hello world", env.Subject)
	assert.Equal(t, "alice@example.com", env.From)
	assert.Equal(t, "abc123@example.com", env.MessageID)
	assert.Equal(t, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), env.Date.UTC())
}

func TestExtractEnvelopeMissingDate(t *testing.T) {
	raw := "From: alice@example.com\r\nSubject: no date\r\n\r\nbody\r\n"

	before := time.Now()
	env, err := ExtractEnvelope([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "no date", env.Subject)
	assert.False(t, env.Date.Before(before))
}

func TestNormalizeCRLF(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare LF", "a\nb\n", "a\r\nb\r\n"},
		{"already CRLF", "a\r\nb\r\n", "a\r\nb\r\n"},
		{"mixed", "a\r\nb\nc", "a\r\nb\r\nc"},
		{"no newlines", "abc", "abc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(NormalizeCRLF([]byte(tt.input))))
		})
	}
}
