package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMatch(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		insensitive string
		sensitive   string
	}{
		{
			name:        "plain name",
			input:       "INBOX",
			insensitive: "INBOX",
			sensitive:   "",
		},
		{
			name:        "verbatim middle run",
			input:       "foo&bar-baz",
			insensitive: "foo____-baz",
			sensitive:   "___&bar____",
		},
		{
			name:        "verbatim run to end of name",
			input:       "foo&bar",
			insensitive: "foo____",
			sensitive:   "___&bar",
		},
		{
			name:        "leading verbatim run",
			input:       "&abc-def",
			insensitive: "____-def",
			sensitive:   "&abc____",
		},
		{
			name:        "underscore is escaped",
			input:       "a_b",
			insensitive: `a\_b`,
			sensitive:   "",
		},
		{
			name:        "dash without verbatim run stays literal",
			input:       "to-do",
			insensitive: "to-do",
			sensitive:   "",
		},
		{
			name:        "empty name",
			input:       "",
			insensitive: "",
			sensitive:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatch(tt.input)
			assert.Equal(t, tt.insensitive, m.Insensitive)
			assert.Equal(t, tt.sensitive, m.Sensitive)
		})
	}
}

// likeMatch is a tiny evaluator for the single-character wildcard and
// backslash escape used by the patterns, so the tests can assert the
// documented matching semantics end to end.
func likeMatch(pattern, s string, foldCase bool) bool {
	var p, q []byte
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i++
			p = append(p, pattern[i])
			q = append(q, 0) // literal
			continue
		}
		p = append(p, pattern[i])
		if pattern[i] == '_' {
			q = append(q, 1) // wildcard
		} else {
			q = append(q, 0)
		}
	}
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if q[i] == 1 {
			continue
		}
		a, b := p[i], s[i]
		if foldCase {
			a |= 0x20
			b |= 0x20
		}
		if a != b {
			return false
		}
	}
	return true
}

func TestMatchSemantics(t *testing.T) {
	m := NewMatch("foo&bar-baz")

	// The literal original satisfies both patterns.
	assert.True(t, likeMatch(m.Insensitive, "foo&bar-baz", true))
	assert.True(t, likeMatch(m.Sensitive, "foo&bar-baz", false))

	// Case changes outside the verbatim run only pass the insensitive
	// pattern; the sensitive pattern wildcards those positions.
	assert.True(t, likeMatch(m.Insensitive, "FOO&bar-BAZ", true))
	assert.True(t, likeMatch(m.Sensitive, "FOO&bar-BAZ", false))

	// Case changes inside the verbatim run fail the sensitive pattern.
	assert.False(t, likeMatch(m.Sensitive, "foo&BAR-baz", false))
	// ...but are invisible to the insensitive one, which wildcards them.
	assert.True(t, likeMatch(m.Insensitive, "foo&BAR-baz", true))
}
