package namespace

import "strings"

// Match holds the LIKE patterns used to find a stored mailbox name.
//
// Mailbox names are matched case-insensitively except for runs flagged
// verbatim: '&' starts a verbatim run and '-' ends it (modified UTF-7
// encodes non-ASCII this way, and encoded runs are case-significant).
// The insensitive pattern keeps the non-verbatim characters literal and
// wildcards the verbatim ones; the sensitive pattern is the inverse and
// is only produced when at least one verbatim run occurred. A name
// matches when it satisfies every pattern present.
type Match struct {
	Insensitive string
	Sensitive   string // empty when the name has no verbatim run
}

// NewMatch builds the match patterns for a simple mailbox name.
// Literal underscores are escaped first so they cannot collide with the
// single-character wildcard.
func NewMatch(name string) Match {
	escaped := strings.ReplaceAll(name, "_", `\_`)

	insensitive := []byte(escaped)
	sensitive := []byte(escaped)
	verbatim := false
	hasSensitivePart := false

	for i := 0; i < len(escaped); i++ {
		switch escaped[i] {
		case '&':
			verbatim = true
			hasSensitivePart = true
		case '-':
			verbatim = false
		}

		// The verbatim part must match exactly while the insensitive
		// pattern matches anything there, and vice versa.
		if verbatim {
			if insensitive[i] != '\\' {
				insensitive[i] = '_'
			}
		} else {
			if sensitive[i] != '\\' {
				sensitive[i] = '_'
			}
		}
	}

	m := Match{Insensitive: string(insensitive)}
	if hasSensitivePart {
		m.Sensitive = string(sensitive)
	}
	return m
}
