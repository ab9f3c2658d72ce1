package pop3

import (
	"strings"
)

// dotStuffPOP3 doubles any leading dot so a content line can never be
// mistaken for the multi-line terminator.
func dotStuffPOP3(body string) string {
	if !strings.Contains(body, ".") {
		return body
	}

	var b strings.Builder
	b.Grow(len(body) + 16)

	start := 0
	for start <= len(body) {
		end := strings.Index(body[start:], "\r\n")
		var line string
		if end < 0 {
			line = body[start:]
			start = len(body) + 1
		} else {
			line = body[start : start+end]
			start += end + 2
		}

		if strings.HasPrefix(line, ".") {
			b.WriteByte('.')
		}
		b.WriteString(line)
		if start <= len(body) {
			b.WriteString("\r\n")
		}
	}
	return b.String()
}

// topContent truncates a message for TOP: the full header block up to
// and including the empty separator line, then at most maxLines body
// lines.
func topContent(content string, maxLines int) string {
	headers, body, found := strings.Cut(content, "\r\n\r\n")
	if !found {
		// No body separator, the whole message is headers.
		return content
	}

	var b strings.Builder
	b.WriteString(headers)
	b.WriteString("\r\n\r\n")

	if maxLines <= 0 {
		return b.String()
	}

	lines := strings.SplitAfter(body, "\r\n")
	for i, line := range lines {
		if i >= maxLines {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}
