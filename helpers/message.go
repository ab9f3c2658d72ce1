package helpers

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Envelope is the delivery-relevant header summary of a message.
type Envelope struct {
	Subject   string
	From      string
	MessageID string
	Date      time.Time
}

// ParseMessage reads and parses an email message. Unknown charsets
// are tolerated so a single odd part does not reject the whole
// message.
func ParseMessage(r io.Reader) (*message.Entity, error) {
	m, err := message.Read(r)
	if message.IsUnknownCharset(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return m, nil
}

// ExtractEnvelope parses the raw message and pulls out the headers
// delivery logs and stores. A missing or unparsable Date falls back
// to now, since the store requires an internal date for every
// message.
func ExtractEnvelope(raw []byte) (*Envelope, error) {
	entity, err := ParseMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	header := mail.Header{Header: entity.Header}
	env := &Envelope{}

	if subject, err := header.Subject(); err == nil {
		env.Subject = subject
	}
	if msgID, err := header.MessageID(); err == nil {
		env.MessageID = msgID
	}
	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		env.From = addrs[0].Address
	}
	if date, err := header.Date(); err == nil && !date.IsZero() {
		env.Date = date
	} else {
		env.Date = time.Now()
	}

	return env, nil
}

// NormalizeCRLF rewrites bare LF line endings to CRLF. Stored content
// goes over the wire verbatim, so it must already use network line
// endings.
func NormalizeCRLF(raw []byte) []byte {
	if !bytes.Contains(raw, []byte{'\n'}) {
		return raw
	}
	normalized := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return []byte(strings.ReplaceAll(normalized, "\n", "\r\n"))
}
