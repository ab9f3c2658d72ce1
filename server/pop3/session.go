package pop3

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/db"
	"github.com/harbormail/harbor/pkg/metrics"
	serverPkg "github.com/harbormail/harbor/server"
)

// sessionState tracks the RFC 1939 state the session is in. UPDATE is
// terminal and only ever entered through QUIT.
type sessionState int

const (
	stateAuthorization sessionState = iota
	stateTransaction
	stateUpdate
)

type POP3Session struct {
	serverPkg.Session
	server *POP3Server
	conn   net.Conn
	ctx    context.Context
	cancel context.CancelFunc

	state       sessionState
	pendingUser string
	apopStamp   string
	mailboxID   int64
	view        *MessageView
	errorsCount int
	started     time.Time
}

func (s *POP3Session) handleConnection() {
	defer s.close()

	reader := bufio.NewReader(s.conn)
	writer := bufio.NewWriter(s.conn)

	greeting := "+OK Harbor POP3 server ready"
	if s.apopStamp != "" {
		greeting += " " + s.apopStamp
	}
	fmt.Fprintf(writer, "%s\r\n", greeting)
	writer.Flush()

	s.Log("connected")

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.server.commandTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				fmt.Fprint(writer, "-ERR Connection timed out due to inactivity\r\n")
				writer.Flush()
				s.Log("timed out")
			case errors.Is(err, io.EOF):
				s.Log("client dropped connection")
			default:
				s.Log("read error: %v", err)
			}
			return
		}

		// An oversized line is a fatal drop, independent of the error
		// counter.
		if len(line) > s.server.maxLineLength {
			fmt.Fprint(writer, "-ERR Line too long\r\n")
			writer.Flush()
			s.Log("oversized line (%d bytes), dropping connection", len(line))
			return
		}

		if s.ctx.Err() != nil {
			s.Log("session context cancelled")
			return
		}

		fatal := s.dispatch(writer, strings.TrimSpace(line))
		writer.Flush()
		if fatal || s.state == stateUpdate {
			return
		}
	}
}

// dispatch resolves one input line and runs it against the current
// state. The return value reports a connection-fatal condition.
func (s *POP3Session) dispatch(writer *bufio.Writer, line string) bool {
	cmd, arg, ok := parseCommand(line)
	if !ok {
		if cmd == cmdUnknown {
			s.Log("unknown command: %q", line)
			return s.clientError(writer, "-ERR Unknown command")
		}
		return s.clientError(writer, "-ERR Missing argument")
	}

	start := time.Now()
	fatal := s.run(writer, cmd, arg)
	metrics.CommandDuration.WithLabelValues("pop3", cmd.String()).Observe(time.Since(start).Seconds())
	return fatal
}

func (s *POP3Session) run(writer *bufio.Writer, cmd command, arg string) bool {
	switch s.state {
	case stateAuthorization:
		switch cmd {
		case cmdQuit:
			s.reply(writer, cmd, "+OK Goodbye")
			s.state = stateUpdate
			return false
		case cmdUser:
			return s.handleUser(writer, cmd, arg)
		case cmdPass:
			return s.handlePass(writer, cmd, arg)
		case cmdApop:
			return s.handleApop(writer, cmd, arg)
		case cmdAuth:
			// Capability stub: no SASL mechanisms offered.
			s.reply(writer, cmd, "+OK")
			fmt.Fprint(writer, ".\r\n")
			return false
		default:
			return s.commandError(writer, cmd, "-ERR Not authenticated")
		}

	case stateTransaction:
		switch cmd {
		case cmdQuit:
			return s.handleQuit(writer, cmd)
		case cmdStat:
			count, size := s.view.Stat()
			s.reply(writer, cmd, fmt.Sprintf("+OK %d %d", count, size))
			return false
		case cmdList:
			return s.handleList(writer, cmd, arg)
		case cmdUidl:
			return s.handleUidl(writer, cmd, arg)
		case cmdRetr:
			return s.handleRetr(writer, cmd, arg)
		case cmdTop:
			return s.handleTop(writer, cmd, arg)
		case cmdDele:
			return s.handleDele(writer, cmd, arg)
		case cmdRset:
			s.view.Reset()
			s.reply(writer, cmd, "+OK")
			s.Log("reset")
			return false
		case cmdNoop:
			s.reply(writer, cmd, "+OK")
			return false
		case cmdLast:
			s.reply(writer, cmd, fmt.Sprintf("+OK %d", s.view.Last()))
			return false
		default:
			return s.commandError(writer, cmd, "-ERR Command not valid in this state")
		}
	}
	return false
}

func (s *POP3Session) handleUser(writer *bufio.Writer, cmd command, arg string) bool {
	s.pendingUser = arg
	s.reply(writer, cmd, "+OK User accepted")
	return false
}

func (s *POP3Session) handlePass(writer *bufio.Writer, cmd command, arg string) bool {
	if s.pendingUser == "" {
		return s.commandError(writer, cmd, "-ERR Must provide USER first")
	}

	accountID, err := s.server.db.Authenticate(s.ctx, s.pendingUser, arg)
	if err != nil {
		metrics.AuthenticationAttempts.WithLabelValues("pop3", "failure").Inc()
		s.Log("authentication failed for %s", s.pendingUser)
		return s.commandError(writer, cmd, "-ERR Authentication failed")
	}
	return s.finishLogin(writer, cmd, accountID, s.pendingUser)
}

func (s *POP3Session) handleApop(writer *bufio.Writer, cmd command, arg string) bool {
	if s.apopStamp == "" {
		return s.commandError(writer, cmd, "-ERR APOP not supported")
	}

	name, digest, found := strings.Cut(arg, " ")
	if !found || name == "" || digest == "" {
		return s.commandError(writer, cmd, "-ERR APOP requires name and digest")
	}

	accountID, err := s.server.db.AuthenticateAPOP(s.ctx, name, digest, s.apopStamp)
	if err != nil {
		metrics.AuthenticationAttempts.WithLabelValues("pop3", "failure").Inc()
		s.Log("apop authentication failed for %s", name)
		return s.commandError(writer, cmd, "-ERR Authentication failed")
	}
	return s.finishLogin(writer, cmd, accountID, name)
}

// finishLogin enters TRANSACTION: find or create the INBOX and load
// the message view that fixes the session ordinals.
func (s *POP3Session) finishLogin(writer *bufio.Writer, cmd command, accountID int64, userName string) bool {
	err := s.server.db.CreateMailboxWithParents(s.ctx, accountID, consts.MailboxInbox, db.SourceInternalTrusted)
	if err != nil && !errors.Is(err, consts.ErrMailboxAlreadyExists) {
		s.Log("inbox setup failed: %v", err)
		s.serverError(writer, cmd)
		return false
	}

	mailbox, err := s.server.db.FindMailbox(s.ctx, accountID, consts.MailboxInbox)
	if err != nil {
		s.Log("inbox lookup failed: %v", err)
		s.serverError(writer, cmd)
		return false
	}

	messages, err := s.server.db.ListPOP3Messages(s.ctx, mailbox.ID)
	if err != nil {
		s.Log("message view load failed: %v", err)
		s.serverError(writer, cmd)
		return false
	}

	s.AccountID = accountID
	s.UserName = userName
	s.mailboxID = mailbox.ID
	s.view = NewMessageView(messages)
	s.state = stateTransaction
	s.pendingUser = ""

	authCount := s.server.authenticatedConnections.Add(1)
	metrics.AuthenticationAttempts.WithLabelValues("pop3", "success").Inc()

	count, size := s.view.Stat()
	s.Log("authenticated (messages=%d size=%d, authenticated connections=%d)", count, size, authCount)
	s.reply(writer, cmd, fmt.Sprintf("+OK Mailbox ready, %d messages (%d octets)", count, size))
	return false
}

func (s *POP3Session) handleList(writer *bufio.Writer, cmd command, arg string) bool {
	if arg != "" {
		n, ok := parseOrdinal(arg)
		if !ok {
			return s.commandError(writer, cmd, "-ERR Invalid message number")
		}
		e, ok := s.view.Entry(n)
		if !ok {
			return s.commandError(writer, cmd, "-ERR No such message")
		}
		s.reply(writer, cmd, fmt.Sprintf("+OK %d %d", e.Ordinal, e.Size))
		return false
	}

	count, size := s.view.Stat()
	s.reply(writer, cmd, fmt.Sprintf("+OK %d messages (%d octets)", count, size))
	for _, e := range s.view.Entries() {
		fmt.Fprintf(writer, "%d %d\r\n", e.Ordinal, e.Size)
	}
	fmt.Fprint(writer, ".\r\n")
	return false
}

func (s *POP3Session) handleUidl(writer *bufio.Writer, cmd command, arg string) bool {
	if arg != "" {
		n, ok := parseOrdinal(arg)
		if !ok {
			return s.commandError(writer, cmd, "-ERR Invalid message number")
		}
		e, ok := s.view.Entry(n)
		if !ok {
			return s.commandError(writer, cmd, "-ERR No such message")
		}
		s.reply(writer, cmd, fmt.Sprintf("+OK %d %s", e.Ordinal, e.UIDL))
		return false
	}

	s.reply(writer, cmd, "+OK")
	for _, e := range s.view.Entries() {
		fmt.Fprintf(writer, "%d %s\r\n", e.Ordinal, e.UIDL)
	}
	fmt.Fprint(writer, ".\r\n")
	return false
}

func (s *POP3Session) handleRetr(writer *bufio.Writer, cmd command, arg string) bool {
	n, ok := parseOrdinal(arg)
	if !ok {
		return s.commandError(writer, cmd, "-ERR Invalid message number")
	}
	e, ok := s.view.Entry(n)
	if !ok {
		return s.commandError(writer, cmd, "-ERR No such message")
	}

	content, err := s.server.db.GetMessageContent(s.ctx, e.MessageID)
	if err != nil {
		s.Log("RETR %d failed: %v", n, err)
		s.serverError(writer, cmd)
		return false
	}

	// Seen-marking happens once; repeating RETR is free of further
	// side effects.
	s.view.MarkSeen(n)

	s.reply(writer, cmd, fmt.Sprintf("+OK %d octets", e.Size))
	s.writeBody(writer, string(content))
	s.DebugLog("retrieved message %d", n)
	return false
}

func (s *POP3Session) handleTop(writer *bufio.Writer, cmd command, arg string) bool {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return s.commandError(writer, cmd, "-ERR TOP requires message number and line count")
	}
	n, ok := parseOrdinal(fields[0])
	if !ok {
		return s.commandError(writer, cmd, "-ERR Invalid message number")
	}
	lines, err := strconv.Atoi(fields[1])
	if err != nil || lines < 0 {
		return s.commandError(writer, cmd, "-ERR Invalid line count")
	}
	e, ok := s.view.Entry(n)
	if !ok {
		return s.commandError(writer, cmd, "-ERR No such message")
	}

	content, err := s.server.db.GetMessageContent(s.ctx, e.MessageID)
	if err != nil {
		s.Log("TOP %d failed: %v", n, err)
		s.serverError(writer, cmd)
		return false
	}

	s.view.MarkSeen(n)

	s.reply(writer, cmd, "+OK")
	s.writeBody(writer, topContent(string(content), lines))
	return false
}

func (s *POP3Session) handleDele(writer *bufio.Writer, cmd command, arg string) bool {
	n, ok := parseOrdinal(arg)
	if !ok {
		return s.commandError(writer, cmd, "-ERR Invalid message number")
	}
	if !s.view.Delete(n) {
		return s.commandError(writer, cmd, "-ERR No such message")
	}
	s.reply(writer, cmd, fmt.Sprintf("+OK Message %d deleted", n))
	s.DebugLog("marked message %d for deletion", n)
	return false
}

// handleQuit enters UPDATE: write back every diverged virtual status
// and rebuild the quota ledger if anything was written.
func (s *POP3Session) handleQuit(writer *bufio.Writer, cmd command) bool {
	s.state = stateUpdate

	// Reconciliation reads must see our own writes.
	ctx := context.WithValue(s.ctx, consts.UseMasterDBKey, true)

	wrote := false
	for _, e := range s.view.Changed() {
		written, err := s.server.db.UpdateMessageStatus(ctx, e.MessageID, e.VirtualStatus)
		if err != nil {
			s.Log("status write failed for message %d: %v", e.MessageID, err)
			continue
		}
		if written {
			wrote = true
		}
	}

	if wrote {
		if err := s.server.db.RebuildQuota(ctx, s.AccountID); err != nil {
			s.Log("quota rebuild failed: %v", err)
		}
	}

	s.reply(writer, cmd, "+OK Goodbye")
	s.Log("session closed normally (writes=%v)", wrote)
	return false
}

// clientError counts a protocol failure and reports whether the error
// ceiling was reached, which drops the connection.
func (s *POP3Session) clientError(writer *bufio.Writer, msg string) bool {
	s.errorsCount++
	metrics.CommandsTotal.WithLabelValues("pop3", "invalid", "error").Inc()
	if s.errorsCount >= s.server.maxErrors {
		fmt.Fprint(writer, "-ERR Too many errors, closing connection\r\n")
		s.Log("error ceiling reached (%d), dropping connection", s.errorsCount)
		return true
	}
	fmt.Fprintf(writer, "%s\r\n", msg)
	return false
}

func (s *POP3Session) commandError(writer *bufio.Writer, cmd command, msg string) bool {
	s.errorsCount++
	metrics.CommandsTotal.WithLabelValues("pop3", cmd.String(), "error").Inc()
	if s.errorsCount >= s.server.maxErrors {
		fmt.Fprint(writer, "-ERR Too many errors, closing connection\r\n")
		s.Log("error ceiling reached (%d), dropping connection", s.errorsCount)
		return true
	}
	fmt.Fprintf(writer, "%s\r\n", msg)
	return false
}

// serverError reports an internal failure: counted as a failed
// command in the metrics, but never against the client's error
// ceiling.
func (s *POP3Session) serverError(writer *bufio.Writer, cmd command) {
	metrics.CommandsTotal.WithLabelValues("pop3", cmd.String(), "error").Inc()
	fmt.Fprint(writer, "-ERR Internal server error\r\n")
}

func (s *POP3Session) reply(writer *bufio.Writer, cmd command, line string) {
	metrics.CommandsTotal.WithLabelValues("pop3", cmd.String(), "ok").Inc()
	fmt.Fprintf(writer, "%s\r\n", line)
}

// writeBody sends dot-stuffed message content followed by the
// multi-line terminator.
func (s *POP3Session) writeBody(writer *bufio.Writer, content string) {
	stuffed := dotStuffPOP3(content)
	writer.WriteString(stuffed)
	if !strings.HasSuffix(stuffed, "\r\n") {
		writer.WriteString("\r\n")
	}
	writer.WriteString(".\r\n")
}

func (s *POP3Session) close() {
	s.cancel()
	s.conn.Close()

	if s.AccountID != 0 {
		s.server.authenticatedConnections.Add(-1)
	}
	s.server.releaseConnection()
	metrics.ConnectionDuration.WithLabelValues("pop3").Observe(time.Since(s.started).Seconds())
	s.Log("connection closed")
}

func parseOrdinal(arg string) (int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
