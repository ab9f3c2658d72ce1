package pop3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantCmd command
		wantArg string
		wantOK  bool
	}{
		{"quit", "QUIT", cmdQuit, "", true},
		{"lowercase", "quit", cmdQuit, "", true},
		{"mixed case", "StAt", cmdStat, "", true},
		{"user with arg", "USER alice", cmdUser, "alice", true},
		{"pass preserves arg", "PASS s3cret word", cmdPass, "s3cret word", true},
		{"retr with ordinal", "RETR 3", cmdRetr, "3", true},
		{"top keeps both numbers", "TOP 2 10", cmdTop, "2 10", true},
		{"apop keeps digest", "APOP alice 0123abcd", cmdApop, "alice 0123abcd", true},
		{"list without arg", "LIST", cmdList, "", true},
		{"list with arg", "LIST 2", cmdList, "2", true},
		{"uidl without arg", "UIDL", cmdUidl, "", true},
		{"auth without mechanism", "AUTH", cmdAuth, "", true},
		{"noop", "NOOP", cmdNoop, "", true},
		{"last", "LAST", cmdLast, "", true},
		{"rset", "RSET", cmdRset, "", true},
		{"arg whitespace trimmed", "USER   alice  ", cmdUser, "alice", true},
		{"retr missing arg", "RETR", cmdRetr, "", false},
		{"dele missing arg", "DELE", cmdDele, "", false},
		{"user missing arg", "USER", cmdUser, "", false},
		{"unknown command", "XFOO", cmdUnknown, "", false},
		{"empty line", "", cmdUnknown, "", false},
		{"garbage", "!!!", cmdUnknown, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, arg, ok := parseCommand(tt.line)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArg, arg)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "RETR", cmdRetr.String())
	assert.Equal(t, "QUIT", cmdQuit.String())
	assert.Equal(t, "UNKNOWN", cmdUnknown.String())
}

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		arg    string
		want   int
		wantOK bool
	}{
		{"1", 1, true},
		{"42", 42, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"1.5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			n, ok := parseOrdinal(tt.arg)
			assert.Equal(t, tt.want, n)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
