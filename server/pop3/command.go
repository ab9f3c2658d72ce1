package pop3

import "strings"

// command is the closed set of POP3 commands. Every input line
// resolves to exactly one value once, before dispatch.
type command int

const (
	cmdUnknown command = iota
	cmdQuit
	cmdUser
	cmdPass
	cmdApop
	cmdAuth
	cmdStat
	cmdList
	cmdRetr
	cmdDele
	cmdRset
	cmdNoop
	cmdLast
	cmdUidl
	cmdTop
)

var commandNames = map[string]command{
	"QUIT": cmdQuit,
	"USER": cmdUser,
	"PASS": cmdPass,
	"APOP": cmdApop,
	"AUTH": cmdAuth,
	"STAT": cmdStat,
	"LIST": cmdList,
	"RETR": cmdRetr,
	"DELE": cmdDele,
	"RSET": cmdRset,
	"NOOP": cmdNoop,
	"LAST": cmdLast,
	"UIDL": cmdUidl,
	"TOP":  cmdTop,
}

// noArgCommands may be issued without an argument. Everything else
// requires one.
var noArgCommands = map[command]bool{
	cmdQuit: true,
	cmdList: true,
	cmdStat: true,
	cmdRset: true,
	cmdNoop: true,
	cmdLast: true,
	cmdUidl: true,
	cmdAuth: true,
}

func (c command) String() string {
	for name, cmd := range commandNames {
		if cmd == c {
			return name
		}
	}
	return "UNKNOWN"
}

// parseCommand splits a trimmed input line into its command and
// argument. The token before the first space is matched
// case-insensitively; the remainder of the line is the argument,
// uninterpreted (TOP carries two numbers in it). ok is false for an
// unknown command or a missing required argument.
func parseCommand(line string) (cmd command, arg string, ok bool) {
	token := line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		token = line[:i]
		arg = strings.TrimSpace(line[i+1:])
	}

	cmd, known := commandNames[strings.ToUpper(token)]
	if !known {
		return cmdUnknown, "", false
	}
	if arg == "" && !noArgCommands[cmd] {
		return cmd, "", false
	}
	return cmd, arg, true
}
