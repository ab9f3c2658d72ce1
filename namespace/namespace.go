// Package namespace resolves fully qualified mailbox names.
//
// A mailbox name may carry a namespace prefix classifying it as another
// user's mailbox ("#Users/<owner>/...") or a shared mailbox
// ("#Public/..."). Names without a prefix belong to the requesting
// user. The package also builds the case-match patterns used to look up
// stored names, because case-sensitive matching is not portable across
// SQL collations.
package namespace

import (
	"strings"

	"github.com/harbormail/harbor/consts"
)

// Namespace classifies the prefix of a fully qualified mailbox name.
type Namespace int

const (
	None   Namespace = iota // personal mailbox of the requesting user
	Users                   // another user's mailbox (#Users/<owner>/...)
	Public                  // shared mailbox (#Public/...)
)

const (
	PrefixUsers  = "#Users"
	PrefixPublic = "#Public"
)

func (n Namespace) String() string {
	switch n {
	case Users:
		return PrefixUsers
	case Public:
		return PrefixPublic
	default:
		return ""
	}
}

// Split strips the namespace prefix from a fully qualified name and
// returns the remaining simple name, the namespace tag and, for #Users,
// the embedded owner name. Leading and trailing delimiters are trimmed
// first. Prefixes match case-insensitively.
func Split(full string) (simple string, ns Namespace, owner string) {
	name := trimDelimiters(full)
	delim := string(consts.MailboxDelimiter)

	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, strings.ToLower(PrefixUsers)+delim):
		rest := name[len(PrefixUsers)+1:]
		if i := strings.IndexByte(rest, consts.MailboxDelimiter); i >= 0 {
			return rest[i+1:], Users, rest[:i]
		}
		// "#Users/joe" names joe's hierarchy root
		return "", Users, rest
	case strings.HasPrefix(lower, strings.ToLower(PrefixPublic)+delim):
		return name[len(PrefixPublic)+1:], Public, ""
	case strings.EqualFold(name, PrefixPublic):
		return "", Public, ""
	}
	return name, None, ""
}

// Join prepends the namespace prefix matching how the requesting user
// sees a mailbox owned by ownerName. Mailboxes owned by the requester
// keep their simple name; public mailboxes get #Public; everything else
// is presented under #Users/<owner>.
func Join(simple, ownerName, userName string) string {
	delim := string(consts.MailboxDelimiter)
	switch {
	case ownerName == userName:
		return simple
	case ownerName == consts.PublicAccount:
		return PrefixPublic + delim + simple
	default:
		return PrefixUsers + delim + ownerName + delim + simple
	}
}

// ValidName reports whether every character of a simple mailbox name is
// in the accepted set.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !strings.ContainsRune(consts.MailboxNameChars, rune(name[i])) {
			return false
		}
	}
	return true
}

func trimDelimiters(name string) string {
	delim := string(consts.MailboxDelimiter)
	name = strings.TrimRight(name, delim)
	return strings.TrimLeft(name, delim)
}
