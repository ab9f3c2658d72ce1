package consts

// MailboxDelimiter separates levels of the mailbox hierarchy in
// user-visible names.
const MailboxDelimiter = '/'

// MailboxInbox is the canonical spelling of the inbox. A leading path
// segment spelled "inbox" in any case is normalized to this.
const MailboxInbox = "INBOX"

// Reserved account names. PublicAccount owns every mailbox under the
// #Public namespace; DeliveryAccount is the internal identity used by
// the delivery path and is exempt from quota accounting.
const (
	PublicAccount   = "__public__"
	DeliveryAccount = "__delivery__"
)

// AnyoneAccount is the pseudo-account whose ACL rows grant rights to
// every authenticated user.
const AnyoneAccount = "anyone"

var DefaultMailboxes = []string{
	"INBOX",
	"Sent",
	"Drafts",
	"Trash",
}

// MailboxNameChars is the set of characters accepted in mailbox names.
const MailboxNameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"_.!@#$%^&*()-+=~[]{}<>:;\\/ "
