package consts

// MessageStatus is the persisted lifecycle ordinal of a message. The
// scale only ever advances; RSET rolls back a session's virtual copy,
// never the stored value.
type MessageStatus int

const (
	StatusNew  MessageStatus = 0 // delivered, not yet read
	StatusSeen MessageStatus = 1 // retrieved at least once
	// StatusDelete is the threshold from which a message no longer
	// appears in any client view and is eligible for purging.
	StatusDelete MessageStatus = 2
	StatusPurge  MessageStatus = 3 // content may be reclaimed
)

// Deleted reports whether the status has crossed the delete threshold.
func (s MessageStatus) Deleted() bool {
	return s >= StatusDelete
}
