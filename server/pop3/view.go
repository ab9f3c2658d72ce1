package pop3

import (
	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/db"
)

// ViewEntry is one message as the session sees it. StoredStatus is the
// status loaded at login and never changes; VirtualStatus is what the
// session mutates and what QUIT reconciles back to storage.
type ViewEntry struct {
	Ordinal       int
	MessageID     int64
	Size          int64
	StoredStatus  consts.MessageStatus
	VirtualStatus consts.MessageStatus
	UIDL          string
}

// MessageView is the session-local view over a mailbox, built once at
// login. Ordinals are dense 1..N and stable for the whole session; a
// DELE only hides an entry, it never renumbers the rest.
type MessageView struct {
	entries []ViewEntry

	totalCount int
	totalSize  int64
	virtCount  int
	virtSize   int64
}

// NewMessageView numbers the loaded messages 1..N in the order the
// store returned them.
func NewMessageView(messages []db.Message) *MessageView {
	v := &MessageView{entries: make([]ViewEntry, 0, len(messages))}
	for i, m := range messages {
		v.entries = append(v.entries, ViewEntry{
			Ordinal:       i + 1,
			MessageID:     m.ID,
			Size:          m.Size,
			StoredStatus:  m.Status,
			VirtualStatus: m.Status,
			UIDL:          m.UniqueID,
		})
		v.totalCount++
		v.totalSize += m.Size
	}
	v.virtCount = v.totalCount
	v.virtSize = v.totalSize
	return v
}

// Stat returns the virtual totals: message count and byte size
// excluding entries deleted in this session.
func (v *MessageView) Stat() (int, int64) {
	return v.virtCount, v.virtSize
}

// Entry returns the entry for a session ordinal. ok is false when the
// ordinal is out of range or the entry is virtually deleted.
func (v *MessageView) Entry(n int) (*ViewEntry, bool) {
	if n < 1 || n > len(v.entries) {
		return nil, false
	}
	e := &v.entries[n-1]
	if e.VirtualStatus.Deleted() {
		return nil, false
	}
	return e, true
}

// Entries returns every entry still visible in the session, in
// ordinal order.
func (v *MessageView) Entries() []ViewEntry {
	result := make([]ViewEntry, 0, len(v.entries))
	for _, e := range v.entries {
		if !e.VirtualStatus.Deleted() {
			result = append(result, e)
		}
	}
	return result
}

// MarkSeen advances the entry's virtual status to seen. It never
// regresses a further advanced status, so repeated RETRs are
// idempotent.
func (v *MessageView) MarkSeen(n int) bool {
	e, ok := v.Entry(n)
	if !ok {
		return false
	}
	if e.VirtualStatus < consts.StatusSeen {
		e.VirtualStatus = consts.StatusSeen
	}
	return true
}

// Delete marks the entry virtually deleted and shrinks the virtual
// totals. Storage stays untouched until QUIT.
func (v *MessageView) Delete(n int) bool {
	e, ok := v.Entry(n)
	if !ok {
		return false
	}
	e.VirtualStatus = consts.StatusDelete
	v.virtCount--
	v.virtSize -= e.Size
	return true
}

// Reset rolls every entry's virtual status back to its loaded status
// and restores the virtual totals. This is the only path a status
// moves backwards, and it is purely in-memory.
func (v *MessageView) Reset() {
	for i := range v.entries {
		v.entries[i].VirtualStatus = v.entries[i].StoredStatus
	}
	v.virtCount = v.totalCount
	v.virtSize = v.totalSize
}

// Last returns the ordinal just before the first entry that is still
// unseen, or the virtual message count when everything has been seen.
func (v *MessageView) Last() int {
	for _, e := range v.entries {
		if e.VirtualStatus < consts.StatusSeen {
			return e.Ordinal - 1
		}
	}
	return v.virtCount
}

// Changed returns the entries whose virtual status diverged from the
// status they were loaded with. These are the writes QUIT performs.
func (v *MessageView) Changed() []ViewEntry {
	var result []ViewEntry
	for _, e := range v.entries {
		if e.VirtualStatus != e.StoredStatus {
			result = append(result, e)
		}
	}
	return result
}
