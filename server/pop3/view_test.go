package pop3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/db"
)

func testMessages() []db.Message {
	return []db.Message{
		{ID: 101, Size: 100, Status: consts.StatusNew, UniqueID: "uid-101"},
		{ID: 102, Size: 200, Status: consts.StatusSeen, UniqueID: "uid-102"},
		{ID: 103, Size: 300, Status: consts.StatusNew, UniqueID: "uid-103"},
	}
}

func TestMessageViewOrdinals(t *testing.T) {
	v := NewMessageView(testMessages())

	count, size := v.Stat()
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(600), size)

	e, ok := v.Entry(2)
	require.True(t, ok)
	assert.Equal(t, 2, e.Ordinal)
	assert.Equal(t, int64(102), e.MessageID)
	assert.Equal(t, "uid-102", e.UIDL)

	_, ok = v.Entry(0)
	assert.False(t, ok)
	_, ok = v.Entry(4)
	assert.False(t, ok)
}

func TestMessageViewDelete(t *testing.T) {
	v := NewMessageView(testMessages())

	require.True(t, v.Delete(2))

	count, size := v.Stat()
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(400), size)

	// A deleted entry disappears from lookups but the other ordinals
	// never shift.
	_, ok := v.Entry(2)
	assert.False(t, ok)
	e, ok := v.Entry(3)
	require.True(t, ok)
	assert.Equal(t, int64(103), e.MessageID)

	entries := v.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Ordinal)
	assert.Equal(t, 3, entries[1].Ordinal)

	// Operations on a deleted entry fail.
	assert.False(t, v.Delete(2))
	assert.False(t, v.MarkSeen(2))
}

func TestMessageViewReset(t *testing.T) {
	v := NewMessageView(testMessages())

	require.True(t, v.Delete(1))
	require.True(t, v.Delete(3))
	require.True(t, v.MarkSeen(2))

	v.Reset()

	count, size := v.Stat()
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(600), size)

	e, ok := v.Entry(1)
	require.True(t, ok)
	assert.Equal(t, consts.StatusNew, e.VirtualStatus)

	assert.Empty(t, v.Changed())
}

func TestMessageViewMarkSeen(t *testing.T) {
	v := NewMessageView(testMessages())

	require.True(t, v.MarkSeen(1))
	e, ok := v.Entry(1)
	require.True(t, ok)
	assert.Equal(t, consts.StatusSeen, e.VirtualStatus)

	// Repeating never regresses or re-changes anything.
	require.True(t, v.MarkSeen(1))
	assert.Equal(t, consts.StatusSeen, e.VirtualStatus)

	// An entry loaded as seen stays exactly seen and never shows up
	// as changed.
	require.True(t, v.MarkSeen(2))
	changed := v.Changed()
	require.Len(t, changed, 1)
	assert.Equal(t, int64(101), changed[0].MessageID)
}

func TestMessageViewLast(t *testing.T) {
	v := NewMessageView(testMessages())

	// First unseen entry is ordinal 1.
	assert.Equal(t, 0, v.Last())

	v.MarkSeen(1)
	// Ordinal 2 was loaded seen, so the first unseen is now 3.
	assert.Equal(t, 2, v.Last())

	v.MarkSeen(3)
	// Everything seen: LAST reports the virtual count.
	assert.Equal(t, 3, v.Last())

	v.Delete(2)
	assert.Equal(t, 2, v.Last())
}

func TestMessageViewChanged(t *testing.T) {
	v := NewMessageView(testMessages())
	assert.Empty(t, v.Changed())

	v.MarkSeen(1)
	v.Delete(3)

	changed := v.Changed()
	require.Len(t, changed, 2)
	assert.Equal(t, int64(101), changed[0].MessageID)
	assert.Equal(t, consts.StatusSeen, changed[0].VirtualStatus)
	assert.Equal(t, int64(103), changed[1].MessageID)
	assert.Equal(t, consts.StatusDelete, changed[1].VirtualStatus)
}

func TestMessageViewEmpty(t *testing.T) {
	v := NewMessageView(nil)

	count, size := v.Stat()
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), size)
	assert.Equal(t, 0, v.Last())
	assert.Empty(t, v.Entries())
	assert.Empty(t, v.Changed())

	_, ok := v.Entry(1)
	assert.False(t, ok)
}
