package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harbormail/harbor/consts"
)

func TestSplitMailboxPath(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		levels []string
		err    error
	}{
		{"single", "INBOX", []string{"INBOX"}, nil},
		{"nested", "a/b/c", []string{"a", "a/b", "a/b/c"}, nil},
		{"trailing separator truncates", "a/b/", []string{"a", "a/b"}, nil},
		{"empty interior segment", "a//b", nil, consts.ErrMailboxInvalidName},
		{"only separator", "/", nil, consts.ErrMailboxInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := splitMailboxPath(tt.input)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.levels, levels)
		})
	}
}

func TestCanonicalizeName(t *testing.T) {
	assert.Equal(t, "INBOX", canonicalizeName("inbox"))
	assert.Equal(t, "INBOX", canonicalizeName("InBoX"))
	assert.Equal(t, "INBOX/Archive", canonicalizeName("inbox/Archive"))
	// Only the leading segment is canonical.
	assert.Equal(t, "Lists/inbox", canonicalizeName("Lists/inbox"))
	assert.Equal(t, "Sent", canonicalizeName("Sent"))
}

func TestCreationSourceTrusted(t *testing.T) {
	assert.True(t, SourceInternalTrusted.trusted())
	assert.False(t, SourceInteractive.trusted())
	assert.False(t, SourceDeliveryRouting.trusted())
	assert.False(t, SourceDefaultFallback.trusted())
}
