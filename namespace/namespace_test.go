package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		simple string
		ns     Namespace
		owner  string
	}{
		{"personal", "INBOX", "INBOX", None, ""},
		{"personal nested", "Lists/golang", "Lists/golang", None, ""},
		{"users", "#Users/joe/INBOX", "INBOX", Users, "joe"},
		{"users nested", "#Users/joe/Lists/golang", "Lists/golang", Users, "joe"},
		{"users root", "#Users/joe", "", Users, "joe"},
		{"users case-insensitive prefix", "#users/joe/INBOX", "INBOX", Users, "joe"},
		{"public", "#Public/announce", "announce", Public, ""},
		{"public nested", "#Public/announce/2024", "announce/2024", Public, ""},
		{"public bare", "#Public", "", Public, ""},
		{"leading slash trimmed", "/INBOX", "INBOX", None, ""},
		{"trailing slash trimmed", "INBOX/", "INBOX", None, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			simple, ns, owner := Split(tt.input)
			assert.Equal(t, tt.simple, simple)
			assert.Equal(t, tt.ns, ns)
			assert.Equal(t, tt.owner, owner)
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "INBOX", Join("INBOX", "joe", "joe"))
	assert.Equal(t, "#Users/ann/Shared", Join("Shared", "ann", "joe"))
	assert.Equal(t, "#Public/announce", Join("announce", "__public__", "joe"))
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("INBOX"))
	assert.True(t, ValidName("Lists/go lang_2024"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("bad\x00name"))
	assert.False(t, ValidName("bad\rname"))
}
