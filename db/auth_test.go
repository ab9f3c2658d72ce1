package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPasswordScheme(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		scheme PasswordScheme
	}{
		{"blf-crypt", "{BLF-CRYPT}$2a$10$abcdefghijklmnopqrstuv", SchemeBcrypt},
		{"bare bcrypt 2a", "$2a$10$abcdefghijklmnopqrstuv", SchemeBcrypt},
		{"bare bcrypt 2b", "$2b$12$abcdefghijklmnopqrstuv", SchemeBcrypt},
		{"ssha512", "{SSHA512}c29tZWRhdGE=", SchemeSSHA512},
		{"plain prefixed", "{PLAIN}secret", SchemePlain},
		{"bare clear text", "secret", SchemePlain},
		{"empty", "", SchemeUnknown},
		{"unknown scheme", "{MD5-CRYPT}whatever", SchemeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.scheme, DetectPasswordScheme(tt.stored))
		})
	}
}

func TestBcryptRoundTrip(t *testing.T) {
	hash, err := GenerateBcryptHash("hunter2")
	require.NoError(t, err)
	assert.Equal(t, SchemeBcrypt, DetectPasswordScheme(hash))

	assert.NoError(t, verifyPassword(hash, "hunter2"))
	assert.Error(t, verifyPassword(hash, "hunter3"))
}

func TestSSHA512RoundTrip(t *testing.T) {
	hash, err := GenerateSSHA512Hash("hunter2")
	require.NoError(t, err)
	assert.Equal(t, SchemeSSHA512, DetectPasswordScheme(hash))

	assert.NoError(t, verifyPassword(hash, "hunter2"))
	assert.Error(t, verifyPassword(hash, "hunter3"))
}

func TestVerifyPlain(t *testing.T) {
	assert.NoError(t, verifyPassword("{PLAIN}secret", "secret"))
	assert.NoError(t, verifyPassword("secret", "secret"))
	assert.Error(t, verifyPassword("{PLAIN}secret", "wrong"))
	assert.Error(t, verifyPassword("", "anything"))
}

func TestVerifySSHA512Malformed(t *testing.T) {
	assert.Error(t, verifyPassword("{SSHA512}not-base64!!", "x"))
	// Valid base64 but shorter than hash+salt.
	assert.Error(t, verifyPassword("{SSHA512}c2hvcnQ=", "x"))
}
