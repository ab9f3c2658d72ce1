package db

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/logger"
)

const (
	ssha512Prefix  = "{SSHA512}"
	blfCryptPrefix = "{BLF-CRYPT}"
	plainPrefix    = "{PLAIN}"

	bcryptPrefix2a = "$2a$"
	bcryptPrefix2b = "$2b$"
	bcryptPrefix2y = "$2y$"

	sha512HashLength = 64
)

// PasswordScheme classifies a stored password by its prefix.
type PasswordScheme string

const (
	SchemeBcrypt  PasswordScheme = "bcrypt"
	SchemeSSHA512 PasswordScheme = "ssha512"
	// SchemePlain is a clear-text stored secret. It is the only scheme
	// APOP can work against, since the digest requires the raw secret.
	SchemePlain   PasswordScheme = "plain"
	SchemeUnknown PasswordScheme = "unknown"
)

// DetectPasswordScheme returns the scheme of a stored password value.
func DetectPasswordScheme(stored string) PasswordScheme {
	switch {
	case strings.HasPrefix(stored, blfCryptPrefix),
		strings.HasPrefix(stored, bcryptPrefix2a),
		strings.HasPrefix(stored, bcryptPrefix2b),
		strings.HasPrefix(stored, bcryptPrefix2y):
		return SchemeBcrypt
	case strings.HasPrefix(stored, ssha512Prefix):
		return SchemeSSHA512
	case strings.HasPrefix(stored, plainPrefix):
		return SchemePlain
	case stored == "":
		return SchemeUnknown
	case strings.HasPrefix(stored, "{"):
		return SchemeUnknown
	default:
		// No scheme marker means the secret is stored in the clear.
		return SchemePlain
	}
}

func verifySSHA512(stored, password string) error {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, ssha512Prefix))
	if err != nil {
		return fmt.Errorf("invalid SSHA512 data: %w", err)
	}
	if len(decoded) <= sha512HashLength {
		return errors.New("invalid SSHA512 hash: too short")
	}

	storedHash := decoded[:sha512HashLength]
	salt := decoded[sha512HashLength:]

	h := sha512.New()
	h.Write([]byte(password))
	h.Write(salt)
	if !bytes.Equal(storedHash, h.Sum(nil)) {
		return errors.New("invalid password")
	}
	return nil
}

func verifyPlain(stored, password string) error {
	secret := strings.TrimPrefix(stored, plainPrefix)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(password)) != 1 {
		return errors.New("invalid password")
	}
	return nil
}

// verifyPassword checks a candidate password against the stored value,
// dispatching on the scheme prefix.
func verifyPassword(stored, password string) error {
	switch DetectPasswordScheme(stored) {
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(strings.TrimPrefix(stored, blfCryptPrefix)), []byte(password))
	case SchemeSSHA512:
		return verifySSHA512(stored, password)
	case SchemePlain:
		return verifyPlain(stored, password)
	default:
		logger.Warn("unknown password scheme", "prefix", stored[:min(10, len(stored))])
		return errors.New("unknown password hash scheme")
	}
}

// GenerateBcryptHash hashes a password for storage, prefixed so the
// scheme survives round-trips through other tooling.
func GenerateBcryptHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return blfCryptPrefix + string(hash), nil
}

// GenerateSSHA512Hash hashes a password with a random salt in the
// {SSHA512} format.
func GenerateSSHA512Hash(password string) (string, error) {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("error generating random salt: %w", err)
	}

	h := sha512.New()
	h.Write([]byte(password))
	h.Write(salt)
	combined := append(h.Sum(nil), salt...)
	return ssha512Prefix + base64.StdEncoding.EncodeToString(combined), nil
}

// Authenticate validates a clear-text password and returns the account
// id. Accounts without a stored password cannot authenticate, which
// keeps the reserved identities out of reach.
func (db *Database) Authenticate(ctx context.Context, name, password string) (int64, error) {
	accountID, stored, err := db.lookupCredentials(ctx, name)
	if err != nil {
		return 0, err
	}
	if stored == "" {
		return 0, consts.ErrUserNotFound
	}
	if err := verifyPassword(stored, password); err != nil {
		return 0, fmt.Errorf("invalid credentials: %w", err)
	}
	return accountID, nil
}

// AuthenticateAPOP validates an APOP digest over the connection stamp.
// The digest is md5(stamp + secret) in lowercase hex. Only accounts
// whose password is stored in the clear can use APOP.
func (db *Database) AuthenticateAPOP(ctx context.Context, name, digest, stamp string) (int64, error) {
	accountID, stored, err := db.lookupCredentials(ctx, name)
	if err != nil {
		return 0, err
	}
	if stored == "" {
		return 0, consts.ErrUserNotFound
	}
	if DetectPasswordScheme(stored) != SchemePlain {
		return 0, fmt.Errorf("apop denied for %q: password not stored in clear text", name)
	}

	secret := strings.TrimPrefix(stored, plainPrefix)
	sum := md5.Sum([]byte(stamp + secret))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(digest))) != 1 {
		return 0, errors.New("invalid apop digest")
	}
	return accountID, nil
}

func (db *Database) lookupCredentials(ctx context.Context, name string) (int64, string, error) {
	var accountID int64
	var stored string
	err := db.TimedQueryRow(ctx, "auth_lookup", `
		SELECT id, password FROM accounts WHERE name = $1
	`, name).Scan(&accountID, &stored)
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return 0, "", consts.ErrUserNotFound
		}
		return 0, "", fmt.Errorf("failed to look up credentials: %w", err)
	}
	return accountID, stored, nil
}
