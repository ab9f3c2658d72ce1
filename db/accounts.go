package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harbormail/harbor/consts"
)

// Account is a mail store identity with its quota ledger fields.
// MaxMailSize zero means unlimited.
type Account struct {
	ID          int64
	Name        string
	MaxMailSize int64
	CurMailSize int64
	CreatedAt   time.Time
}

// CreateAccount inserts a new account with an already hashed password.
// The default mailboxes are created through the hierarchy builder so
// the account is usable immediately.
func (db *Database) CreateAccount(ctx context.Context, name, hashedPassword string, maxMailSize int64) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("account name must not be empty")
	}

	var accountID int64
	err := db.WritePool.QueryRow(ctx, `
		INSERT INTO accounts (name, password, maxmail_size)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, hashedPassword, maxMailSize).Scan(&accountID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("account %q: %w", name, consts.ErrDBUniqueViolation)
		}
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	for _, mailbox := range consts.DefaultMailboxes {
		if err := db.CreateMailboxWithParents(ctx, accountID, mailbox, SourceInternalTrusted); err != nil &&
			!errors.Is(err, consts.ErrMailboxAlreadyExists) {
			return 0, fmt.Errorf("failed to create default mailbox %q: %w", mailbox, err)
		}
	}
	return accountID, nil
}

// GetAccountByName looks up an account by its unique name.
func (db *Database) GetAccountByName(ctx context.Context, name string) (*Account, error) {
	var a Account
	err := db.TimedQueryRow(ctx, "account_by_name", `
		SELECT id, name, maxmail_size, curmail_size, created_at
		FROM accounts
		WHERE name = $1
	`, name).Scan(&a.ID, &a.Name, &a.MaxMailSize, &a.CurMailSize, &a.CreatedAt)
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return nil, consts.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up account %q: %w", name, err)
	}
	return &a, nil
}

// GetAccountIDByName resolves a name to its account id.
func (db *Database) GetAccountIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.TimedQueryRow(ctx, "account_id_by_name", `
		SELECT id FROM accounts WHERE name = $1
	`, name).Scan(&id)
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return 0, consts.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to resolve account %q: %w", name, err)
	}
	return id, nil
}

// memoizedID returns the cached id or resolves and caches it. A
// failed lookup is never cached: it fails the in-flight operation and
// the next caller resolves again.
func (db *Database) memoizedID(cached *int64, resolve func() (int64, error)) (int64, error) {
	db.reservedMu.Lock()
	defer db.reservedMu.Unlock()
	if *cached != 0 {
		return *cached, nil
	}
	id, err := resolve()
	if err != nil {
		return 0, err
	}
	*cached = id
	return id, nil
}

// DeliveryAccountID resolves the reserved delivery identity. Every
// quota mutation checks against it.
func (db *Database) DeliveryAccountID(ctx context.Context) (int64, error) {
	return db.memoizedID(&db.deliveryID, func() (int64, error) {
		return db.GetAccountIDByName(ctx, consts.DeliveryAccount)
	})
}

// PublicAccountID resolves the reserved owner of the #Public hierarchy.
func (db *Database) PublicAccountID(ctx context.Context) (int64, error) {
	return db.memoizedID(&db.publicID, func() (int64, error) {
		return db.GetAccountIDByName(ctx, consts.PublicAccount)
	})
}

// AnyoneAccountID resolves the pseudo-account anchoring public ACL rows.
func (db *Database) AnyoneAccountID(ctx context.Context) (int64, error) {
	return db.memoizedID(&db.anyoneID, func() (int64, error) {
		return db.GetAccountIDByName(ctx, consts.AnyoneAccount)
	})
}
