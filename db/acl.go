package db

import (
	"context"
	"fmt"

	"github.com/harbormail/harbor/consts"
)

// Right is one of the classic IMAP-style mailbox rights. Each right
// maps to its own boolean column on mailbox_acls.
type Right string

const (
	RightLookup     Right = "lookup"     // mailbox visible in listings
	RightRead       Right = "read"       // open mailbox, read messages
	RightSeen       Right = "seen"       // keep seen state
	RightWrite      Right = "write"      // set flags other than seen/deleted
	RightInsert     Right = "insert"     // deliver or copy messages in
	RightPost       Right = "post"       // submit to the mailbox address
	RightCreate     Right = "create"     // create child mailboxes
	RightDelete     Right = "delete"     // delete the mailbox
	RightAdminister Right = "administer" // change the ACL itself
)

// aclColumns is the closed mapping of rights to storage columns. Only
// values from this table ever reach query text.
var aclColumns = map[Right]string{
	RightLookup:     "lookup_flag",
	RightRead:       "read_flag",
	RightSeen:       "seen_flag",
	RightWrite:      "write_flag",
	RightInsert:     "insert_flag",
	RightPost:       "post_flag",
	RightCreate:     "create_flag",
	RightDelete:     "delete_flag",
	RightAdminister: "administer_flag",
}

// AllRights lists every right, in grant order.
var AllRights = []Right{
	RightLookup, RightRead, RightSeen, RightWrite, RightInsert,
	RightPost, RightCreate, RightDelete, RightAdminister,
}

func (r Right) column() (string, error) {
	col, ok := aclColumns[r]
	if !ok {
		return "", fmt.Errorf("unknown ACL right %q", string(r))
	}
	return col, nil
}

// HasRight reports whether the account holds the given right on the
// mailbox. The owner holds every right implicitly; other accounts are
// checked against their own ACL row and then the "anyone" row.
func (db *Database) HasRight(ctx context.Context, accountID, mailboxID int64, right Right) (bool, error) {
	col, err := right.column()
	if err != nil {
		return false, err
	}

	var ownerID int64
	err = db.TimedQueryRow(ctx, "acl_mailbox_owner", `
		SELECT account_id FROM mailboxes WHERE id = $1
	`, mailboxID).Scan(&ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve mailbox owner: %w", err)
	}
	if ownerID == accountID {
		return true, nil
	}

	anyoneID, err := db.AnyoneAccountID(ctx)
	if err != nil {
		return false, err
	}

	var granted bool
	err = db.TimedQueryRow(ctx, "acl_has_right", fmt.Sprintf(`
		SELECT COALESCE(bool_or(%s), FALSE)
		FROM mailbox_acls
		WHERE mailbox_id = $1 AND account_id IN ($2, $3)
	`, col), mailboxID, accountID, anyoneID).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("failed to check ACL right: %w", err)
	}
	return granted, nil
}

// SetRight sets or clears one right for the account on the mailbox,
// creating the ACL row lazily. Setting a right for the owner is a
// successful no-op since owner rights are implicit and never stored.
func (db *Database) SetRight(ctx context.Context, accountID, mailboxID int64, right Right, enabled bool) error {
	col, err := right.column()
	if err != nil {
		return err
	}

	var ownerID int64
	err = db.TimedQueryRow(ctx, "acl_mailbox_owner", `
		SELECT account_id FROM mailboxes WHERE id = $1
	`, mailboxID).Scan(&ownerID)
	if err != nil {
		return fmt.Errorf("failed to resolve mailbox owner: %w", err)
	}
	if ownerID == accountID {
		return nil
	}

	err = db.TimedExec(ctx, "acl_set_right", fmt.Sprintf(`
		INSERT INTO mailbox_acls (account_id, mailbox_id, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, mailbox_id) DO UPDATE SET %s = EXCLUDED.%s
	`, col, col, col), accountID, mailboxID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set ACL right: %w", err)
	}
	return nil
}

// GrantAllRights gives the account every right on the mailbox in one
// row write. Used when a mailbox is created under the public owner on
// behalf of a requesting user.
func (db *Database) GrantAllRights(ctx context.Context, accountID, mailboxID int64) error {
	err := db.TimedExec(ctx, "acl_grant_all", `
		INSERT INTO mailbox_acls (account_id, mailbox_id,
			lookup_flag, read_flag, seen_flag, write_flag, insert_flag,
			post_flag, create_flag, delete_flag, administer_flag)
		VALUES ($1, $2, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE)
		ON CONFLICT (account_id, mailbox_id) DO UPDATE SET
			lookup_flag = TRUE, read_flag = TRUE, seen_flag = TRUE,
			write_flag = TRUE, insert_flag = TRUE, post_flag = TRUE,
			create_flag = TRUE, delete_flag = TRUE, administer_flag = TRUE
	`, accountID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to grant rights: %w", err)
	}
	return nil
}

// DeleteACL removes the account's ACL row on the mailbox. A missing
// row is not an error.
func (db *Database) DeleteACL(ctx context.Context, accountID, mailboxID int64) error {
	err := db.TimedExec(ctx, "acl_delete", `
		DELETE FROM mailbox_acls WHERE account_id = $1 AND mailbox_id = $2
	`, accountID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to delete ACL entry: %w", err)
	}
	return nil
}

// RequireRight is HasRight folded into the error taxonomy for call
// sites that treat a missing right as a failure.
func (db *Database) RequireRight(ctx context.Context, accountID, mailboxID int64, right Right) error {
	ok, err := db.HasRight(ctx, accountID, mailboxID, right)
	if err != nil {
		return err
	}
	if !ok {
		return consts.ErrNoPermission
	}
	return nil
}
