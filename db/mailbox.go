package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/namespace"
)

// Mailbox permission values.
const (
	PermissionReadOnly  = 1
	PermissionReadWrite = 2
)

// DBMailbox is a stored mailbox row. Name is the namespace-stripped
// stored name; Seq increments on every content-affecting mutation.
type DBMailbox struct {
	ID          int64
	AccountID   int64
	Name        string
	Permission  int
	NoSelect    bool
	NoInferiors bool
	Seq         int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const mailboxColumns = `id, account_id, name, permission, no_select, no_inferiors, seq, created_at, updated_at`

func scanMailbox(row pgx.Row) (*DBMailbox, error) {
	var m DBMailbox
	err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.Permission, &m.NoSelect,
		&m.NoInferiors, &m.Seq, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// canonicalizeName normalizes a simple mailbox name before lookup or
// creation: a leading path segment spelled "inbox" in any case becomes
// INBOX.
func canonicalizeName(simple string) string {
	delim := string(consts.MailboxDelimiter)
	segments := strings.Split(simple, delim)
	if len(segments) > 0 && strings.EqualFold(segments[0], consts.MailboxInbox) {
		segments[0] = consts.MailboxInbox
	}
	return strings.Join(segments, delim)
}

// resolveOwner maps the namespace of a fully qualified name to the
// owning account. Unknown #Users owners fail the whole resolution.
func (db *Database) resolveOwner(ctx context.Context, userID int64, ns namespace.Namespace, ownerName string) (int64, error) {
	switch ns {
	case namespace.Users:
		ownerID, err := db.GetAccountIDByName(ctx, ownerName)
		if err != nil {
			return 0, fmt.Errorf("namespace owner %q: %w", ownerName, err)
		}
		return ownerID, nil
	case namespace.Public:
		return db.PublicAccountID(ctx)
	default:
		return userID, nil
	}
}

// FindMailbox resolves a fully qualified name for the requesting user
// and returns the stored row. Lookup goes through the case-match
// patterns: the insensitive pattern matched with ILIKE and, when a
// verbatim run is present, the sensitive pattern with LIKE as well.
func (db *Database) FindMailbox(ctx context.Context, userID int64, fullName string) (*DBMailbox, error) {
	simple, ns, ownerName := namespace.Split(fullName)
	if simple == "" {
		return nil, consts.ErrMailboxNotFound
	}
	ownerID, err := db.resolveOwner(ctx, userID, ns, ownerName)
	if err != nil {
		return nil, err
	}
	return db.findMailboxByOwner(ctx, ownerID, simple)
}

func (db *Database) findMailboxByOwner(ctx context.Context, ownerID int64, simple string) (*DBMailbox, error) {
	match := namespace.NewMatch(canonicalizeName(simple))

	var row pgx.Row
	if match.Sensitive != "" {
		row = db.TimedQueryRow(ctx, "mailbox_find", `
			SELECT `+mailboxColumns+`
			FROM mailboxes
			WHERE account_id = $1 AND name ILIKE $2 AND name LIKE $3
		`, ownerID, match.Insensitive, match.Sensitive)
	} else {
		row = db.TimedQueryRow(ctx, "mailbox_find", `
			SELECT `+mailboxColumns+`
			FROM mailboxes
			WHERE account_id = $1 AND name ILIKE $2
		`, ownerID, match.Insensitive)
	}

	m, err := scanMailbox(row)
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return nil, consts.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("failed to find mailbox %q: %w", simple, err)
	}
	return m, nil
}

// GetMailboxByID fetches a mailbox row by id.
func (db *Database) GetMailboxByID(ctx context.Context, mailboxID int64) (*DBMailbox, error) {
	m, err := scanMailbox(db.TimedQueryRow(ctx, "mailbox_by_id", `
		SELECT `+mailboxColumns+` FROM mailboxes WHERE id = $1
	`, mailboxID))
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return nil, consts.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox %d: %w", mailboxID, err)
	}
	return m, nil
}

// ListedMailbox is a mailbox together with the name the requesting
// user sees it under.
type ListedMailbox struct {
	DBMailbox
	FullName string
}

// ListMailboxes returns every mailbox the user may see: their own plus
// any mailbox granting them (or "anyone") the lookup right. Names of
// foreign mailboxes come back re-prefixed with their namespace. With
// subscribedOnly set, only mailboxes the user subscribed to appear.
func (db *Database) ListMailboxes(ctx context.Context, userID int64, userName string, subscribedOnly bool) ([]ListedMailbox, error) {
	anyoneID, err := db.AnyoneAccountID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT DISTINCT ` + prefixedMailboxColumns("m") + `, a.name AS owner_name
		FROM mailboxes m
		JOIN accounts a ON a.id = m.account_id
		LEFT JOIN mailbox_acls acl ON acl.mailbox_id = m.id AND acl.account_id IN ($1, $2)
		WHERE (m.account_id = $1 OR (acl.lookup_flag AND acl.account_id IS NOT NULL))`
	if subscribedOnly {
		query += `
		AND EXISTS (SELECT 1 FROM subscriptions s WHERE s.mailbox_id = m.id AND s.account_id = $1)`
	}
	query += `
		ORDER BY m.name`

	rows, err := db.TimedQuery(ctx, "mailbox_list", query, userID, anyoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var result []ListedMailbox
	for rows.Next() {
		var lm ListedMailbox
		var ownerName string
		err := rows.Scan(&lm.ID, &lm.AccountID, &lm.Name, &lm.Permission, &lm.NoSelect,
			&lm.NoInferiors, &lm.Seq, &lm.CreatedAt, &lm.UpdatedAt, &ownerName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailbox row: %w", err)
		}
		lm.FullName = namespace.Join(lm.Name, ownerName, userName)
		result = append(result, lm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mailbox listing failed: %w", err)
	}
	return result, nil
}

func prefixedMailboxColumns(alias string) string {
	cols := strings.Split(mailboxColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Subscribe records the subscription marker for the account.
func (db *Database) Subscribe(ctx context.Context, accountID, mailboxID int64) error {
	err := db.TimedExec(ctx, "subscription_add", `
		INSERT INTO subscriptions (account_id, mailbox_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, accountID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes the subscription marker. A missing marker is not
// an error.
func (db *Database) Unsubscribe(ctx context.Context, accountID, mailboxID int64) error {
	err := db.TimedExec(ctx, "subscription_remove", `
		DELETE FROM subscriptions WHERE account_id = $1 AND mailbox_id = $2
	`, accountID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// bumpSeq advances the mailbox change counter inside the caller's
// transaction. Collaborators watch seq to detect content changes.
func bumpSeq(ctx context.Context, tx pgx.Tx, mailboxID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE mailboxes SET seq = seq + 1, updated_at = now() WHERE id = $1
	`, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to bump mailbox seq: %w", err)
	}
	return nil
}

// DeleteMailbox removes a mailbox for the requesting user. A non-empty
// mailbox is refused unless force is set; a forced delete expunges the
// content and settles the quota ledger first. The whole removal runs
// in one transaction.
func (db *Database) DeleteMailbox(ctx context.Context, userID, mailboxID int64, force bool) error {
	mailbox, err := db.GetMailboxByID(ctx, mailboxID)
	if err != nil {
		return err
	}
	if err := db.RequireRight(ctx, userID, mailboxID, RightDelete); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var count int64
	var totalSize int64
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(p.size), 0)
		FROM messages m
		JOIN physmessage p ON p.id = m.physmessage_id
		WHERE m.mailbox_id = $1 AND m.status < $2
	`, mailboxID, consts.StatusDelete).Scan(&count, &totalSize)
	if err != nil {
		return fmt.Errorf("failed to measure mailbox content: %w", err)
	}

	if count > 0 {
		if !force {
			return consts.ErrMailboxNotEmpty
		}
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE mailbox_id = $1`, mailboxID); err != nil {
			return fmt.Errorf("failed to expunge mailbox content: %w", err)
		}
		if err := db.SubtractQuota(ctx, tx, mailbox.AccountID, totalSize); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM mailboxes WHERE id = $1`, mailboxID); err != nil {
		return fmt.Errorf("failed to delete mailbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	return nil
}
