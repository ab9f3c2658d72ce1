package db

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"lukechampine.com/blake3"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/helpers"
	"github.com/harbormail/harbor/pkg/metrics"
)

// Message is a stored message row joined with its physmessage size.
type Message struct {
	ID            int64
	MailboxID     int64
	PhysMessageID int64
	Status        consts.MessageStatus
	Size          int64
	UniqueID      string
	InternalDate  time.Time
}

// newUniqueID derives a client-stable UIDL value: a content hash
// prefix plus random suffix so two copies of the same content still
// get distinct ids.
func newUniqueID(contentHash []byte) (string, error) {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate unique id: %w", err)
	}
	return hex.EncodeToString(contentHash[:12]) + hex.EncodeToString(salt), nil
}

// InsertMessage delivers content into a mailbox. The quota soft-limit
// check runs first; the physmessage row, message row, ledger increment
// and mailbox seq bump all commit in one transaction. Returns the new
// message id.
func (db *Database) InsertMessage(ctx context.Context, mailboxID int64, content []byte, internalDate time.Time) (int64, error) {
	// Stored content goes over the wire verbatim, so it is forced to
	// network line endings here rather than trusting every caller.
	content = helpers.NormalizeCRLF(content)

	mailbox, err := db.GetMailboxByID(ctx, mailboxID)
	if err != nil {
		return 0, err
	}

	size := int64(len(content))
	if err := db.ValidateQuota(ctx, mailbox.AccountID, size); err != nil {
		metrics.MessagesDelivered.WithLabelValues("over_quota").Inc()
		return 0, err
	}

	hash := blake3.Sum256(content)
	uniqueID, err := newUniqueID(hash[:])
	if err != nil {
		return 0, err
	}
	if internalDate.IsZero() {
		internalDate = time.Now()
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var physID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO physmessage (size, internal_date, content, content_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, size, internalDate, content, hex.EncodeToString(hash[:])).Scan(&physID)
	if err != nil {
		metrics.MessagesDelivered.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%w: physmessage: %v", consts.ErrDBInsertFailed, err)
	}

	var messageID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (mailbox_id, physmessage_id, status, unique_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, mailboxID, physID, consts.StatusNew, uniqueID).Scan(&messageID)
	if err != nil {
		metrics.MessagesDelivered.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%w: message: %v", consts.ErrDBInsertFailed, err)
	}

	if err := db.AddQuota(ctx, tx, mailbox.AccountID, size); err != nil {
		return 0, err
	}
	if err := bumpSeq(ctx, tx, mailboxID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.MessagesDelivered.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	metrics.MessagesDelivered.WithLabelValues("success").Inc()
	return messageID, nil
}

// CopyMessage copies a message into another mailbox, sharing the
// physmessage row. The destination owner's ledger grows by the shared
// size.
func (db *Database) CopyMessage(ctx context.Context, messageID, destMailboxID int64) (int64, error) {
	src, err := db.GetMessage(ctx, messageID)
	if err != nil {
		return 0, err
	}
	dest, err := db.GetMailboxByID(ctx, destMailboxID)
	if err != nil {
		return 0, err
	}
	if err := db.ValidateQuota(ctx, dest.AccountID, src.Size); err != nil {
		return 0, err
	}

	var contentHash string
	err = db.TimedQueryRow(ctx, "physmessage_hash", `
		SELECT content_hash FROM physmessage WHERE id = $1
	`, src.PhysMessageID).Scan(&contentHash)
	if err != nil {
		return 0, fmt.Errorf("failed to read physmessage: %w", err)
	}
	hashBytes, err := hex.DecodeString(contentHash)
	if err != nil || len(hashBytes) < 12 {
		return 0, fmt.Errorf("corrupt content hash on physmessage %d", src.PhysMessageID)
	}
	uniqueID, err := newUniqueID(hashBytes)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (mailbox_id, physmessage_id, status, unique_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, destMailboxID, src.PhysMessageID, consts.StatusNew, uniqueID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%w: message copy: %v", consts.ErrDBInsertFailed, err)
	}

	if err := db.AddQuota(ctx, tx, dest.AccountID, src.Size); err != nil {
		return 0, err
	}
	if err := bumpSeq(ctx, tx, destMailboxID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	return newID, nil
}

// GetMessage fetches one message row with its size.
func (db *Database) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	var m Message
	err := db.TimedQueryRow(ctx, "message_by_id", `
		SELECT m.id, m.mailbox_id, m.physmessage_id, m.status, p.size, m.unique_id, p.internal_date
		FROM messages m
		JOIN physmessage p ON p.id = m.physmessage_id
		WHERE m.id = $1
	`, messageID).Scan(&m.ID, &m.MailboxID, &m.PhysMessageID, &m.Status, &m.Size, &m.UniqueID, &m.InternalDate)
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return nil, consts.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message %d: %w", messageID, err)
	}
	return &m, nil
}

// ListPOP3Messages loads the messages a fresh POP3 session sees: every
// message in the mailbox still below the deleted threshold, ordered by
// persistent id ascending. The slice order defines the session
// ordinals.
func (db *Database) ListPOP3Messages(ctx context.Context, mailboxID int64) ([]Message, error) {
	rows, err := db.TimedQuery(ctx, "pop3_message_list", `
		SELECT m.id, m.mailbox_id, m.physmessage_id, m.status, p.size, m.unique_id, p.internal_date
		FROM messages m
		JOIN physmessage p ON p.id = m.physmessage_id
		WHERE m.mailbox_id = $1 AND m.status < $2
		ORDER BY m.id ASC
	`, mailboxID, consts.StatusDelete)
	if err != nil {
		return nil, fmt.Errorf("failed to load message view: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		err := rows.Scan(&m.ID, &m.MailboxID, &m.PhysMessageID, &m.Status, &m.Size, &m.UniqueID, &m.InternalDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message view load failed: %w", err)
	}
	return result, nil
}

// UpdateMessageStatus writes a new status for a message, but never
// over a status that already crossed the deleted threshold: a
// concurrent actor's more final state wins. Returns whether a row was
// written.
func (db *Database) UpdateMessageStatus(ctx context.Context, messageID int64, status consts.MessageStatus) (bool, error) {
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE messages SET status = $2
		WHERE id = $1 AND status < $3
	`, messageID, status, consts.StatusDelete)
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetMessageContent streams back the stored content of one message.
func (db *Database) GetMessageContent(ctx context.Context, messageID int64) ([]byte, error) {
	var content []byte
	err := db.TimedQueryRow(ctx, "message_content", `
		SELECT p.content
		FROM messages m
		JOIN physmessage p ON p.id = m.physmessage_id
		WHERE m.id = $1
	`, messageID).Scan(&content)
	if err != nil {
		if errors.Is(mapDBError(err), consts.ErrDBNotFound) {
			return nil, consts.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to load message content: %w", err)
	}
	return content, nil
}

// SetMessageFlags updates the flag bits and replaces the keyword set
// for a message in one transaction.
func (db *Database) SetMessageFlags(ctx context.Context, messageID int64, seen, answered, deleted, flagged, draft bool, keywords []string) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET seen_flag = $2, answered_flag = $3, deleted_flag = $4,
		    flagged_flag = $5, draft_flag = $6, recent_flag = FALSE
		WHERE id = $1
	`, messageID, seen, answered, deleted, flagged, draft)
	if err != nil {
		return fmt.Errorf("failed to update message flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM message_keywords WHERE message_id = $1`, messageID); err != nil {
		return fmt.Errorf("failed to clear keywords: %w", err)
	}
	for _, keyword := range keywords {
		_, err := tx.Exec(ctx, `
			INSERT INTO message_keywords (message_id, keyword)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, messageID, keyword)
		if err != nil {
			return fmt.Errorf("failed to store keyword %q: %w", keyword, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	return nil
}
