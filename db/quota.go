package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/logger"
	"github.com/harbormail/harbor/pkg/metrics"
)

// The quota ledger keeps curmail_size as a running counter instead of
// recomputing the aggregate on every delivery. Increments and
// decrements ride along the transactions that add or remove messages;
// Rebuild* recomputes the exact value when the counter may have
// drifted.

// quotaExempt reports whether ledger calls for the account are no-ops.
// The reserved delivery identity never participates in accounting.
func (db *Database) quotaExempt(ctx context.Context, accountID int64) (bool, error) {
	deliveryID, err := db.DeliveryAccountID(ctx)
	if err != nil {
		return false, err
	}
	return accountID == deliveryID, nil
}

// GetQuotaUsage returns the stored running total and the limit for an
// account. A zero limit means unlimited.
func (db *Database) GetQuotaUsage(ctx context.Context, accountID int64) (cur int64, max int64, err error) {
	err = db.TimedQueryRow(ctx, "quota_usage", `
		SELECT curmail_size, maxmail_size FROM accounts WHERE id = $1
	`, accountID).Scan(&cur, &max)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read quota usage: %w", err)
	}
	return cur, max, nil
}

// ValidateQuota checks whether an incoming message of the given size
// fits under the account's limit. The check is a soft limit: it is not
// atomic with the insert that follows, which is acceptable because
// concurrent delivery to one account is rare in the target deployment.
func (db *Database) ValidateQuota(ctx context.Context, accountID int64, incomingSize int64) error {
	exempt, err := db.quotaExempt(ctx, accountID)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}

	cur, max, err := db.GetQuotaUsage(ctx, accountID)
	if err != nil {
		return err
	}
	if max == 0 {
		return nil
	}
	if cur+incomingSize > max {
		metrics.QuotaExceededTotal.Inc()
		return fmt.Errorf("%w: %d + %d exceeds %d", consts.ErrQuotaExceeded, cur, incomingSize, max)
	}
	return nil
}

// AddQuota increments the running counter inside the caller's
// transaction so the ledger moves together with the message insert.
func (db *Database) AddQuota(ctx context.Context, tx pgx.Tx, accountID int64, size int64) error {
	return db.adjustQuota(ctx, tx, accountID, size)
}

// SubtractQuota decrements the running counter inside the caller's
// transaction. The counter is clamped at zero against drift.
func (db *Database) SubtractQuota(ctx context.Context, tx pgx.Tx, accountID int64, size int64) error {
	return db.adjustQuota(ctx, tx, accountID, -size)
}

func (db *Database) adjustQuota(ctx context.Context, tx pgx.Tx, accountID int64, delta int64) error {
	exempt, err := db.quotaExempt(ctx, accountID)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET curmail_size = GREATEST(curmail_size + $2, 0)
		WHERE id = $1
	`, accountID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust quota by %d: %w", delta, err)
	}
	return nil
}

// RebuildQuota recomputes the exact total for one account from the
// non-deleted messages it owns and overwrites the stored counter.
func (db *Database) RebuildQuota(ctx context.Context, accountID int64) error {
	exempt, err := db.quotaExempt(ctx, accountID)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}

	err = db.TimedExec(ctx, "quota_rebuild", `
		UPDATE accounts SET curmail_size = (
			SELECT COALESCE(SUM(p.size), 0)
			FROM messages m
			JOIN physmessage p ON p.id = m.physmessage_id
			JOIN mailboxes b ON b.id = m.mailbox_id
			WHERE b.account_id = accounts.id AND m.status < $2
		)
		WHERE id = $1
	`, accountID, consts.StatusDelete)
	if err != nil {
		metrics.QuotaRebuildsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to rebuild quota for account %d: %w", accountID, err)
	}
	metrics.QuotaRebuildsTotal.WithLabelValues("success").Inc()
	return nil
}

// RebuildAllQuotas recomputes totals for every account whose stored
// counter has drifted from the true aggregate, writing only the
// drifted rows. It returns the number of accounts corrected.
func (db *Database) RebuildAllQuotas(ctx context.Context) (int, error) {
	deliveryID, err := db.DeliveryAccountID(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := db.TimedQuery(ctx, "quota_rebuild_all_scan", `
		SELECT a.id, a.curmail_size, COALESCE(SUM(p.size), 0) AS actual
		FROM accounts a
		LEFT JOIN mailboxes b ON b.account_id = a.id
		LEFT JOIN messages m ON m.mailbox_id = b.id AND m.status < $1
		LEFT JOIN physmessage p ON p.id = m.physmessage_id
		WHERE a.id != $2
		GROUP BY a.id, a.curmail_size
		HAVING a.curmail_size != COALESCE(SUM(p.size), 0)
	`, consts.StatusDelete, deliveryID)
	if err != nil {
		metrics.QuotaRebuildsTotal.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("failed to scan for quota drift: %w", err)
	}
	defer rows.Close()

	type drifted struct {
		accountID int64
		stored    int64
		actual    int64
	}
	var pending []drifted
	for rows.Next() {
		var d drifted
		if err := rows.Scan(&d.accountID, &d.stored, &d.actual); err != nil {
			return 0, fmt.Errorf("failed to scan drifted account: %w", err)
		}
		pending = append(pending, d)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("quota drift scan failed: %w", err)
	}

	for _, d := range pending {
		logger.Warn("quota drift detected", "account_id", d.accountID,
			"stored", d.stored, "actual", d.actual)
		err := db.TimedExec(ctx, "quota_rebuild_all_fix", `
			UPDATE accounts SET curmail_size = $2 WHERE id = $1
		`, d.accountID, d.actual)
		if err != nil {
			metrics.QuotaRebuildsTotal.WithLabelValues("failure").Inc()
			return 0, fmt.Errorf("failed to correct quota for account %d: %w", d.accountID, err)
		}
	}

	metrics.QuotaRebuildsTotal.WithLabelValues("success").Inc()
	return len(pending), nil
}
