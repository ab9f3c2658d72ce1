package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/logger"
	"github.com/harbormail/harbor/namespace"
)

// CreationSource tags who is asking for a mailbox to be created, which
// decides how strictly the hierarchy checks apply.
type CreationSource int

const (
	// SourceInteractive is a client-driven create, fully checked.
	SourceInteractive CreationSource = iota
	// SourceInternalTrusted is server-internal creation (initial
	// account setup, administration). It skips the no_inferiors and
	// create-right checks on existing ancestors.
	SourceInternalTrusted
	// SourceDeliveryRouting creates a missing delivery target.
	SourceDeliveryRouting
	// SourceDefaultFallback creates the fallback mailbox when routing
	// found no target.
	SourceDefaultFallback
)

func (s CreationSource) String() string {
	switch s {
	case SourceInternalTrusted:
		return "internal-trusted"
	case SourceDeliveryRouting:
		return "delivery-routing"
	case SourceDefaultFallback:
		return "default-fallback"
	default:
		return "interactive"
	}
}

// trusted creation bypasses ancestor ACL and no_inferiors checks.
func (s CreationSource) trusted() bool {
	return s == SourceInternalTrusted
}

// CreateMailboxWithParents creates the named mailbox and any missing
// ancestors, from root to leaf. Each level is created in its own
// transaction; a failure mid-path aborts the remaining levels but
// leaves the already created ones in place. Levels under #Public are
// owned by the reserved public identity and the requesting user is
// granted full rights on them.
func (db *Database) CreateMailboxWithParents(ctx context.Context, userID int64, fullName string, source CreationSource) error {
	simple, ns, ownerName := namespace.Split(fullName)
	simple = canonicalizeName(simple)
	if simple == "" || !namespace.ValidName(simple) {
		return consts.ErrMailboxInvalidName
	}

	ownerID, err := db.resolveOwner(ctx, userID, ns, ownerName)
	if err != nil {
		return err
	}

	// Creation is refused outright when the full name already exists.
	if _, err := db.findMailboxByOwner(ctx, ownerID, simple); err == nil {
		return consts.ErrMailboxAlreadyExists
	} else if !errors.Is(err, consts.ErrMailboxNotFound) {
		return err
	}

	levels, err := splitMailboxPath(simple)
	if err != nil {
		return err
	}

	effectiveOwner := ownerID
	grantRequester := false
	if ns == namespace.Public {
		publicID, err := db.PublicAccountID(ctx)
		if err != nil {
			return err
		}
		effectiveOwner = publicID
		grantRequester = true
	}

	for _, level := range levels {
		existing, err := db.findMailboxByOwner(ctx, effectiveOwner, level)
		switch {
		case err == nil:
			if source.trusted() {
				continue
			}
			if existing.NoInferiors {
				return fmt.Errorf("%q: %w", level, consts.ErrMailboxNoInferiors)
			}
			if err := db.RequireRight(ctx, userID, existing.ID, RightCreate); err != nil {
				return fmt.Errorf("%q: %w", level, err)
			}
		case errors.Is(err, consts.ErrMailboxNotFound):
			// Missing levels under another user's #Users hierarchy are
			// never materialized on a foreign owner's behalf.
			if ns == namespace.Users && effectiveOwner != userID && !source.trusted() {
				return fmt.Errorf("%q: %w", level, consts.ErrNoPermission)
			}
			if err := db.createLevel(ctx, userID, effectiveOwner, level, grantRequester); err != nil {
				return err
			}
			logger.Info("mailbox created", "name", level, "owner_id", effectiveOwner,
				"requested_by", userID, "source", source.String())
		default:
			return err
		}
	}
	return nil
}

// splitMailboxPath expands a simple name into its prefix levels, root
// first: "a/b/c" becomes ["a", "a/b", "a/b/c"]. An empty interior
// segment is invalid; a trailing separator truncates the path.
func splitMailboxPath(simple string) ([]string, error) {
	delim := string(consts.MailboxDelimiter)
	simple = strings.TrimSuffix(simple, delim)

	segments := strings.Split(simple, delim)
	levels := make([]string, 0, len(segments))
	for i, segment := range segments {
		if segment == "" {
			return nil, consts.ErrMailboxInvalidName
		}
		levels = append(levels, strings.Join(segments[:i+1], delim))
	}
	return levels, nil
}

// createLevel materializes one missing hierarchy level: the mailbox
// row, the owner's subscription marker and, for public-owned levels,
// the requester's full-rights grant. A unique violation means another
// session created the level concurrently and is treated as success.
func (db *Database) createLevel(ctx context.Context, userID, ownerID int64, name string, grantRequester bool) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var mailboxID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO mailboxes (account_id, name, permission)
		VALUES ($1, $2, $3)
		RETURNING id
	`, ownerID, name, PermissionReadWrite).Scan(&mailboxID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to create mailbox %q: %w", name, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (account_id, mailbox_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, ownerID, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to subscribe owner to %q: %w", name, err)
	}

	if grantRequester && userID != ownerID {
		_, err = tx.Exec(ctx, `
			INSERT INTO mailbox_acls (account_id, mailbox_id,
				lookup_flag, read_flag, seen_flag, write_flag, insert_flag,
				post_flag, create_flag, delete_flag, administer_flag)
			VALUES ($1, $2, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE)
			ON CONFLICT (account_id, mailbox_id) DO NOTHING
		`, userID, mailboxID)
		if err != nil {
			return fmt.Errorf("failed to grant creator rights on %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	return nil
}
