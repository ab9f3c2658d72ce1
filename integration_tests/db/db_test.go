//go:build integration

package db_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/db"
	"github.com/harbormail/harbor/integration_tests/common"
)

func accountID(t *testing.T, database *db.Database, name string) int64 {
	t.Helper()
	id, err := database.GetAccountIDByName(context.Background(), name)
	if err != nil {
		t.Fatalf("Failed to look up account %q: %v", name, err)
	}
	return id
}

func TestCreateMailboxWithParents(t *testing.T) {
	common.SkipIfDatabaseUnavailable(t)

	database := common.SetupTestDatabase(t)
	account := common.CreateTestAccount(t, database)
	ctx := context.Background()
	userID := accountID(t, database, account.Name)

	if err := database.CreateMailboxWithParents(ctx, userID, "Projects/2026/Reports", db.SourceInteractive); err != nil {
		t.Fatalf("Failed to create mailbox path: %v", err)
	}

	// Every prefix level must exist, root first.
	for _, name := range []string{"Projects", "Projects/2026", "Projects/2026/Reports"} {
		if _, err := database.FindMailbox(ctx, userID, name); err != nil {
			t.Errorf("Level %q missing after create: %v", name, err)
		}
	}

	// Exactly the three levels were materialized, nothing extra.
	listed, err := database.ListMailboxes(ctx, userID, account.Name, false)
	if err != nil {
		t.Fatalf("Failed to list mailboxes: %v", err)
	}
	var created []string
	for _, lm := range listed {
		if lm.FullName == "Projects" || strings.HasPrefix(lm.FullName, "Projects/") {
			created = append(created, lm.FullName)
		}
	}
	if len(created) != 3 {
		t.Errorf("Expected 3 hierarchy levels, got %d: %v", len(created), created)
	}

	// A second create of the same full name is refused.
	err = database.CreateMailboxWithParents(ctx, userID, "Projects/2026/Reports", db.SourceInteractive)
	if !errors.Is(err, consts.ErrMailboxAlreadyExists) {
		t.Errorf("Expected ErrMailboxAlreadyExists on re-create, got %v", err)
	}
}

func TestCreateMailboxUnderForeignOwnerRefused(t *testing.T) {
	common.SkipIfDatabaseUnavailable(t)

	database := common.SetupTestDatabase(t)
	owner := common.CreateTestAccount(t, database)
	requester := common.CreateTestAccount(t, database)
	ctx := context.Background()
	ownerID := accountID(t, database, owner.Name)
	requesterID := accountID(t, database, requester.Name)

	foreign := fmt.Sprintf("#Users/%s/Planted", owner.Name)
	err := database.CreateMailboxWithParents(ctx, requesterID, foreign, db.SourceInteractive)
	if !errors.Is(err, consts.ErrNoPermission) {
		t.Fatalf("Expected ErrNoPermission creating %q, got %v", foreign, err)
	}

	// Nothing may have landed in the owner's hierarchy.
	if _, err := database.FindMailbox(ctx, ownerID, "Planted"); !errors.Is(err, consts.ErrMailboxNotFound) {
		t.Errorf("Refused create left a mailbox behind: %v", err)
	}

	// Trusted internal creation is still allowed across owners.
	if err := database.CreateMailboxWithParents(ctx, requesterID, foreign, db.SourceInternalTrusted); err != nil {
		t.Fatalf("Trusted create under foreign owner failed: %v", err)
	}
	if _, err := database.FindMailbox(ctx, ownerID, "Planted"); err != nil {
		t.Errorf("Trusted create did not materialize the mailbox: %v", err)
	}
}

func TestQuotaAccounting(t *testing.T) {
	common.SkipIfDatabaseUnavailable(t)

	database := common.SetupTestDatabase(t)
	account := common.CreateTestAccount(t, database)
	ctx := context.Background()
	userID := accountID(t, database, account.Name)

	if err := database.CreateMailboxWithParents(ctx, userID, consts.MailboxInbox, db.SourceInternalTrusted); err != nil {
		t.Fatalf("Failed to create INBOX: %v", err)
	}
	mbox, err := database.FindMailbox(ctx, userID, consts.MailboxInbox)
	if err != nil {
		t.Fatalf("Failed to find INBOX: %v", err)
	}

	content := []byte("From: sender@example.com\r\nSubject: quota\r\n\r\nbody\r\n")
	size := int64(len(content))
	const count = 3
	for i := 0; i < count; i++ {
		if _, err := database.InsertMessage(ctx, mbox.ID, content, time.Now()); err != nil {
			t.Fatalf("Failed to insert message %d: %v", i, err)
		}
	}

	cur, _, err := database.GetQuotaUsage(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to read quota usage: %v", err)
	}
	if cur != count*size {
		t.Errorf("Expected usage %d after %d inserts of %d bytes, got %d", count*size, count, size, cur)
	}

	// Force the counter to drift, then rebuild back to the aggregate.
	if _, err := database.GetWritePool().Exec(ctx,
		"UPDATE accounts SET curmail_size = curmail_size + 12345 WHERE id = $1", userID); err != nil {
		t.Fatalf("Failed to inject drift: %v", err)
	}
	if err := database.RebuildQuota(ctx, userID); err != nil {
		t.Fatalf("Failed to rebuild quota: %v", err)
	}
	cur, _, err = database.GetQuotaUsage(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to read quota usage after rebuild: %v", err)
	}
	if cur != count*size {
		t.Errorf("Rebuild did not restore exact usage: expected %d, got %d", count*size, cur)
	}

	// The bulk pass finds and corrects the drifted row too.
	if _, err := database.GetWritePool().Exec(ctx,
		"UPDATE accounts SET curmail_size = 1 WHERE id = $1", userID); err != nil {
		t.Fatalf("Failed to inject drift: %v", err)
	}
	corrected, err := database.RebuildAllQuotas(ctx)
	if err != nil {
		t.Fatalf("Failed to rebuild all quotas: %v", err)
	}
	if corrected < 1 {
		t.Errorf("Expected at least one corrected account, got %d", corrected)
	}
	cur, _, err = database.GetQuotaUsage(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to read quota usage after bulk rebuild: %v", err)
	}
	if cur != count*size {
		t.Errorf("Bulk rebuild did not restore exact usage: expected %d, got %d", count*size, cur)
	}
}

func TestQuotaDeliveryAccountExempt(t *testing.T) {
	common.SkipIfDatabaseUnavailable(t)

	database := common.SetupTestDatabase(t)
	ctx := context.Background()

	deliveryID, err := database.DeliveryAccountID(ctx)
	if err != nil {
		t.Fatalf("Failed to resolve delivery account: %v", err)
	}

	tx, err := database.BeginTx(ctx)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	if err := database.AddQuota(ctx, tx, deliveryID, 4096); err != nil {
		tx.Rollback(ctx)
		t.Fatalf("AddQuota on delivery account failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	cur, _, err := database.GetQuotaUsage(ctx, deliveryID)
	if err != nil {
		t.Fatalf("Failed to read delivery account usage: %v", err)
	}
	if cur != 0 {
		t.Errorf("Delivery account counter moved: expected 0, got %d", cur)
	}
}

func TestACLRights(t *testing.T) {
	common.SkipIfDatabaseUnavailable(t)

	database := common.SetupTestDatabase(t)
	owner := common.CreateTestAccount(t, database)
	other := common.CreateTestAccount(t, database)
	third := common.CreateTestAccount(t, database)
	ctx := context.Background()
	ownerID := accountID(t, database, owner.Name)
	otherID := accountID(t, database, other.Name)
	thirdID := accountID(t, database, third.Name)

	if err := database.CreateMailboxWithParents(ctx, ownerID, "Shared", db.SourceInteractive); err != nil {
		t.Fatalf("Failed to create mailbox: %v", err)
	}
	mbox, err := database.FindMailbox(ctx, ownerID, "Shared")
	if err != nil {
		t.Fatalf("Failed to find mailbox: %v", err)
	}

	// The owner holds every right without any ACL row.
	for _, right := range db.AllRights {
		held, err := database.HasRight(ctx, ownerID, mbox.ID, right)
		if err != nil {
			t.Fatalf("HasRight(%s) failed for owner: %v", right, err)
		}
		if !held {
			t.Errorf("Owner missing implicit right %s", right)
		}
	}

	// Everyone else starts with nothing.
	held, err := database.HasRight(ctx, otherID, mbox.ID, db.RightRead)
	if err != nil {
		t.Fatalf("HasRight failed: %v", err)
	}
	if held {
		t.Error("Non-owner holds read right without a grant")
	}
	if err := database.RequireRight(ctx, otherID, mbox.ID, db.RightRead); !errors.Is(err, consts.ErrNoPermission) {
		t.Errorf("Expected ErrNoPermission without a grant, got %v", err)
	}

	// An explicit grant opens exactly the granted right.
	if err := database.SetRight(ctx, otherID, mbox.ID, db.RightRead, true); err != nil {
		t.Fatalf("Failed to grant read right: %v", err)
	}
	if err := database.RequireRight(ctx, otherID, mbox.ID, db.RightRead); err != nil {
		t.Errorf("Granted right still refused: %v", err)
	}
	held, err = database.HasRight(ctx, otherID, mbox.ID, db.RightDelete)
	if err != nil {
		t.Fatalf("HasRight failed: %v", err)
	}
	if held {
		t.Error("Read grant leaked into the delete right")
	}

	// Revocation closes it again.
	if err := database.SetRight(ctx, otherID, mbox.ID, db.RightRead, false); err != nil {
		t.Fatalf("Failed to revoke read right: %v", err)
	}
	if err := database.RequireRight(ctx, otherID, mbox.ID, db.RightRead); !errors.Is(err, consts.ErrNoPermission) {
		t.Errorf("Expected ErrNoPermission after revoke, got %v", err)
	}

	// An "anyone" grant reaches accounts with no row of their own.
	anyoneID, err := database.AnyoneAccountID(ctx)
	if err != nil {
		t.Fatalf("Failed to resolve anyone account: %v", err)
	}
	if err := database.SetRight(ctx, anyoneID, mbox.ID, db.RightLookup, true); err != nil {
		t.Fatalf("Failed to grant anyone lookup: %v", err)
	}
	held, err = database.HasRight(ctx, thirdID, mbox.ID, db.RightLookup)
	if err != nil {
		t.Fatalf("HasRight failed: %v", err)
	}
	if !held {
		t.Error("Anyone grant did not extend to a third account")
	}
}

func TestStoredMessageLineEndings(t *testing.T) {
	common.SkipIfDatabaseUnavailable(t)

	database := common.SetupTestDatabase(t)
	account := common.CreateTestAccount(t, database)
	ctx := context.Background()
	userID := accountID(t, database, account.Name)

	if err := database.CreateMailboxWithParents(ctx, userID, consts.MailboxInbox, db.SourceInternalTrusted); err != nil {
		t.Fatalf("Failed to create INBOX: %v", err)
	}
	mbox, err := database.FindMailbox(ctx, userID, consts.MailboxInbox)
	if err != nil {
		t.Fatalf("Failed to find INBOX: %v", err)
	}

	bareLF := []byte("Subject: endings\n\nline one\nline two\n")
	messageID, err := database.InsertMessage(ctx, mbox.ID, bareLF, time.Now())
	if err != nil {
		t.Fatalf("Failed to insert message: %v", err)
	}

	stored, err := database.GetMessageContent(ctx, messageID)
	if err != nil {
		t.Fatalf("Failed to read stored content: %v", err)
	}
	want := "Subject: endings\r\n\r\nline one\r\nline two\r\n"
	if string(stored) != want {
		t.Errorf("Stored content not CRLF-normalized:\ngot  %q\nwant %q", stored, want)
	}
}
