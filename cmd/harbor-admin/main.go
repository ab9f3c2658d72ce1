package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/harbormail/harbor/config"
	"github.com/harbormail/harbor/consts"
	"github.com/harbormail/harbor/db"
	"github.com/harbormail/harbor/helpers"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-account":
		handleCreateAccount()
	case "create-mailbox":
		handleCreateMailbox()
	case "delete-mailbox":
		handleDeleteMailbox()
	case "list-mailboxes":
		handleListMailboxes()
	case "deliver":
		handleDeliver()
	case "set-acl":
		handleSetACL()
	case "rebuild-quota":
		handleRebuildQuota()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: harbor-admin <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create-account   Create a new account")
	fmt.Println("  create-mailbox   Create a mailbox, including missing parents")
	fmt.Println("  delete-mailbox   Delete a mailbox")
	fmt.Println("  list-mailboxes   List an account's mailboxes")
	fmt.Println("  deliver          Deliver a message file into a mailbox")
	fmt.Println("  set-acl          Grant or revoke a mailbox right")
	fmt.Println("  rebuild-quota    Recompute quota usage from stored messages")
	fmt.Println()
	fmt.Println("Run 'harbor-admin <command> -h' for command options.")
}

// openDatabase loads the configuration and connects. Every subcommand
// goes through here so they all honor the same config file.
func openDatabase(ctx context.Context, configPath string) (*db.Database, error) {
	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(configPath, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return db.NewDatabaseFromConfig(ctx, &cfg.Database)
}

func handleCreateAccount() {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	name := fs.String("name", "", "Account name (required)")
	password := fs.String("password", "", "Account password (required)")
	scheme := fs.String("scheme", "bcrypt", "Password scheme: bcrypt, ssha512 or plain")
	maxSize := fs.Int64("max-size", 0, "Quota limit in bytes, 0 for unlimited")
	fs.Parse(os.Args[2:])

	if *name == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: -name and -password are required")
		fs.Usage()
		os.Exit(1)
	}

	var hashed string
	var err error
	switch *scheme {
	case "bcrypt":
		hashed, err = db.GenerateBcryptHash(*password)
	case "ssha512":
		hashed, err = db.GenerateSSHA512Hash(*password)
	case "plain":
		hashed = "{PLAIN}" + *password
	default:
		fatalf("Unknown password scheme %q", *scheme)
	}
	if err != nil {
		fatalf("Failed to hash password: %v", err)
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	accountID, err := database.CreateAccount(ctx, *name, hashed, *maxSize)
	if err != nil {
		fatalf("Failed to create account: %v", err)
	}
	fmt.Printf("Created account %s (id %d)\n", *name, accountID)
}

func handleCreateMailbox() {
	fs := flag.NewFlagSet("create-mailbox", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	account := fs.String("account", "", "Account name (required)")
	mailbox := fs.String("mailbox", "", "Mailbox path, e.g. Projects/2026 (required)")
	fs.Parse(os.Args[2:])

	if *account == "" || *mailbox == "" {
		fmt.Fprintln(os.Stderr, "Error: -account and -mailbox are required")
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	accountID, err := database.GetAccountIDByName(ctx, *account)
	if err != nil {
		fatalf("Failed to look up account %s: %v", *account, err)
	}

	err = database.CreateMailboxWithParents(ctx, accountID, *mailbox, db.SourceInteractive)
	if err != nil {
		fatalf("Failed to create mailbox: %v", err)
	}
	fmt.Printf("Created mailbox %s for %s\n", *mailbox, *account)
}

func handleDeleteMailbox() {
	fs := flag.NewFlagSet("delete-mailbox", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	account := fs.String("account", "", "Account name (required)")
	mailbox := fs.String("mailbox", "", "Mailbox path (required)")
	force := fs.Bool("force", false, "Delete even when the mailbox still holds messages")
	fs.Parse(os.Args[2:])

	if *account == "" || *mailbox == "" {
		fmt.Fprintln(os.Stderr, "Error: -account and -mailbox are required")
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	accountID, err := database.GetAccountIDByName(ctx, *account)
	if err != nil {
		fatalf("Failed to look up account %s: %v", *account, err)
	}

	mbox, err := database.FindMailbox(ctx, accountID, *mailbox)
	if err != nil {
		fatalf("Failed to find mailbox %s: %v", *mailbox, err)
	}

	if err := database.DeleteMailbox(ctx, accountID, mbox.ID, *force); err != nil {
		if errors.Is(err, consts.ErrMailboxNotEmpty) {
			fatalf("Mailbox %s is not empty, use -force to delete it anyway", *mailbox)
		}
		fatalf("Failed to delete mailbox: %v", err)
	}
	fmt.Printf("Deleted mailbox %s\n", *mailbox)
}

func handleListMailboxes() {
	fs := flag.NewFlagSet("list-mailboxes", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	account := fs.String("account", "", "Account name (required)")
	subscribed := fs.Bool("subscribed", false, "Only list subscribed mailboxes")
	fs.Parse(os.Args[2:])

	if *account == "" {
		fmt.Fprintln(os.Stderr, "Error: -account is required")
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	accountID, err := database.GetAccountIDByName(ctx, *account)
	if err != nil {
		fatalf("Failed to look up account %s: %v", *account, err)
	}

	mailboxes, err := database.ListMailboxes(ctx, accountID, *account, *subscribed)
	if err != nil {
		fatalf("Failed to list mailboxes: %v", err)
	}

	for _, m := range mailboxes {
		fmt.Println(m.FullName)
	}
}

func handleDeliver() {
	fs := flag.NewFlagSet("deliver", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	account := fs.String("account", "", "Recipient account name (required)")
	mailbox := fs.String("mailbox", consts.MailboxInbox, "Destination mailbox")
	file := fs.String("file", "", "Message file, - or empty for stdin")
	fs.Parse(os.Args[2:])

	if *account == "" {
		fmt.Fprintln(os.Stderr, "Error: -account is required")
		fs.Usage()
		os.Exit(1)
	}

	var raw []byte
	var err error
	if *file == "" || *file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*file)
	}
	if err != nil {
		fatalf("Failed to read message: %v", err)
	}
	if len(raw) == 0 {
		fatalf("Refusing to deliver an empty message")
	}

	internalDate := time.Now()
	subject := ""
	if env, err := helpers.ExtractEnvelope(raw); err == nil {
		internalDate = env.Date
		subject = env.Subject
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	accountID, err := database.GetAccountIDByName(ctx, *account)
	if err != nil {
		fatalf("Failed to look up account %s: %v", *account, err)
	}

	// Delivery creates the destination on demand, the way an
	// automated routing agent would.
	err = database.CreateMailboxWithParents(ctx, accountID, *mailbox, db.SourceDeliveryRouting)
	if err != nil && !errors.Is(err, consts.ErrMailboxAlreadyExists) {
		fatalf("Failed to prepare mailbox %s: %v", *mailbox, err)
	}

	mbox, err := database.FindMailbox(ctx, accountID, *mailbox)
	if err != nil {
		fatalf("Failed to find mailbox %s: %v", *mailbox, err)
	}

	messageID, err := database.InsertMessage(ctx, mbox.ID, raw, internalDate)
	if err != nil {
		if errors.Is(err, consts.ErrQuotaExceeded) {
			fatalf("Delivery rejected: account %s is over quota", *account)
		}
		fatalf("Failed to deliver message: %v", err)
	}
	fmt.Printf("Delivered message %d (%d bytes) to %s/%s %q\n", messageID, len(raw), *account, *mailbox, subject)
}

func handleSetACL() {
	fs := flag.NewFlagSet("set-acl", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	owner := fs.String("owner", "", "Mailbox owner account (required)")
	mailbox := fs.String("mailbox", "", "Mailbox path (required)")
	grantee := fs.String("grantee", "", "Account receiving the right, or 'anyone' (required)")
	right := fs.String("right", "", "Right to change: "+rightNames()+" (required)")
	revoke := fs.Bool("revoke", false, "Revoke the right instead of granting it")
	fs.Parse(os.Args[2:])

	if *owner == "" || *mailbox == "" || *grantee == "" || *right == "" {
		fmt.Fprintln(os.Stderr, "Error: -owner, -mailbox, -grantee and -right are required")
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ownerID, err := database.GetAccountIDByName(ctx, *owner)
	if err != nil {
		fatalf("Failed to look up owner %s: %v", *owner, err)
	}
	granteeID, err := database.GetAccountIDByName(ctx, *grantee)
	if err != nil {
		fatalf("Failed to look up grantee %s: %v", *grantee, err)
	}

	mbox, err := database.FindMailbox(ctx, ownerID, *mailbox)
	if err != nil {
		fatalf("Failed to find mailbox %s: %v", *mailbox, err)
	}

	err = database.SetRight(ctx, granteeID, mbox.ID, db.Right(*right), !*revoke)
	if err != nil {
		fatalf("Failed to update ACL: %v", err)
	}

	verb := "Granted"
	if *revoke {
		verb = "Revoked"
	}
	fmt.Printf("%s %s on %s/%s for %s\n", verb, *right, *owner, *mailbox, *grantee)
}

func handleRebuildQuota() {
	fs := flag.NewFlagSet("rebuild-quota", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	account := fs.String("account", "", "Account name, required unless -all is given")
	all := fs.Bool("all", false, "Rebuild every account and report drift")
	fs.Parse(os.Args[2:])

	if !*all && *account == "" {
		fmt.Fprintln(os.Stderr, "Error: provide -account or -all")
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if *all {
		corrected, err := database.RebuildAllQuotas(ctx)
		if err != nil {
			fatalf("Failed to rebuild quotas: %v", err)
		}
		fmt.Printf("Rebuilt quota usage, %d accounts had drifted\n", corrected)
		return
	}

	accountID, err := database.GetAccountIDByName(ctx, *account)
	if err != nil {
		fatalf("Failed to look up account %s: %v", *account, err)
	}
	if err := database.RebuildQuota(ctx, accountID); err != nil {
		fatalf("Failed to rebuild quota: %v", err)
	}

	cur, max, err := database.GetQuotaUsage(ctx, accountID)
	if err != nil {
		fatalf("Failed to read quota usage: %v", err)
	}
	limit := "unlimited"
	if max > 0 {
		limit = fmt.Sprintf("%d", max)
	}
	fmt.Printf("Quota for %s: %d bytes used, limit %s\n", *account, cur, limit)
}

func rightNames() string {
	names := make([]string, 0, len(db.AllRights))
	for _, r := range db.AllRights {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
