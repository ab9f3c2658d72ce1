//go:build integration

// Package common provides shared setup helpers for integration tests.
// The tests expect a reachable PostgreSQL instance; see
// SkipIfDatabaseUnavailable for the connection defaults and the
// environment overrides.
package common

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/harbormail/harbor/config"
	"github.com/harbormail/harbor/db"
	"github.com/harbormail/harbor/server/pop3"
)

type TestServer struct {
	Address  string
	Server   *pop3.POP3Server
	Database *db.Database
	cleanup  func()
}

type TestAccount struct {
	Name     string
	Password string
}

func (ts *TestServer) Close() {
	if ts.cleanup != nil {
		ts.cleanup()
	}
}

func testDatabaseConfig() *config.DatabaseConfig {
	host := os.Getenv("HARBOR_TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	name := os.Getenv("HARBOR_TEST_DB_NAME")
	if name == "" {
		name = "harbor_test_db"
	}
	user := os.Getenv("HARBOR_TEST_DB_USER")
	if user == "" {
		user = "postgres"
	}

	return &config.DatabaseConfig{
		Debug: false,
		Write: &config.DatabaseEndpointConfig{
			Hosts:    []string{host},
			Port:     "5432",
			User:     user,
			Password: os.Getenv("HARBOR_TEST_DB_PASSWORD"),
			Name:     name,
		},
	}
}

func SetupTestDatabase(t *testing.T) *db.Database {
	t.Helper()

	database, err := db.NewDatabaseFromConfig(context.Background(), testDatabaseConfig())
	if err != nil {
		t.Fatalf("Failed to set up test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// CreateTestAccount creates an account whose name embeds the test name
// and a timestamp, so reruns never collide.
func CreateTestAccount(t *testing.T, database *db.Database) TestAccount {
	t.Helper()

	name := fmt.Sprintf("test-%s-%d@example.com",
		strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-")), time.Now().UnixNano())
	password := "s3cur3p4ss!"

	hashed, err := db.GenerateBcryptHash(password)
	if err != nil {
		t.Fatalf("Failed to hash test password: %v", err)
	}
	if _, err := database.CreateAccount(context.Background(), name, hashed, 0); err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return TestAccount{Name: name, Password: password}
}

func GetRandomAddress(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen on a random port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().String()
}

func SetupPOP3Server(t *testing.T) (*TestServer, TestAccount) {
	t.Helper()

	database := SetupTestDatabase(t)
	account := CreateTestAccount(t, database)
	address := GetRandomAddress(t)

	cfg := &config.POP3ServerConfig{
		Start: true,
		Addr:  address,
	}

	server, err := pop3.New(context.Background(), "localhost", database, cfg)
	if err != nil {
		t.Fatalf("Failed to create POP3 server: %v", err)
	}

	errChan := make(chan error, 1)
	go server.Start(errChan)

	// Wait for the listener to come up
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		server.Stop()
		select {
		case err := <-errChan:
			if err != nil {
				t.Logf("POP3 server error during shutdown: %v", err)
			}
		case <-time.After(1 * time.Second):
		}
	}

	return &TestServer{
		Address:  address,
		Server:   server,
		Database: database,
		cleanup:  cleanup,
	}, account
}

// DeliverTestMessage inserts a message into the account's INBOX the
// way the delivery path does.
func DeliverTestMessage(t *testing.T, database *db.Database, account TestAccount, subject, body string) int64 {
	t.Helper()

	ctx := context.Background()
	accountID, err := database.GetAccountIDByName(ctx, account.Name)
	if err != nil {
		t.Fatalf("Failed to look up test account: %v", err)
	}

	mbox, err := database.FindMailbox(ctx, accountID, "INBOX")
	if err != nil {
		t.Fatalf("Failed to find INBOX: %v", err)
	}

	raw := fmt.Sprintf("From: sender@example.com\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		account.Name, subject, body)
	messageID, err := database.InsertMessage(ctx, mbox.ID, []byte(raw), time.Now())
	if err != nil {
		t.Fatalf("Failed to deliver test message: %v", err)
	}
	return messageID
}

func SkipIfDatabaseUnavailable(t *testing.T) {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION_TESTS") == "1" {
		t.Skip("Integration tests disabled via SKIP_INTEGRATION_TESTS=1")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	database, err := db.NewDatabaseFromConfig(ctx, testDatabaseConfig())
	if err != nil {
		t.Skipf("Database unavailable, skipping integration test: %v", err)
	}
	database.Close()
}
