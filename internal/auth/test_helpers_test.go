package auth

import (
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			failed_login_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE INDEX idx_accounts_role ON accounts(role);

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			family_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			used_at TEXT,
			revoked_at TEXT,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_refresh_tokens_account ON refresh_tokens(account_id);
		CREATE INDEX idx_refresh_tokens_family ON refresh_tokens(family_id);
		CREATE INDEX idx_refresh_tokens_expires ON refresh_tokens(expires_at);
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying auth migration: %v", err)
	}

	return db
}

// fakeClock is a manually advanced Clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testSecret is a 32+ character signing secret for codec tests.
const testSecret = "test-secret-key-0123456789abcdefghij"

// testCodec creates a TokenCodec with default TTLs on the given clock.
func testCodec(clock Clock) *TokenCodec {
	return NewTokenCodec(CodecConfig{
		Secret:   testSecret,
		Issuer:   "wayfarer-test",
		Audience: "wayfarer-app",
	}, clock)
}

// testService wires a full Service over a fresh test database.
func testService(t *testing.T, clock Clock) (*Service, *SQLiteAccountRepository, *SQLiteTokenRepository) {
	t.Helper()

	db := testDB(t)
	accounts := NewAccountRepository(db)
	tokens := NewTokenRepository(db)
	lockout := NewLockout(accounts, LockoutConfig{}, clock)

	svc, err := NewService(accounts, tokens, testCodec(clock), lockout, clock, nil)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return svc, accounts, tokens
}

// seedTestAccount inserts an account with a hashed password and returns it.
func seedTestAccount(t *testing.T, accounts *SQLiteAccountRepository, email, password string, role Role) *Account {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	account := &Account{
		Email:        email,
		FullName:     "Test Account",
		PasswordHash: hash,
		Role:         role,
	}
	if err := accounts.Create(t.Context(), account); err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	return account
}
