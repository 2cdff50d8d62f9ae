package audit

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			account_id TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE INDEX idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX idx_audit_logs_account ON audit_logs(account_id);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying audit schema: %v", err)
	}
	return db
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := t.Context()

	entry := &Entry{
		Action:    "login_success",
		AccountID: "acc-1",
		Source:    "auth",
		Details:   map[string]any{"role": "admin"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("Create() should generate an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("Create() should set CreatedAt")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total=%d entries=%d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != "login_success" || got.AccountID != "acc-1" || got.Source != "auth" {
		t.Errorf("entry = %+v, want login_success/acc-1/auth", got)
	}
	if got.Details["role"] != "admin" {
		t.Errorf("Details = %v, want role=admin", got.Details)
	}
}

func TestRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := t.Context()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	seed := []Entry{
		{Action: "login_success", AccountID: "acc-1", Source: "auth", CreatedAt: base},
		{Action: "login_failure", AccountID: "acc-1", Source: "auth", CreatedAt: base.Add(time.Minute)},
		{Action: "login_failure", AccountID: "acc-2", Source: "auth", CreatedAt: base.Add(2 * time.Minute)},
		{Action: "token_reuse", AccountID: "acc-2", Source: "auth", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	result, err := repo.List(ctx, Filter{Action: "login_failure"})
	if err != nil {
		t.Fatalf("List(action) error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("List(action=login_failure) total = %d, want 2", result.Total)
	}

	result, err = repo.List(ctx, Filter{AccountID: "acc-2"})
	if err != nil {
		t.Fatalf("List(account) error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("List(account=acc-2) total = %d, want 2", result.Total)
	}

	result, err = repo.List(ctx, Filter{Action: "login_failure", AccountID: "acc-2"})
	if err != nil {
		t.Fatalf("List(both) error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("List(both filters) total = %d, want 1", result.Total)
	}

	// Newest first.
	result, err = repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Entries[0].Action != "token_reuse" {
		t.Errorf("first entry = %q, want token_reuse (newest)", result.Entries[0].Action)
	}
}

func TestRepository_ListPagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := t.Context()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := &Entry{Action: "logout", Source: "auth", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Errorf("page size = %d, want 2", len(result.Entries))
	}
}

func TestTrail_RecordAuthEvent(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	trail := NewTrail(repo, nil)
	ctx := t.Context()

	trail.RecordAuthEvent(ctx, "account_locked", "acc-9", map[string]any{"failed_attempts": 5})

	result, err := repo.List(ctx, Filter{Action: "account_locked"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}
	if result.Entries[0].Source != "auth" {
		t.Errorf("Source = %q, want auth", result.Entries[0].Source)
	}
}
