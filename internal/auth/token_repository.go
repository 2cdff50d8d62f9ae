package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	MarkUsed(ctx context.Context, tokenHash string, usedAt time.Time) error
	Rotate(ctx context.Context, oldTokenHash string, successor *RefreshToken, usedAt time.Time) error
	RevokeFamily(ctx context.Context, familyID string, revokedAt time.Time) (int64, error)
	RevokeAllForAccount(ctx context.Context, accountID string, revokedAt time.Time) (int64, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored — only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const tokenColumns = "id, account_id, family_id, token_hash, used_at, revoked_at, expires_at, created_at"

// Create inserts a new refresh token record. The ID is generated if empty;
// existing rows are never overwritten (token_hash is unique).
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	prepareTokenRecord(token)

	if err := insertToken(ctx, r.db, token); err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// execer is the shared Exec surface of sql.DB and sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func prepareTokenRecord(token *RefreshToken) {
	if token.ID == "" {
		token.ID = "rt-" + uuid.NewString()[:16]
	}
	if token.FamilyID == "" {
		token.FamilyID = uuid.NewString()
	}
	token.CreatedAt = time.Now().UTC().Truncate(time.Second)
}

func insertToken(ctx context.Context, db execer, token *RefreshToken) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, account_id, family_id, token_hash, used_at, revoked_at, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.AccountID, token.FamilyID, token.TokenHash,
		nullTime(token.UsedAt), nullTime(token.RevokedAt),
		token.ExpiresAt.UTC().Format(time.RFC3339),
		token.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// GetByTokenHash retrieves a refresh token record by its SHA-256 hash.
// Returns ErrTokenInvalid if no record matches.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash = ?", tokenHash)

	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting refresh token by hash: %w", err)
	}
	return t, nil
}

// MarkUsed sets used_at on the matching unconsumed record. It is a no-op
// when no such record exists — callers must check existence first.
func (r *SQLiteTokenRepository) MarkUsed(ctx context.Context, tokenHash string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET used_at = ? WHERE token_hash = ? AND used_at IS NULL",
		usedAt.UTC().Format(time.RFC3339), tokenHash)
	if err != nil {
		return fmt.Errorf("marking token used: %w", err)
	}
	return nil
}

// Rotate atomically consumes the old token and inserts its successor in a
// single transaction. The guarded UPDATE (used_at IS NULL, revoked_at IS
// NULL) is the mutual exclusion the rotation state machine requires: if
// two concurrent refreshes race on the same token, exactly one guard
// succeeds and the loser gets ErrTokenReuse. Without this, both could pass
// the read-side reuse check and each mint a valid child.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldTokenHash string, successor *RefreshToken, usedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET used_at = ?
		 WHERE token_hash = ? AND used_at IS NULL AND revoked_at IS NULL`,
		usedAt.UTC().Format(time.RFC3339), oldTokenHash)
	if err != nil {
		return fmt.Errorf("consuming old token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrTokenReuse
	}

	prepareTokenRecord(successor)
	if err := insertToken(ctx, tx, successor); err != nil {
		return fmt.Errorf("creating successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// RevokeFamily sets revoked_at on every unrevoked record in a family and
// returns the number affected. This is the bulk response to a theft
// signal: the attacker's token, the legitimate client's token, and every
// descendant all die together.
func (r *SQLiteTokenRepository) RevokeFamily(ctx context.Context, familyID string, revokedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE family_id = ? AND revoked_at IS NULL",
		revokedAt.UTC().Format(time.RFC3339), familyID)
	if err != nil {
		return 0, fmt.Errorf("revoking token family: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// RevokeAllForAccount revokes every unrevoked token belonging to an
// account. Used for logout-everywhere.
func (r *SQLiteTokenRepository) RevokeAllForAccount(ctx context.Context, accountID string, revokedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE account_id = ? AND revoked_at IS NULL",
		revokedAt.UTC().Format(time.RFC3339), accountID)
	if err != nil {
		return 0, fmt.Errorf("revoking all tokens for account: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// ListActiveByAccount returns all consumable tokens for an account —
// not used, not revoked, not expired — newest first.
func (r *SQLiteTokenRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]RefreshToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tokenColumns+` FROM refresh_tokens
		 WHERE account_id = ? AND used_at IS NULL AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}

	if tokens == nil {
		tokens = []RefreshToken{}
	}
	return tokens, nil
}

// DeleteExpired removes tokens past their expiry, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// scanToken scans a refresh token from a row or rows cursor.
func scanToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var usedAt, revokedAt sql.NullString
	var expiresAt, createdAt string

	err := s.Scan(&t.ID, &t.AccountID, &t.FamilyID, &t.TokenHash,
		&usedAt, &revokedAt, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}

	if usedAt.Valid {
		ts, err := time.Parse(time.RFC3339, usedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing used_at: %w", err)
		}
		t.UsedAt = &ts
	}
	if revokedAt.Valid {
		ts, err := time.Parse(time.RFC3339, revokedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing revoked_at: %w", err)
		}
		t.RevokedAt = &ts
	}

	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}
