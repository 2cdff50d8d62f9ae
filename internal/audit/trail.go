package audit

import (
	"context"
	"log/slog"
)

// Trail adapts the repository to the auth service's audit sink.
// Write failures are logged and swallowed: the audit trail must never
// break an authentication flow.
type Trail struct {
	repo   Repository
	logger *slog.Logger
}

// NewTrail creates an audit trail writer over the given repository.
// A nil logger discards.
func NewTrail(repo Repository, logger *slog.Logger) *Trail {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Trail{repo: repo, logger: logger}
}

// RecordAuthEvent persists an authentication event.
func (t *Trail) RecordAuthEvent(ctx context.Context, action, accountID string, details map[string]any) {
	entry := &Entry{
		Action:    action,
		AccountID: accountID,
		Source:    "auth",
		Details:   details,
	}
	if err := t.repo.Create(ctx, entry); err != nil {
		t.logger.Error("writing audit entry", "action", action, "error", err)
	}
}
