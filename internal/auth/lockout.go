package auth

import (
	"context"
	"fmt"
	"time"
)

// Lockout defaults.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutConfig holds configuration for the failed-login lockout.
type LockoutConfig struct {
	// Threshold is the failure count that trips the lock.
	Threshold int

	// Duration is how long a tripped lock lasts.
	Duration time.Duration
}

// Lockout tracks failed login attempts per account and applies a timed
// lock once the threshold is reached. State lives on the accounts row, so
// the lock is enforced consistently across server instances and survives
// restarts. Counters are scoped per account: failures against one account
// never affect another.
type Lockout struct {
	accounts AccountRepository
	cfg      LockoutConfig
	clock    Clock
}

// NewLockout creates a lockout tracker backed by the account store.
// Zero config values fall back to 5 attempts / 15 minutes.
func NewLockout(accounts AccountRepository, cfg LockoutConfig, clock Clock) *Lockout {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Lockout{accounts: accounts, cfg: cfg, clock: clock}
}

// Check returns a *LockedError if the account is currently locked.
// It must run before any password verification so a locked account never
// pays for (or leaks timing from) a hashing operation. A lock timestamp in
// the past means the account is already unlocked.
func (l *Lockout) Check(account *Account) error {
	if account.LockedUntil == nil {
		return nil
	}

	now := l.clock.Now()
	if !account.LockedUntil.After(now) {
		return nil
	}

	return &LockedError{RetryAfterMinutes: remainingMinutes(*account.LockedUntil, now)}
}

// RecordFailure increments the account's failure counter and persists it.
// When the new count reaches the threshold it sets the lock and returns a
// *LockedError describing it; otherwise the returned lock error is nil and
// the caller surfaces the generic credential error.
func (l *Lockout) RecordFailure(ctx context.Context, account *Account) (*LockedError, error) {
	attempts := account.FailedLoginAttempts + 1

	var lockedUntil *time.Time
	if attempts >= l.cfg.Threshold {
		until := l.clock.Now().Add(l.cfg.Duration)
		lockedUntil = &until
	}

	if err := l.accounts.UpdateLoginState(ctx, account.ID, attempts, lockedUntil); err != nil {
		return nil, fmt.Errorf("recording login failure: %w", err)
	}

	account.FailedLoginAttempts = attempts
	account.LockedUntil = lockedUntil

	if lockedUntil == nil {
		return nil, nil
	}
	return &LockedError{
		RetryAfterMinutes: remainingMinutes(*lockedUntil, l.clock.Now()),
		Attempts:          attempts,
	}, nil
}

// Reset clears the failure counter and lock after a successful credential
// check. It skips the write when there is nothing to clear.
func (l *Lockout) Reset(ctx context.Context, account *Account) error {
	if account.FailedLoginAttempts == 0 && account.LockedUntil == nil {
		return nil
	}

	if err := l.accounts.UpdateLoginState(ctx, account.ID, 0, nil); err != nil {
		return fmt.Errorf("resetting login failures: %w", err)
	}

	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	return nil
}

// remainingMinutes computes ceil((lockedUntil - now) / 1 minute), floored
// at one minute so the message never tells a locked-out caller to wait
// zero minutes.
func remainingMinutes(lockedUntil, now time.Time) int {
	remaining := lockedUntil.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
