// Package lock provides advisory locking around import sessions.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/gorowtree/internal/sqlutil"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	TimeoutImmediate = 0
	TimeoutShort     = 1
	TimeoutMedium    = 10
	TimeoutLong      = 60
)

// Querier runs the lock statements. Advisory locks belong to the database
// session, so production callers pass a *sql.Conn pinned for the whole import.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AdvisoryLock is a named database lock: GET_LOCK() on MySQL,
// pg_try_advisory_lock() on PostgreSQL. It is released by ReleaseLock or
// when the session ends.
type AdvisoryLock struct {
	db       Querier
	dialect  sqlutil.Dialect
	lockName string
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(db Querier, dialect sqlutil.Dialect, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		dialect:  dialect,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the lock, waiting up to timeoutSeconds
// where the database supports waiting. Returns false when another session
// holds it.
//
// Return values of the lock query:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}

	query, args := a.dialect.LockQuery(a.lockName, timeoutSeconds)
	var result sql.NullInt64
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", a.lockName, err)
	}

	if !result.Valid {
		return false, fmt.Errorf("lock query returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected lock query result: %d", result.Int64)
	}
}

// ReleaseLock releases the lock. Returns false if the lock was not held.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	query, args := a.dialect.UnlockQuery(a.lockName)
	var result sql.NullInt64
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to release lock %q: %w", a.lockName, err)
	}

	a.held = false
	if !result.Valid {
		return false, fmt.Errorf("unlock query returned NULL for lock %q (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// AcquireOrFail acquires the lock or returns ErrLockTimeout.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context, timeoutSeconds int) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// WithLock runs fn while holding the lock and releases it afterwards, even
// when fn panics.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	if err := a.AcquireOrFail(ctx, timeoutSeconds); err != nil {
		return err
	}

	defer func() {
		// fresh context: ctx may already be canceled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}

// ImportLockName returns the lock name guarding imports into database.
// Example: ImportLockName("library") -> "gorowtree:import:library"
func ImportLockName(database string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, database)
	return "gorowtree:import:" + sanitized
}

// NewImportLock creates the lock guarding imports into database.
func NewImportLock(db Querier, dialect sqlutil.Dialect, database string) *AdvisoryLock {
	return NewAdvisoryLock(db, dialect, ImportLockName(database))
}
