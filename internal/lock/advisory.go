// Package lock provides MySQL advisory locks that keep a replication batch
// from being submitted twice at the same time.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout is returned when another instance holds the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ErrPoolTooSmall is returned when holding the lock would leave no
// connection for the work it guards.
var ErrPoolTooSmall = errors.New("connection pool too small to hold a lock")

// Timeout values for lock acquisition, in seconds.
const (
	// TimeoutImmediate returns at once if the lock is taken.
	TimeoutImmediate = 0
	// TimeoutShort fails fast on duplicate submissions.
	TimeoutShort = 1
	// TimeoutInfinite waits until the lock is free. MySQL treats negative values as infinite.
	TimeoutInfinite = -1
)

// AdvisoryLock is a named MySQL lock taken with GET_LOCK().
// GET_LOCK is scoped to a session, so the lock pins one connection from the
// pool from acquisition until release.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
}

// NewAdvisoryLock creates a lock with the given name. Nothing is acquired yet.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{db: db, lockName: lockName}
}

// AcquireLock tries to take the lock, waiting up to timeoutSeconds.
// It returns false without error when the wait timed out.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.conn != nil {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for lock %q: %w", a.lockName, err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return true, nil
	case 0:
		conn.Close()
		return false, nil
	default:
		conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the lock and returns its connection to the pool.
// It returns false when the lock was not held.
//
// MySQL RELEASE_LOCK() return values:
//   - 1: Lock was released successfully
//   - 0: Lock was not established by this session
//   - NULL: Named lock did not exist
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if a.conn == nil {
		return false, nil
	}
	conn := a.conn
	a.conn = nil
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}
	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.conn != nil
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// AcquireOrFail takes the lock or returns ErrLockTimeout.
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

// WithLock runs fn while holding the lock and always releases it afterwards.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	if err := a.AcquireOrFail(ctx, timeoutSeconds); err != nil {
		return err
	}

	defer func() {
		// Release on a fresh context so a cancelled ctx does not leak the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}

// GenerateReplicationLockName returns the lock name for replicating a source unit.
// Lock names follow the format "studyplan:replicate:{source}".
func GenerateReplicationLockName(source string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, source)

	name := "studyplan:replicate:" + sanitized
	// MySQL limits lock names to 64 characters.
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// NewReplicationLock creates the lock guarding replication of a source unit.
func NewReplicationLock(db *sql.DB, source string) *AdvisoryLock {
	return NewAdvisoryLock(db, GenerateReplicationLockName(source))
}

// WithReplicationLock runs fn while holding the replication lock of a source unit.
// The lock pins one connection, so fn must be able to use another one.
func WithReplicationLock(ctx context.Context, db *sql.DB, source string, timeoutSeconds int, fn func() error) error {
	if open := db.Stats().MaxOpenConnections; open == 1 {
		return fmt.Errorf("%w: max open connections is %d", ErrPoolTooSmall, open)
	}
	return NewReplicationLock(db, source).WithLock(ctx, timeoutSeconds, fn)
}
