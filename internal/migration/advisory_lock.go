package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// advisoryLockKey is shared by every tallybook migrator.
const advisoryLockKey int64 = 7_310_442_018

var errMigrationLocked = errors.New("another migration process holds the advisory lock")

type unlockFunc func(ctx context.Context) error

// acquireAdvisoryLock pins one pooled connection for the lifetime of the
// lock, since postgres advisory locks belong to a session.
func acquireAdvisoryLock(ctx context.Context, db *sql.DB) (unlockFunc, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !locked {
		_ = conn.Close()
		return nil, errMigrationLocked
	}

	return func(unlockCtx context.Context) error {
		defer conn.Close()

		var released bool
		if err := conn.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1)", advisoryLockKey).Scan(&released); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		if !released {
			return errors.New("advisory lock was not held by this session")
		}
		return nil
	}, nil
}
