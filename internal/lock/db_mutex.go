package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// DBMutex is the baseline Mutex backed by a mutex_locks table.  A
// lock is one row keyed by resource name; inserting the row acquires,
// deleting it releases.  An expired row may be taken over in place,
// so a crashed holder only blocks the resource until its TTL lapses.
type DBMutex struct {
	db *sql.DB
}

// NewDBMutex returns a DBMutex using the provided database handle.
func NewDBMutex(db *sql.DB) *DBMutex { return &DBMutex{db: db} }

// Acquire inserts the lock row, or takes over an expired one.  The
// primary key on resource makes the insert race safe: exactly one
// contender succeeds, every other insert fails with a duplicate-key
// error and maps to ErrNotAcquired.
func (m *DBMutex) Acquire(ctx context.Context, resource string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	expires := time.Now().UTC().Add(ttl)

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO mutex_locks (resource, token, expires_at) VALUES (?, ?, ?)`,
		resource, token, expires)
	if err == nil {
		return token, nil
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != 1062 {
		return "", err
	}

	// Row exists: try to take over an expired holder.  The guard on
	// expires_at means a live lock is never stolen.
	res, err := m.db.ExecContext(ctx,
		`UPDATE mutex_locks SET token = ?, expires_at = ? WHERE resource = ? AND expires_at <= UTC_TIMESTAMP()`,
		token, expires, resource)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrNotAcquired
	}
	return token, nil
}

// Release deletes the lock row only when the token still matches, so
// a holder that lost the lock to TTL takeover cannot release the new
// holder's lock.  Releasing an already-released lock is a no-op.
func (m *DBMutex) Release(ctx context.Context, resource, token string) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM mutex_locks WHERE resource = ? AND token = ?`, resource, token)
	return err
}
