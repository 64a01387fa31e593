// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// services to distinguish between different failure scenarios and map
// expected business failures to typed results instead of opaque
// database errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a referenced booking, hold or entry
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update cannot proceed
// because of conflicting state, such as a second HELD row for a seat
// or a reused idempotency key.  The database constraint, not an
// application flag, is the arbiter of the race.
var ErrConflict = errors.New("conflict")

// ErrStale is returned by status-guarded updates when the row has
// already been transitioned by another actor.  Callers that require
// idempotency treat this as "nothing to do".
var ErrStale = errors.New("stale state")

// isDuplicateKey reports whether the error is a MySQL duplicate-entry
// violation (error 1062), which the hold and ledger repositories rely
// on to resolve races between concurrent inserters.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
