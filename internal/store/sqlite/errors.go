package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the kinds named in the error handling design. The
// queue and CLI layers classify failures with errors.Is against these.
var (
	ErrNotFound         = errors.New("not found")
	ErrAmbiguous        = errors.New("ambiguous reference")
	ErrCycle            = errors.New("dependency cycle detected")
	ErrConflict         = errors.New("conflict")
	ErrStorageBusy      = errors.New("storage busy")
	ErrStorageIntegrity = errors.New("storage integrity violation")
	ErrStorageIO        = errors.New("storage io error")
)

// wrapDBError wraps a database error with operation context, mapping
// driver-level conditions onto the sentinel kinds above. The ncruces
// driver surfaces SQLite error text rather than a typed error the way
// mattn/go-sqlite3 does, so classification matches on message content —
// the same approach the corpus uses to stay independent of the driver's
// concrete error type.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "database table is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return fmt.Errorf("%s: %w", op, ErrStorageBusy)
	case strings.Contains(msg, "UNIQUE constraint"), strings.Contains(msg, "CHECK constraint"), strings.Contains(msg, "FOREIGN KEY constraint"):
		return fmt.Errorf("%s: %w", op, ErrStorageIntegrity)
	case strings.Contains(msg, "disk I/O error"), strings.Contains(msg, "unable to open database file"), strings.Contains(msg, "file is not a database"):
		return fmt.Errorf("%s: %w", op, ErrStorageIO)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapDBErrorf(err error, format string, args ...interface{}) error {
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func isConflict(err error) bool { return errors.Is(err, ErrConflict) }
func isCycle(err error) bool    { return errors.Is(err, ErrCycle) }
