package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/odgrim/abathur-swarm/internal/logging"
)

// withTx runs fn inside a single BEGIN IMMEDIATE ... COMMIT/ROLLBACK
// transaction on a dedicated connection. IMMEDIATE acquires the write
// lock up front rather than on first write, so two concurrent mutating
// calls fail fast with SQLITE_BUSY instead of deadlocking partway
// through a multi-statement sequence — the pattern every multi-step
// mutation in this package (enqueue, complete, fail, cancel, prune)
// depends on.
//
// Transient SQLITE_BUSY on BEGIN IMMEDIATE itself is retried with
// exponential backoff bounded by the store's busy timeout; once inside
// the transaction, any error rolls back and is returned wrapped. name
// identifies the operation on the span/debug log emitted around it, the
// same way the teacher wraps hook execution in a root span.
func (s *Store) withTx(ctx context.Context, name string, fn func(conn *sql.Conn) error) (retErr error) {
	ctx, span := logging.StartSpan(ctx, "abathur/store", name)
	defer func() { logging.EndSpan(span, retErr) }()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapDBError("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn); err != nil {
		return wrapDBError("begin transaction", err)
	}
	logging.Debugf("store: %s: transaction begun", name)

	committed := false
	defer func() {
		if !committed {
			// Use Background so rollback still runs if ctx was cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			logging.Debugf("store: %s: rolled back", name)
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit transaction", err)
	}
	committed = true
	logging.Debugf("store: %s: committed", name)
	return nil
}

func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(func(b *backoff.ExponentialBackOff) {
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			b.MaxElapsedTime = DefaultBusyTimeout
		}),
		20,
	), ctx)

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isTransientBusy(err) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, bo)
}

func isTransientBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		errors.Is(err, context.DeadlineExceeded)
}

// dbExecutor is the minimal surface withTx callbacks and their helpers
// need; satisfied by *sql.Conn and *sql.Tx.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ dbExecutor = (*sql.Conn)(nil)

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func inClause(ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
