package pawn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	// writerLockKey is the Postgres advisory lock key ("pawn").
	writerLockKey int64 = 0x7061776e
	// writerLockName is the MySQL named lock.
	writerLockName = "pawnshop.registry"
)

// ErrWriterBusy is returned when another process already owns the registry.
var ErrWriterBusy = errors.New("registry is owned by another process; fund the pool through the running service (POST /pool/fund)")

// WriterLock is a session-level lock held on a dedicated connection for as
// long as one process owns the registry. The zero value holds nothing.
type WriterLock struct {
	conn    *bun.Conn
	release string
	arg     any
}

// AcquireWriter takes the registry writer lock without waiting.
func (r *Repository) AcquireWriter(ctx context.Context) (*WriterLock, error) {
	ctx, span := repoTracer.Start(ctx, "PawnRepository.AcquireWriter")
	defer span.End()

	var acquire, release string
	var arg any
	switch r.writer.Dialect().Name() {
	case dialect.PG:
		acquire, release, arg = "SELECT pg_try_advisory_lock(?)", "SELECT pg_advisory_unlock(?)", writerLockKey
	case dialect.MySQL:
		acquire, release, arg = "SELECT GET_LOCK(?, 0)", "SELECT RELEASE_LOCK(?)", writerLockName
	default:
		// Embedded databases are opened by a single process.
		return &WriterLock{}, nil
	}

	conn, err := r.writer.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("writer lock connection: %w", err)
	}
	var got sql.NullBool
	if err := conn.QueryRowContext(ctx, acquire, arg).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !got.Valid || !got.Bool {
		_ = conn.Close()
		return nil, ErrWriterBusy
	}
	return &WriterLock{conn: &conn, release: release, arg: arg}, nil
}

// Release frees the lock and returns its connection to the pool.
func (l *WriterLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	_, err := conn.ExecContext(ctx, l.release, l.arg)
	return errors.Join(err, conn.Close())
}
