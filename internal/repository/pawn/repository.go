package pawn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/pawnshop/internal/database"
	"github.com/Additional-Code/pawnshop/internal/entity"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/pawnshop/repository/pawn")

var (
	// ErrStaleWriter means the stored pool version moved past the version the
	// changeset was staged on, i.e. another registry committed in between.
	ErrStaleWriter = errors.New("pawn pool was changed by another writer")
	// ErrDuplicateTransfer means a deposit movement reused a journaled transfer id.
	ErrDuplicateTransfer = errors.New("transfer already journaled")
)

// Snapshot is the persisted registry state used to rebuild it on start.
type Snapshot struct {
	Version uint64
	Pool    domain.Amount
	Orders  []domain.Order
	Escrows []domain.Escrow
}

// Repository persists registry changesets and serves read models.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Commit writes one changeset in a single transaction.
func (r *Repository) Commit(ctx context.Context, cs domain.Changeset) error {
	ctx, span := repoTracer.Start(ctx, "PawnRepository.Commit", trace.WithAttributes(
		attribute.Int("changeset.orders", len(cs.Orders)),
		attribute.Int("changeset.movements", len(cs.Movements)),
	))
	defer span.End()

	span.SetAttributes(attribute.Int64("changeset.version", int64(cs.Version)))

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := advancePool(ctx, tx, cs); err != nil {
			return err
		}
		for _, o := range cs.Orders {
			row := entity.NewOrder(o)
			if _, err := upsert(tx, tx.NewInsert().Model(&row), "id").Exec(ctx); err != nil {
				return fmt.Errorf("upsert order %d: %w", o.ID, err)
			}
		}
		for _, e := range cs.Escrows {
			row := entity.NewEscrow(e)
			if _, err := upsert(tx, tx.NewInsert().Model(&row), "order_id").Exec(ctx); err != nil {
				return fmt.Errorf("upsert escrow %d: %w", e.OrderID, err)
			}
		}

		if len(cs.Movements) == 0 {
			return nil
		}
		rows := make([]entity.Movement, 0, len(cs.Movements))
		for _, m := range cs.Movements {
			rows = append(rows, entity.NewMovement(m))
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			if isUniqueViolation(err) && hasTransfer(cs) {
				return ErrDuplicateTransfer
			}
			return fmt.Errorf("insert movements: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
	}
	return err
}

// Load reads the full registry state from the primary.
func (r *Repository) Load(ctx context.Context) (Snapshot, error) {
	ctx, span := repoTracer.Start(ctx, "PawnRepository.Load")
	defer span.End()

	var snap Snapshot

	var pool entity.Pool
	err := r.writer.NewSelect().Model(&pool).Where("id = ?", entity.PoolID).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "select pool failed")
		return Snapshot{}, fmt.Errorf("load pool: %w", err)
	default:
		snap.Pool = pool.Balance
		snap.Version = uint64(pool.Version)
	}

	var orders []entity.Order
	if err := r.writer.NewSelect().Model(&orders).Order("id ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select orders failed")
		return Snapshot{}, fmt.Errorf("load orders: %w", err)
	}
	snap.Orders = make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		snap.Orders = append(snap.Orders, o.Domain())
	}

	var escrows []entity.Escrow
	if err := r.writer.NewSelect().Model(&escrows).Order("order_id ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select escrows failed")
		return Snapshot{}, fmt.Errorf("load escrows: %w", err)
	}
	snap.Escrows = make([]domain.Escrow, 0, len(escrows))
	for _, e := range escrows {
		snap.Escrows = append(snap.Escrows, e.Domain())
	}

	span.SetAttributes(
		attribute.Int("snapshot.orders", len(snap.Orders)),
		attribute.Int64("snapshot.version", int64(snap.Version)),
	)
	return snap, nil
}

// ListOrders reads persisted orders, optionally limited to statuses.
func (r *Repository) ListOrders(ctx context.Context, statuses ...domain.Status) ([]domain.Order, error) {
	ctx, span := repoTracer.Start(ctx, "PawnRepository.ListOrders")
	defer span.End()

	var rows []entity.Order
	q := r.reader.NewSelect().Model(&rows).Order("id ASC")
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		q = q.Where("status IN (?)", bun.In(values))
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, o := range rows {
		orders = append(orders, o.Domain())
	}
	return orders, nil
}

// RecordEvent stores an event in the history projection. Replays are ignored.
func (r *Repository) RecordEvent(ctx context.Context, e domain.Event) error {
	ctx, span := repoTracer.Start(ctx, "PawnRepository.RecordEvent", trace.WithAttributes(
		attribute.String("event.type", string(e.Type)),
		attribute.Int64("order.id", int64(e.OrderID)),
	))
	defer span.End()

	if e.ID == "" {
		return errors.New("event id is required")
	}
	row := entity.NewEvent(e)
	if _, err := insertIgnore(r.writer, r.writer.NewInsert().Model(&row), "id").Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// History returns the projected events of one order, oldest first.
func (r *Repository) History(ctx context.Context, orderID uint64, limit int) ([]domain.Event, error) {
	ctx, span := repoTracer.Start(ctx, "PawnRepository.History", trace.WithAttributes(attribute.Int64("order.id", int64(orderID))))
	defer span.End()

	var rows []entity.Event
	q := r.reader.NewSelect().Model(&rows).
		Where("order_id = ?", int64(orderID)).
		Order("at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	events := make([]domain.Event, 0, len(rows))
	for _, e := range rows {
		events = append(events, e.Domain())
	}
	return events, nil
}

// advancePool writes the pool row only if nobody committed since the
// changeset was staged. Version 0 means the registry has never committed, so
// the row must not exist yet.
func advancePool(ctx context.Context, tx bun.Tx, cs domain.Changeset) error {
	pool := entity.Pool{
		ID:        entity.PoolID,
		Balance:   cs.Pool,
		Version:   int64(cs.Version) + 1,
		UpdatedAt: changesetTime(cs),
	}

	var (
		res sql.Result
		err error
	)
	if cs.Version == 0 {
		res, err = insertIgnore(tx, tx.NewInsert().Model(&pool), "id").Exec(ctx)
	} else {
		res, err = tx.NewUpdate().Model(&pool).
			Column("balance", "version", "updated_at").
			WherePK().
			Where("version = ?", int64(cs.Version)).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	if n != 1 {
		return ErrStaleWriter
	}
	return nil
}

func insertIgnore(db bun.IDB, q *bun.InsertQuery, key string) *bun.InsertQuery {
	if db.Dialect().Name() == dialect.MySQL {
		return q.Ignore()
	}
	return q.On("CONFLICT (" + key + ") DO NOTHING")
}

func upsert(db bun.IDB, q *bun.InsertQuery, key string) *bun.InsertQuery {
	if db.Dialect().Name() == dialect.MySQL {
		return q.On("DUPLICATE KEY UPDATE")
	}
	return q.On("CONFLICT (" + key + ") DO UPDATE")
}

func changesetTime(cs domain.Changeset) (at time.Time) {
	for _, m := range cs.Movements {
		if m.At.After(at) {
			at = m.At
		}
	}
	for _, e := range cs.Events {
		if e.At.After(at) {
			at = e.At
		}
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return at
}

func hasTransfer(cs domain.Changeset) bool {
	for _, m := range cs.Movements {
		if m.TransferID != "" {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
