package postgres

import (
	"context"
	"errors"

	"geofence-events/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey int

const (
	txKey ctxKey = iota
	readOnlyKey
)

var ErrNoTx = errors.New("no transaction in context: call this repository within UnitOfWork.WithinTx")

// unitOfWork runs repository calls inside one pgx transaction.
type unitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork binds a unit of work to pool.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

// ReadOnly marks ctx so the next WithinTx opens a READ ONLY transaction.
// Oracle lookups use it; it has no effect on an already running tx.
func ReadOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, readOnlyKey, true)
}

// WithinTx executes fn within a database transaction.
//   - A tx already present in ctx is reused (nesting).
//   - An error from fn rolls back and is returned; a panic rolls back and is rethrown.
//   - Otherwise the tx is committed.
func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	opts := pgx.TxOptions{}
	if ro, _ := ctx.Value(readOnlyKey).(bool); ro {
		opts.AccessMode = pgx.ReadOnly
	}

	tx, err := uow.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// TxFromContext extracts the current pgx.Tx from ctx if present.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// MustTxFromContext returns the active pgx.Tx or ErrNoTx.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx, nil
	}
	return nil, ErrNoTx
}
