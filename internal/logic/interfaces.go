package logic

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query surface shared by a pgx pool and a transaction, so
// services can run the same reads inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgPool is the subset of pgxpool.Pool the services depend on.
type PgPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// VersionSource resolves the live calculator version for an engine.
type VersionSource interface {
	EngineVersion(ctx context.Context, engine string) (string, error)
}

// RecalcQueue accepts deferred score recalculation work, typically after a
// membership update discovers mutations without cached calculations.
type RecalcQueue interface {
	EnqueueScoreRecalc(engine string, scoreIDs []int64) bool
}
