// Package sqlxrepos implements the repositories on postgres, with squirrel-built queries run through sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// uniqueViolation returns the name of the unique constraint violated by err, if any.
func uniqueViolation(err error) string {
	return violation(err, "unique_violation")
}

// foreignKeyViolation returns the name of the foreign key constraint violated by err, if any.
func foreignKeyViolation(err error) string {
	return violation(err, "foreign_key_violation")
}

func violation(err error, code string) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == code {
		return pqErr.Constraint
	}
	return ""
}

func get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectAll(ctx context.Context, q sqlx.QueryerContext, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// exec runs qb and reports whether it affected any row.
func exec(ctx context.Context, e sqlx.ExecerContext, qb sq.Sqlizer) (bool, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building query")
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// withTx runs fn within a transaction, committed if fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func isNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}
