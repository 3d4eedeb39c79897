package polyorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/polyorm/polyorm/logger"
)

// concurrencyTag marks a failed concurrency check, whether raised by the
// save algorithm or by a server side trigger
const concurrencyTag = "CONCURRENCY"

var errConcurrencySignal = errors.New(concurrencyTag + ": concurrency token mismatch")

type connPool interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Rows is the cursor returned by ExecuteQuery; Close must be called
type Rows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *Rows) Close() error {
	err := r.Rows.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// ExecuteNonQuery runs a statement without result rows and returns the affected row count
func (u *UnitOfWork) ExecuteNonQuery(sql string, vars ...interface{}) (int64, error) {
	return u.execute(u.ctx, sql, vars...)
}

// ExecuteQuery runs a statement and returns its cursor
func (u *UnitOfWork) ExecuteQuery(sql string, vars ...interface{}) (*Rows, error) {
	return u.query(u.ctx, sql, vars...)
}

// ExecuteScalarInt runs a statement that must yield exactly one row with one
// integer column; NULL reads as 0
func (u *UnitOfWork) ExecuteScalarInt(sql string, vars ...interface{}) (int64, error) {
	return u.scalarInt(u.ctx, sql, vars...)
}

func (u *UnitOfWork) conn() connPool {
	if u.tx != nil {
		return u.tx
	}
	return u.db.ConnPool
}

func (u *UnitOfWork) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.db.StatementTimeout > 0 {
		return context.WithTimeout(ctx, u.db.StatementTimeout)
	}
	return ctx, nil
}

func (u *UnitOfWork) execute(ctx context.Context, query string, vars ...interface{}) (rows int64, err error) {
	query = u.db.rebind(query)
	begin := time.Now()
	defer func() {
		u.trace(ctx, begin, query, vars, rows, err)
	}()

	ctx, cancel := u.withTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	var result sql.Result
	if stmt, e := u.prepare(ctx, query); e != nil {
		return -1, u.db.wrapError(query, vars, e)
	} else if stmt != nil {
		result, err = stmt.ExecContext(ctx, vars...)
	} else {
		result, err = u.conn().ExecContext(ctx, query, vars...)
	}
	if err != nil {
		return -1, u.db.wrapError(query, vars, err)
	}

	if rows, err = result.RowsAffected(); err != nil {
		return -1, u.db.wrapError(query, vars, err)
	}
	return rows, nil
}

func (u *UnitOfWork) query(ctx context.Context, query string, vars ...interface{}) (_ *Rows, err error) {
	query = u.db.rebind(query)
	begin := time.Now()
	defer func() {
		u.trace(ctx, begin, query, vars, -1, err)
	}()

	ctx, cancel := u.withTimeout(ctx)

	var rows *sql.Rows
	if stmt, e := u.prepare(ctx, query); e != nil {
		err = e
	} else if stmt != nil {
		rows, err = stmt.QueryContext(ctx, vars...)
	} else {
		rows, err = u.conn().QueryContext(ctx, query, vars...)
	}

	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, u.db.wrapError(query, vars, err)
	}
	return &Rows{Rows: rows, cancel: cancel}, nil
}

func (u *UnitOfWork) scalarInt(ctx context.Context, query string, vars ...interface{}) (int64, error) {
	rows, err := u.query(ctx, query, vars...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var (
		value sql.NullInt64
		count int
	)
	for rows.Next() {
		if count++; count > 1 {
			break
		}
		if err := rows.Scan(&value); err != nil {
			return 0, u.db.wrapError(query, vars, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, u.db.wrapError(query, vars, err)
	}

	if count != 1 {
		return 0, &StorageError{SQL: u.db.rebind(query), Vars: vars, Err: fmt.Errorf("scalar query returned %s", rowCount(count))}
	}
	return value.Int64, nil
}

func rowCount(count int) string {
	if count == 0 {
		return "no rows"
	}
	return "more than one row"
}

// prepare returns the cached statement for query, nil when caching is off
func (u *UnitOfWork) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if u.db.stmts == nil {
		return nil, nil
	}

	stmt, err := u.db.stmts.Prepare(ctx, u.db.ConnPool, query)
	if err != nil {
		return nil, err
	}
	if u.tx != nil {
		return u.tx.StmtContext(ctx, stmt.Stmt), nil
	}
	return stmt.Stmt, nil
}

// rebind rewrites ? placeholders outside quoted literals for the dialect
func (db *DB) rebind(query string) string {
	if db.numericPlaceholder == nil {
		return query
	}

	var (
		builder strings.Builder
		quote   rune
		n       int
	)
	builder.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '?':
			n++
			builder.WriteString(db.Dialector.BindVar(n))
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func (u *UnitOfWork) trace(ctx context.Context, begin time.Time, query string, vars []interface{}, rows int64, err error) {
	u.log.Trace(ctx, begin, func() (string, int64) {
		if filter, ok := u.log.(logger.ParamsFilter); ok {
			query, vars = filter.ParamsFilter(ctx, query, vars...)
		}
		return logger.ExplainSQL(query, u.db.numericPlaceholder, `'`, vars...), rows
	}, err)
}

// wrapError attaches the statement, rebound for the dialect, to a provider
// error; a concurrency signal becomes ErrConcurrencyConflict
func (db *DB) wrapError(query string, vars []interface{}, err error) error {
	if err == nil {
		return nil
	}

	if strings.Contains(err.Error(), concurrencyTag) {
		return ErrConcurrencyConflict
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &StorageError{SQL: db.rebind(query), Vars: vars, Err: err}
}
