package polyorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/polyorm/polyorm/logger"
)

// UnitOfWork binds a context and an optional transaction to a sequence of
// engine operations. It is owned by one goroutine; callers acquire it with
// DB.UnitOfWork and release it with Close.
type UnitOfWork struct {
	ID    string
	Actor string

	db        *DB
	log       logger.Interface
	ctx       context.Context
	tx        *sql.Tx
	txOptions *sql.TxOptions
}

// UnitOfWorkOption configures a unit of work
type UnitOfWorkOption func(u *UnitOfWork)

// WithActor names who is doing the work, stamped as last modified by on save
func WithActor(actor string) UnitOfWorkOption {
	return func(u *UnitOfWork) {
		u.Actor = actor
	}
}

// WithTxOptions sets the options of transactions begun by the unit of work
func WithTxOptions(opts *sql.TxOptions) UnitOfWorkOption {
	return func(u *UnitOfWork) {
		u.txOptions = opts
	}
}

// UnitOfWork starts a unit of work bound to ctx
func (db *DB) UnitOfWork(ctx context.Context, opts ...UnitOfWorkOption) *UnitOfWork {
	if ctx == nil {
		ctx = context.Background()
	}

	u := &UnitOfWork{ID: uuid.NewString(), db: db}
	for _, opt := range opts {
		opt(u)
	}
	u.ctx = logger.WithUnitOfWork(ctx, u.ID)
	u.log = db.Logger
	if scoper, ok := db.Logger.(logger.Scoper); ok {
		u.log = scoper.ForUnitOfWork(u.ID, u.Actor)
	}
	return u
}

// Context returns the context statements run with
func (u *UnitOfWork) Context() context.Context {
	return u.ctx
}

// DB returns the owning handle
func (u *UnitOfWork) DB() *DB {
	return u.db
}

// InTransaction reports whether a transaction is open
func (u *UnitOfWork) InTransaction() bool {
	return u.tx != nil
}

// Begin opens a transaction; every following statement runs in it
func (u *UnitOfWork) Begin() error {
	if u.tx != nil {
		return ErrTransactionInProgress
	}

	tx, err := u.db.ConnPool.BeginTx(u.ctx, u.txOptions)
	if err != nil {
		return &StorageError{SQL: "BEGIN", Err: err}
	}
	u.tx = tx
	return nil
}

// Commit commits the open transaction
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return ErrNoTransaction
	}

	tx := u.tx
	u.tx = nil
	if err := tx.Commit(); err != nil {
		return u.db.wrapError("COMMIT", nil, err)
	}
	return nil
}

// Rollback discards the open transaction
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return ErrNoTransaction
	}

	tx := u.tx
	u.tx = nil
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return &StorageError{SQL: "ROLLBACK", Err: err}
	}
	return nil
}

// Close rolls back a transaction left open
func (u *UnitOfWork) Close() error {
	if u.tx == nil {
		return nil
	}
	return u.Rollback()
}

// SavePoint marks a point of the open transaction that RollbackTo returns to
func (u *UnitOfWork) SavePoint(name string) error {
	if u.tx == nil {
		return ErrNoTransaction
	}
	_, err := u.execute(u.ctx, "SAVEPOINT "+name)
	return err
}

// RollbackTo discards the work of the open transaction done since SavePoint(name)
func (u *UnitOfWork) RollbackTo(name string) error {
	if u.tx == nil {
		return ErrNoTransaction
	}
	_, err := u.execute(u.ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

// Transaction runs fc inside a new transaction, committing when fc returns
// nil and rolling back on error or panic. Rollback failures are combined
// with the error that caused them.
//
// With a transaction already open fc runs under a savepoint instead, and
// only its own work is rolled back; committing is left to the owner.
func (u *UnitOfWork) Transaction(fc func(u *UnitOfWork) error) (err error) {
	panicked := true

	if u.tx != nil {
		spName := fmt.Sprintf("sp%p", fc)
		if err = u.SavePoint(spName); err != nil {
			return err
		}
		defer func() {
			// Make sure to rollback when panic, Block error
			if (panicked || err != nil) && u.tx != nil {
				err = multierr.Append(err, u.RollbackTo(spName))
			}
		}()

		err = fc(u)
		panicked = false
		return
	}

	if err = u.Begin(); err != nil {
		return err
	}

	defer func() {
		// Make sure to rollback when panic, Block error or Commit error
		if panicked || err != nil {
			if u.tx != nil {
				err = multierr.Append(err, u.Rollback())
			}
		}
	}()

	err = fc(u)

	if err == nil {
		err = u.Commit()
	}

	panicked = false
	return
}
