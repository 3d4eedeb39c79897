package polyorm_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/polyorm/polyorm"
	"github.com/polyorm/polyorm/dialects/postgres"
	"github.com/polyorm/polyorm/logger"
)

func TestExecuteScalarInt(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	query := "SELECT COUNT(*) FROM parties WHERE name = ?"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("Acme").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := u.ExecuteScalarInt(query, "Acme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(sqlmock.NewRows([]string{"count"}))
	_, err = u.ExecuteScalarInt(query, "Acme")
	assert.ErrorIs(t, err, polyorm.ErrStorage)

	var storageErr *polyorm.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, query, storageErr.SQL)
	assert.Contains(t, err.Error(), "no rows")

	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1).AddRow(2))
	_, err = u.ExecuteScalarInt(query, "Acme")
	assert.ErrorIs(t, err, polyorm.ErrStorage)
	assert.Contains(t, err.Error(), "more than one row")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWrapsStatement(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	query := "UPDATE parties SET name = ? WHERE id = ?"
	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnError(boom)

	_, err := u.ExecuteNonQuery(query, "Acme", 1)
	assert.ErrorIs(t, err, polyorm.ErrStorage)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), query)

	mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnError(errors.New("trigger raised: CONCURRENCY"))
	_, err = u.ExecuteNonQuery(query, "Acme", 1)
	assert.ErrorIs(t, err, polyorm.ErrConcurrencyConflict)
	assert.NotErrorIs(t, err, polyorm.ErrStorage)

	mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnResult(sqlmock.NewResult(0, 3))
	rows, err := u.ExecuteNonQuery(query, "Acme", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRebindsForDialect(t *testing.T) {
	db, mock := openMock(t, postgres.Open(""))
	u := db.UnitOfWork(context.Background())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE parties SET name = $1 WHERE id = $2 AND code <> '?'")).
		WithArgs("Acme", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := u.ExecuteNonQuery("UPDATE parties SET name = ? WHERE id = ? AND code <> '?'", "Acme", 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteStatementTimeout(t *testing.T) {
	db, mock := openMock(t, nil, polyorm.WithStatementTimeout(10*time.Millisecond))
	u := db.UnitOfWork(context.Background())

	mock.ExpectExec("DELETE FROM parties").WillDelayFor(time.Second).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := u.ExecuteNonQuery("DELETE FROM parties")
	assert.ErrorIs(t, err, polyorm.ErrStorage)
}

func TestExecutePreparedStatements(t *testing.T) {
	db, mock := openMock(t, nil, polyorm.WithPrepareStmt(8, time.Minute))
	u := db.UnitOfWork(context.Background())

	query := "SELECT COUNT(*) FROM parties"
	prepared := mock.ExpectPrepare(regexp.QuoteMeta(query))
	prepared.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	prepared.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := u.ExecuteScalarInt(query)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = u.ExecuteScalarInt(query)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type recorder struct {
	lines []string
}

func (r *recorder) Printf(format string, args ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestExecuteTracesWithUnitOfWork(t *testing.T) {
	rec := &recorder{}
	db, mock := openMock(t, nil, polyorm.WithLogger(logger.New(rec, logger.Config{LogLevel: logger.Info})))
	u := db.UnitOfWork(context.Background(), polyorm.WithActor("ann"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE parties SET name = ? WHERE id = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
	_, err := u.ExecuteNonQuery("UPDATE parties SET name = ? WHERE id = ?", "Acme", 7)
	require.NoError(t, err)

	require.Len(t, rec.lines, 1)
	assert.Contains(t, rec.lines[0], "["+u.ID+" ann]")
	assert.Contains(t, rec.lines[0], "UPDATE parties SET name = 'Acme' WHERE id = 7")
	assert.Contains(t, rec.lines[0], "[rows:1]")
}

func TestUnitOfWorkScopesStructuredLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	db, mock := openMock(t, nil, polyorm.WithLogger(logger.NewZapLogger(zap.New(core), logger.Config{LogLevel: logger.Info})))
	first := db.UnitOfWork(context.Background(), polyorm.WithActor("ann"))
	second := db.UnitOfWork(context.Background())

	mock.ExpectExec("DELETE FROM parties").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM parties").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := first.ExecuteNonQuery("DELETE FROM parties WHERE id = ?", 1)
	require.NoError(t, err)
	_, err = second.ExecuteNonQuery("DELETE FROM parties WHERE id = ?", 2)
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ContextMap()["uow"])
	assert.Equal(t, "ann", entries[0].ContextMap()["actor"])
	assert.Equal(t, second.ID, entries[1].ContextMap()["uow"])
	assert.NotContains(t, entries[1].ContextMap(), "actor")
	assert.Equal(t, "DELETE FROM parties WHERE id = 2", entries[1].ContextMap()["sql"])
}

func TestTransaction(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	assert.ErrorIs(t, u.Commit(), polyorm.ErrNoTransaction)
	assert.ErrorIs(t, u.Rollback(), polyorm.ErrNoTransaction)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM parties").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	err := u.Transaction(func(u *polyorm.UnitOfWork) error {
		assert.True(t, u.InTransaction())
		assert.ErrorIs(t, u.Begin(), polyorm.ErrTransactionInProgress)
		_, err := u.ExecuteNonQuery("DELETE FROM parties")
		return err
	})
	require.NoError(t, err)
	assert.False(t, u.InTransaction())

	failed := errors.New("failed")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = u.Transaction(func(u *polyorm.UnitOfWork) error { return failed })
	assert.ErrorIs(t, err, failed)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.Panics(t, func() {
		_ = u.Transaction(func(u *polyorm.UnitOfWork) error { panic("boom") })
	})
	assert.False(t, u.InTransaction())

	mock.ExpectBegin()
	mock.ExpectRollback()
	require.NoError(t, u.Begin())
	assert.NoError(t, u.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

var (
	insertRoot     = regexp.QuoteMeta("INSERT INTO persistent_objects (id, class_name, is_deleted, order_hint, concurrency_token, last_modified_at, last_modified_by) VALUES (?, ?, ?, ?, ?, ?, ?)")
	insertParty    = regexp.QuoteMeta("INSERT INTO parties (id, name, code) VALUES (?, ?, ?)")
	insertSupplier = regexp.QuoteMeta("INSERT INTO suppliers (id, rating) VALUES (?, ?)")
	maxIdentity    = regexp.QuoteMeta("SELECT MAX(id) FROM persistent_objects")
	selectByID     = regexp.QuoteMeta("SELECT persistent_objects.id, ") + ".*" + regexp.QuoteMeta("WHERE persistent_objects.id = ?")
	savePoint      = "^SAVEPOINT sp"
	rollbackTo     = "^ROLLBACK TO SAVEPOINT sp"
)

// expectStoredSupplier expects the populate of supplier id, stored with token
func expectStoredSupplier(mock sqlmock.Sqlmock, id, token int64) {
	rows := sqlmock.NewRows([]string{"id", "class_name", "is_deleted", "order_hint", "concurrency_token", "last_modified_at", "last_modified_by", "name", "code", "rating"}).
		AddRow(id, "crm.Supplier", false, 0, token, nil, nil, "Bolts", nil, 3)
	mock.ExpectQuery(selectByID).WithArgs(id).WillReturnRows(rows)
}

func TestSaveRequiredFieldRunsNoStatement(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	supplier := &Supplier{Rating: 9}
	err := u.Save(supplier)
	require.ErrorIs(t, err, polyorm.ErrValidation)

	var validationErr *polyorm.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "Name is required.", validationErr.Field("Name").Message)
	assert.Equal(t, "Rating must be between 1 and 5.", validationErr.Field("Rating").Message)
	assert.Equal(t, "Name is required.\nRating must be between 1 and 5.", err.Error())

	assert.False(t, supplier.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertStatements(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background(), polyorm.WithActor("ann"))

	mock.ExpectBegin()
	mock.ExpectQuery(maxIdentity).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec(insertRoot).
		WithArgs(1, "crm.Supplier", false, 0, 0, now, "ann").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertParty).WithArgs(1, "Bolts", nil).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertSupplier).WithArgs(1, 2).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	supplier := &Supplier{Party: Party{Name: "Bolts"}, Rating: 2}
	require.NoError(t, u.Save(supplier))
	assert.Equal(t, int64(1), supplier.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRetriesIdentityCollision(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	collision := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}

	mock.ExpectBegin()
	mock.ExpectQuery(maxIdentity).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec(insertRoot).WillReturnError(collision)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(maxIdentity).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(5))
	mock.ExpectExec(insertRoot).WithArgs(6, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec(insertParty).WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec(insertSupplier).WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectCommit()

	supplier := &Supplier{Party: Party{Name: "Bolts"}}
	require.NoError(t, u.Save(supplier))
	assert.Equal(t, int64(6), supplier.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGivesUpAfterIdentityRetries(t *testing.T) {
	db, mock := openMock(t, nil, func(c *polyorm.Config) { c.IdentityRetries = 1 })
	u := db.UnitOfWork(context.Background())

	collision := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(maxIdentity).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
		mock.ExpectExec(insertRoot).WillReturnError(collision)
		mock.ExpectRollback()
	}

	supplier := &Supplier{Party: Party{Name: "Bolts"}}
	err := u.Save(supplier)
	assert.ErrorIs(t, err, polyorm.ErrStorage)
	assert.NotErrorIs(t, err, polyorm.ErrValidation)
	assert.False(t, supplier.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveConcurrencyCheckStatement(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	supplier := &Supplier{}
	supplier.ID = 9

	check := regexp.QuoteMeta("UPDATE persistent_objects SET concurrency_token = ? WHERE id = ? AND concurrency_token = ?")

	// the unread stub is populated before anything is written
	expectStoredSupplier(mock, 9, 2)
	mock.ExpectBegin()
	mock.ExpectExec(check).WithArgs(3, 9, 2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := u.Save(supplier)
	assert.ErrorIs(t, err, polyorm.ErrConcurrencyConflict)
	assert.Equal(t, int64(2), supplier.ConcurrencyToken)
	assert.Equal(t, int64(9), supplier.ID)
	assert.Equal(t, "Bolts", supplier.Name)
	assert.Equal(t, 3, supplier.LoadedLevels())
	assert.True(t, supplier.LastModifiedAt.IsZero())

	mock.ExpectBegin()
	mock.ExpectExec(check).WithArgs(3, 9, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE persistent_objects SET class_name = ?, is_deleted = ?, order_hint = ?, concurrency_token = ?, last_modified_at = ?, last_modified_by = ? WHERE id = ?")).
		WithArgs("crm.Supplier", false, 0, 3, now, nil, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parties SET name = ?, code = ? WHERE id = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE suppliers SET rating = ? WHERE id = ?")).WithArgs(3, 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, u.Save(supplier))
	assert.Equal(t, int64(3), supplier.ConcurrencyToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveConflictAbortsOpenTransaction(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	supplier := &Supplier{}
	supplier.ID = 9

	mock.ExpectBegin()
	expectStoredSupplier(mock, 9, 2)
	mock.ExpectExec(savePoint).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE persistent_objects SET concurrency_token").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(rollbackTo).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	require.NoError(t, u.Begin())
	err := u.Save(supplier)
	assert.ErrorIs(t, err, polyorm.ErrConcurrencyConflict)
	assert.False(t, u.InTransaction())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedTransactionUsesSavePoint(t *testing.T) {
	db, mock := openMock(t, nil)
	u := db.UnitOfWork(context.Background())

	assert.ErrorIs(t, u.SavePoint("sp1"), polyorm.ErrNoTransaction)
	assert.ErrorIs(t, u.RollbackTo("sp1"), polyorm.ErrNoTransaction)

	failed := errors.New("failed")
	mock.ExpectBegin()
	mock.ExpectExec(savePoint).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM parties").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rollbackTo).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(savePoint).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, u.Begin())
	err := u.Transaction(func(u *polyorm.UnitOfWork) error {
		if _, err := u.ExecuteNonQuery("DELETE FROM parties"); err != nil {
			return err
		}
		return failed
	})
	assert.ErrorIs(t, err, failed)
	assert.True(t, u.InTransaction())

	require.NoError(t, u.Transaction(func(u *polyorm.UnitOfWork) error { return nil }))
	assert.True(t, u.InTransaction())
	require.NoError(t, u.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRequiresRootColumns(t *testing.T) {
	_, err := polyorm.Open(nil, &polyorm.Config{})
	assert.Error(t, err)

	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	db, err := polyorm.Open(postgres.Open(""), &polyorm.Config{ConnPool: conn, RootTable: "objects", Logger: logger.Discard})
	require.NoError(t, err)
	assert.Equal(t, "objects", db.Registry.MustDescriptor(polyorm.RootKey).Root().Name)
	assert.True(t, strings.HasPrefix(db.Registry.MustDescriptor(polyorm.RootKey).SelectClause(), "objects.id"))
}
