package polyorm

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"go.uber.org/multierr"

	"github.com/polyorm/polyorm/schema"
)

// Save validates obj and writes every table level in one transaction: a
// savepoint of the open transaction of the unit of work, or its own one.
//
// A saved object missing levels, such as a reference stub or a row read
// through a supertype query, is populated first. Values assigned to those
// levels before they were read are replaced by the stored ones.
//
// A transient object is inserted under a new identity. A saved object is
// updated only when its concurrency token still matches storage, otherwise
// ErrConcurrencyConflict is returned and nothing is written. Validation
// failures of all columns come back together as *ValidationError before
// any write. On every failure obj keeps the identity, token and audit
// values it had before the call.
func (u *UnitOfWork) Save(obj Entity) error {
	desc, err := u.db.Registry.DescriptorOf(obj)
	if err != nil {
		return err
	}

	m := obj.PersistentModel()
	isNew := !m.Exists()

	// levels never read, all of them for a reference stub, come from storage
	// first; they would be overwritten with zero values otherwise
	if !isNew && m.loadedLevels < desc.Depth() {
		if err := u.Populate(obj); err != nil {
			return err
		}
	}

	snapshot := *m
	m.ClassName = desc.Key
	m.LastModifiedAt = u.db.NowFunc()
	m.LastModifiedBy = u.Actor

	var failures []*schema.FieldError
	if hook, ok := obj.(BeforeSaveInterface); ok {
		err = hook.BeforeSave(u)
	}
	if err == nil {
		failures, err = u.validate(desc, obj)
	}
	if err == nil && len(failures) > 0 {
		err = &ValidationError{Failures: failures}
	}
	if err == nil {
		err = u.write(desc, obj, isNew)
	}

	if err != nil {
		*m = snapshot
		return err
	}

	m.loadedLevels = desc.Depth()
	return nil
}

// validate runs every column's rules, collecting all failures
func (u *UnitOfWork) validate(desc *schema.Descriptor, obj Entity) ([]*schema.FieldError, error) {
	var (
		failures []*schema.FieldError
		id       = obj.PersistentModel().ID
	)

	for _, column := range desc.Columns() {
		failure, err := column.Validate(u.ctx, u, obj, id)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			failures = append(failures, failure)
		}
	}
	return failures, nil
}

// CountDuplicates counts the other non-deleted rows storing value in column
func (u *UnitOfWork) CountDuplicates(ctx context.Context, column *schema.Column, ownerID int64, value driver.Value) (int64, error) {
	var (
		root  = u.db.root
		table = column.Table().Name
		sql   strings.Builder
	)

	sql.WriteString("SELECT COUNT(*) FROM " + table)
	if table != root.table {
		sql.WriteString(" INNER JOIN " + root.table + " ON " + root.table + ".id = " + table + ".id")
	}
	sql.WriteString(" WHERE " + table + "." + column.DBName + " = ? AND " + table + ".id <> ? AND " + root.table + "." + root.isDeleted + " = ?")

	return u.scalarInt(ctx, sql.String(), value, ownerID, false)
}

func (u *UnitOfWork) write(desc *schema.Descriptor, obj Entity, isNew bool) error {
	save := func(u *UnitOfWork) (err error) {
		if isNew {
			err = u.insert(desc, obj)
		} else {
			err = u.update(desc, obj)
		}

		if hook, ok := obj.(AfterSaveInterface); ok && err == nil {
			err = hook.AfterSave(u)
		}
		return err
	}

	for attempt := 0; ; attempt++ {
		err := u.Transaction(save)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrConcurrencyConflict) && u.tx != nil {
			// a stale writer aborts the whole unit of work
			return multierr.Append(err, u.Rollback())
		}
		if isNew && attempt < u.db.IdentityRetries && u.db.isIdentityCollision(err) {
			u.log.Warn(u.ctx, "identity %d of %s was taken by a concurrent insert, retrying", obj.PersistentModel().ID, desc.Key)
			continue
		}
		return u.translateRejection(desc, obj, err)
	}
}

// insert assigns max(id)+1 and writes one row per level under it
func (u *UnitOfWork) insert(desc *schema.Descriptor, obj Entity) error {
	m := obj.PersistentModel()

	// TODO: use the provider's identity generator where the dialect has one, the retry only narrows the race
	maxID, err := u.scalarInt(u.ctx, "SELECT MAX(id) FROM "+desc.Root().Name)
	if err != nil {
		return err
	}
	m.ID = maxID + 1

	for _, table := range desc.Tables {
		var (
			columns = []string{"id"}
			vars    = []interface{}{m.ID}
		)

		for _, column := range table.Columns {
			assignments, err := column.Assignments(obj, true)
			if err != nil {
				return err
			}
			for _, assignment := range assignments {
				columns = append(columns, assignment.Column)
				vars = append(vars, assignment.Value)
			}
		}

		query := "INSERT INTO " + table.Name + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders(len(vars)) + ")"
		if _, err := u.execute(u.ctx, query, vars...); err != nil {
			return err
		}
	}
	return nil
}

// update checks and advances the concurrency token server side, then
// writes every level that has columns
func (u *UnitOfWork) update(desc *schema.Descriptor, obj Entity) error {
	var (
		m     = obj.PersistentModel()
		root  = u.db.root
		token = m.ConcurrencyToken
		check = "UPDATE " + root.table + " SET " + root.concurrencyToken + " = ? WHERE id = ? AND " + root.concurrencyToken + " = ?"
		vars  = []interface{}{token + 1, m.ID, token}
	)

	affected, err := u.execute(u.ctx, check, vars...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return u.db.wrapError(check, vars, errConcurrencySignal)
	}

	// advanced before commit; Save restores it when anything below fails
	m.ConcurrencyToken = token + 1

	for _, table := range desc.Tables {
		if len(table.Columns) == 0 {
			continue
		}

		var (
			sets []string
			vars []interface{}
		)
		for _, column := range table.Columns {
			assignments, err := column.Assignments(obj, false)
			if err != nil {
				return err
			}
			for _, assignment := range assignments {
				sets = append(sets, assignment.Column+" = ?")
				vars = append(vars, assignment.Value)
			}
		}

		query := "UPDATE " + table.Name + " SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := u.execute(u.ctx, query, append(vars, m.ID)...); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var _ schema.UniqueChecker = (*UnitOfWork)(nil)
