package polyorm

import (
	"database/sql"
	"fmt"

	"github.com/polyorm/polyorm/schema"
)

// Populate reads obj's row by its identity and fills every declared column.
// References become unpopulated stubs and large objects carry their size,
// mime type and filename but no payload.
//
// An object loaded through a supertype query only gets its deeper levels
// filled; on a fully populated object Populate does nothing, so in-memory
// edits are never discarded.
func (u *UnitOfWork) Populate(obj Entity) error {
	m := obj.PersistentModel()
	if !m.Exists() {
		return fmt.Errorf("%w: %T has no identity", ErrObjectNotFound, obj)
	}

	desc, err := u.db.Registry.DescriptorOf(obj)
	if err != nil {
		return err
	}

	if m.loadedLevels >= desc.Depth() {
		return nil
	}
	return u.populate(desc, obj)
}

func (u *UnitOfWork) populate(desc *schema.Descriptor, obj Entity) error {
	m := obj.PersistentModel()
	query := desc.ByIdentitySQL()

	rows, err := u.query(u.ctx, query, m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return u.db.wrapError(query, []interface{}{m.ID}, err)
		}
		return fmt.Errorf("%w: %s %d", ErrObjectNotFound, desc.Key, m.ID)
	}

	row, err := scanRow(rows, desc.Width())
	if err == nil {
		err = desc.Scan(obj, row, m.loadedLevels, u.stub)
	}
	if err != nil {
		return u.db.wrapError(query, []interface{}{m.ID}, err)
	}

	m.loadedLevels = desc.Depth()
	return u.afterPopulate(obj)
}

// Load reads the object with identity id, instantiating the concrete type
// named by its stored discriminator
func (u *UnitOfWork) Load(id int64) (Entity, error) {
	root := u.db.root
	query := "SELECT " + root.className + " FROM " + root.table + " WHERE id = ?"

	rows, err := u.query(u.ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, u.db.wrapError(query, []interface{}{id}, err)
		}
		return nil, fmt.Errorf("%w: %d", ErrObjectNotFound, id)
	}

	var className sql.NullString
	if err := rows.Scan(&className); err != nil {
		return nil, u.db.wrapError(query, []interface{}{id}, err)
	}
	// the connection must be free before populating inside a transaction
	rows.Close()

	stub, err := u.stub(className.String, id)
	if err != nil {
		return nil, u.db.wrapError(query, []interface{}{id}, err)
	}

	obj := stub.(Entity)
	if err := u.Populate(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// stub instantiates the type registered for className carrying only its identity
func (u *UnitOfWork) stub(className string, id int64) (interface{}, error) {
	key, err := u.db.Registry.Resolve(className)
	if err != nil {
		return nil, err
	}

	obj, err := u.db.Registry.New(key)
	if err != nil {
		return nil, err
	}

	e, ok := obj.(Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not embed polyorm.Model", ErrBrokenRegistry, obj)
	}

	m := e.PersistentModel()
	m.ID, m.ClassName = id, key
	return e, nil
}

// scanRow reads the current row as provider values
func scanRow(rows *Rows, width int) ([]interface{}, error) {
	values := make([]interface{}, width)
	dest := make([]interface{}, width)
	for idx := range values {
		dest[idx] = &values[idx]
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}
