package polyorm

import (
	"database/sql"
	"fmt"

	"github.com/polyorm/polyorm/schema"
)

// Find runs the select of the type registered under key, filtered by the
// optional where fragment. Every row becomes an instance of the concrete
// type named by its discriminator, with the levels of key populated.
func (u *UnitOfWork) Find(key, where string, args ...interface{}) ([]Entity, error) {
	var results []Entity
	err := u.each(key, where, args, func(obj Entity) bool {
		results = append(results, obj)
		return true
	})
	return results, err
}

// First is Find limited to the first row; no row is ErrObjectNotFound
func (u *UnitOfWork) First(key, where string, args ...interface{}) (Entity, error) {
	var result Entity
	err := u.each(key, where, args, func(obj Entity) bool {
		result = obj
		return false
	})
	if err == nil && result == nil {
		err = fmt.Errorf("%w: no %s matches %q", ErrObjectNotFound, key, where)
	}
	return result, err
}

func (u *UnitOfWork) each(key, where string, args []interface{}, fc func(Entity) bool) error {
	desc, err := u.db.Registry.Descriptor(key)
	if err != nil {
		return err
	}

	query := desc.SelectSQL(where)
	classNameAt := desc.Position(desc.Root().LookUpColumn(u.db.root.className))

	rows, err := u.query(u.ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanRow(rows, desc.Width())
		if err != nil {
			return u.db.wrapError(query, args, err)
		}

		obj, err := u.instantiate(desc, row, classNameAt)
		if err != nil {
			return u.db.wrapError(query, args, err)
		}

		if !fc(obj) {
			return nil
		}
	}

	if err := rows.Err(); err != nil {
		return u.db.wrapError(query, args, err)
	}
	return nil
}

// instantiate builds the concrete instance for a row of desc's select
func (u *UnitOfWork) instantiate(desc *schema.Descriptor, row []interface{}, classNameAt int) (Entity, error) {
	var (
		id        sql.NullInt64
		className sql.NullString
	)
	if err := id.Scan(row[0]); err != nil {
		return nil, err
	}
	if err := className.Scan(row[classNameAt]); err != nil {
		return nil, err
	}

	key, err := u.db.Registry.Resolve(className.String)
	if err != nil {
		return nil, err
	}
	if !u.db.Registry.IsA(key, desc.Key) {
		return nil, fmt.Errorf("%w: %q is not a %s", ErrUnknownDiscriminator, className.String, desc.Key)
	}
	// the concrete descriptor proves its columns can bind the instance
	if _, err := u.db.Registry.Descriptor(key); err != nil {
		return nil, err
	}

	stub, err := u.stub(key, id.Int64)
	if err != nil {
		return nil, err
	}

	obj := stub.(Entity)
	if err := desc.Scan(obj, row, 0, u.stub); err != nil {
		return nil, err
	}
	obj.PersistentModel().loadedLevels = desc.Depth()
	return obj, u.afterPopulate(obj)
}

// Find returns every object of type T matching where
func Find[T Entity](u *UnitOfWork, where string, args ...interface{}) ([]T, error) {
	key, err := keyOf[T](u)
	if err != nil {
		return nil, err
	}

	objs, err := u.Find(key, where, args...)
	if err != nil {
		return nil, err
	}

	results := make([]T, 0, len(objs))
	for _, obj := range objs {
		t, ok := obj.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s %d is a %T", ErrUnknownDiscriminator, key, obj.PersistentModel().ID, obj)
		}
		results = append(results, t)
	}
	return results, nil
}

// First returns the first object of type T matching where
func First[T Entity](u *UnitOfWork, where string, args ...interface{}) (T, error) {
	var zero T
	key, err := keyOf[T](u)
	if err != nil {
		return zero, err
	}

	obj, err := u.First(key, where, args...)
	if err != nil {
		return zero, err
	}

	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s %d is a %T", ErrUnknownDiscriminator, key, obj.PersistentModel().ID, obj)
	}
	return t, nil
}

func keyOf[T Entity](u *UnitOfWork) (string, error) {
	var zero T
	key, ok := u.db.Registry.KeyOf(zero)
	if !ok {
		return "", fmt.Errorf("%w: %T is not registered", ErrBrokenRegistry, zero)
	}
	return key, nil
}
