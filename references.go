package polyorm

import (
	"fmt"

	"github.com/polyorm/polyorm/schema"
)

// RefTo returns a reference to a saved object
func RefTo(e Entity) schema.Ref {
	if !Exists(e) {
		return schema.Ref{}
	}
	m := e.PersistentModel()
	return schema.Ref{ID: m.ID, ClassName: m.ClassName, Target: e}
}

// Hydrate populates the object a reference points at, creating the stub
// first when the reference was built by hand
func (u *UnitOfWork) Hydrate(ref *schema.Ref) error {
	if ref == nil || ref.IsAbsent() {
		return nil
	}

	target, ok := ref.Target.(Entity)
	if !ok {
		stub, err := u.stub(ref.ClassName, ref.ID)
		if err != nil {
			return err
		}
		target = stub.(Entity)
		ref.Target = target
	}
	return u.Populate(target)
}

// PopulateReferences hydrates every reference column of obj
func (u *UnitOfWork) PopulateReferences(obj Entity) error {
	desc, err := u.db.Registry.DescriptorOf(obj)
	if err != nil {
		return err
	}

	for _, column := range desc.Columns() {
		if column.Type != schema.TypeReference {
			continue
		}
		if err := u.Hydrate(column.Ptr(obj).(*schema.Ref)); err != nil {
			return err
		}
	}
	return nil
}

// PopulateLargeObjects fetches the payload bytes of every large object
// column of obj in one extra round trip
func (u *UnitOfWork) PopulateLargeObjects(obj Entity) error {
	m := obj.PersistentModel()
	if !m.Exists() {
		return fmt.Errorf("%w: %T has no identity", ErrObjectNotFound, obj)
	}

	desc, err := u.db.Registry.DescriptorOf(obj)
	if err != nil {
		return err
	}

	query, columns := desc.LargeObjectSQL()
	if query == "" {
		return nil
	}

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

	row, err := scanRow(rows, len(columns))
	if err != nil {
		return u.db.wrapError(query, []interface{}{m.ID}, err)
	}

	for idx, column := range columns {
		if err := column.ScanPayload(obj, row[idx]); err != nil {
			return u.db.wrapError(query, []interface{}{m.ID}, err)
		}
	}
	return nil
}
