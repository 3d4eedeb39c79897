package polyorm

import (
	"time"

	"github.com/polyorm/polyorm/schema"
)

// RootKey is the type key of the root persistent type
const RootKey = "polyorm.PersistentObject"

// Model is embedded by every persistent type. It holds the columns of the
// root table that all hierarchies share.
//
//	type Party struct {
//	  polyorm.Model
//	  Name string
//	}
type Model struct {
	ID               int64
	ClassName        string
	IsDeleted        bool
	OrderHint        int64
	ConcurrencyToken int64
	LastModifiedAt   time.Time
	LastModifiedBy   string

	// number of table levels filled from storage, root first
	loadedLevels int
}

// Entity is implemented by every type embedding Model
type Entity interface {
	PersistentModel() *Model
}

// PersistentModel returns the shared root state
func (m *Model) PersistentModel() *Model {
	return m
}

// Exists reports whether the object has been saved; it never touches storage
func (m *Model) Exists() bool {
	return m.ID >= 1
}

// LoadedLevels is the number of table levels populated from storage
func (m *Model) LoadedLevels() int {
	return m.loadedLevels
}

// Exists reports whether e has been saved
func Exists(e Entity) bool {
	return e != nil && e.PersistentModel().Exists()
}

// Equal reports whether a and b are the same stored object. Transient
// objects are never equal to anything, themselves included.
func Equal(a, b Entity) bool {
	if !Exists(a) || !Exists(b) {
		return false
	}
	return a.PersistentModel().ID == b.PersistentModel().ID
}

// Root column names
const (
	columnClassName        = "ClassName"
	columnIsDeleted        = "IsDeleted"
	columnConcurrencyToken = "ConcurrencyToken"
)

// RootRegistration declares the root type stored in table. Columns are
// created per call as every registry binds its own.
func RootRegistration(table string) schema.TypeRegistration {
	if table == "" {
		table = DefaultRootTable
	}

	return schema.TypeRegistration{
		Key:   RootKey,
		Table: table,
		Columns: []*schema.Column{
			schema.String(columnClassName, func(e Entity) *string { return &e.PersistentModel().ClassName }).Required(),
			schema.Bool(columnIsDeleted, func(e Entity) *bool { return &e.PersistentModel().IsDeleted }),
			schema.Int("OrderHint", func(e Entity) *int64 { return &e.PersistentModel().OrderHint }).Optional(),
			schema.Int(columnConcurrencyToken, func(e Entity) *int64 { return &e.PersistentModel().ConcurrencyToken }),
			schema.Time("LastModifiedAt", func(e Entity) *time.Time { return &e.PersistentModel().LastModifiedAt }).Optional(),
			schema.String("LastModifiedBy", func(e Entity) *string { return &e.PersistentModel().LastModifiedBy }),
		},
	}
}

// NewRegistry creates a type registry rooted at the persistent object table
func NewRegistry(namer schema.Namer, rootTable string) (*schema.Registry, error) {
	return schema.NewRegistry(namer, RootRegistration(rootTable))
}

// Type builds the registration of a concrete type. parent is the
// supertype key, empty for direct subtypes of the root type.
func Type[T Entity](key, parent string, newFn func() T, columns ...*schema.Column) schema.TypeRegistration {
	return schema.TypeRegistration{
		Key:     key,
		Parent:  parent,
		Columns: columns,
		New:     func() interface{} { return newFn() },
	}
}

// Abstract builds the registration of a level that is never instantiated
func Abstract(key, parent string, columns ...*schema.Column) schema.TypeRegistration {
	return schema.TypeRegistration{Key: key, Parent: parent, Columns: columns}
}
