package errtranslator

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a constraint rejection reported by the storage provider
type Kind int

const (
	// Unique a unique index or primary key rejected a duplicate value
	Unique Kind = iota + 1
	// Check a check constraint rejected the value
	Check
	// NotNull a NOT NULL constraint rejected an absent value
	NotNull
	// TooLong the value exceeded the declared column length
	TooLong
	// OutOfRange a numeric value overflowed the declared column type
	OutOfRange
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Check:
		return "check"
	case NotNull:
		return "not null"
	case TooLong:
		return "too long"
	case OutOfRange:
		return "out of range"
	}
	return "unknown"
}

// ErrTranslator turns a provider error into a *Rejection, or returns it unchanged
type ErrTranslator interface {
	Translate(err error) error
}

// Rejection is a storage-level constraint violation. Table, Column and
// Constraint are filled in when the provider reports them.
type Rejection struct {
	Kind       Kind
	Code       interface{}
	Table      string
	Column     string
	Constraint string
	PrimaryKey bool
	Message    string
	Err        error
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("%v constraint rejected value, code: %v, column: %s, message: %s", e.Kind, e.Code, e.Column, e.Message)
}

func (e *Rejection) Unwrap() error {
	return e.Err
}

// decode copies the exported fields of a driver error into dest without importing the driver
func decode(err error, dest interface{}) bool {
	parsedErr, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		return false
	}
	return json.Unmarshal(parsedErr, dest) == nil
}

// ForDialect returns the translator registered for a dialect name, nil if unknown
func ForDialect(name string) ErrTranslator {
	switch name {
	case "sqlite", "sqlite3":
		return &SqliteErrTranslator{}
	case "postgres":
		return &PostgresErrTranslator{}
	case "mysql":
		return &MysqlErrTranslator{}
	}
	return nil
}
