package polyorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/polyorm/polyorm/logger"
	"github.com/polyorm/polyorm/schema"
)

var (
	// ErrValidation one or more column values are invalid, see *ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrConcurrencyConflict the object was changed by someone else since it was loaded
	ErrConcurrencyConflict = errors.New("the object was changed by another user, reload it and try again")
	// ErrObjectNotFound the object does not exist
	ErrObjectNotFound = logger.ErrObjectNotFound
	// ErrStorage the storage provider failed, see *StorageError
	ErrStorage = errors.New("storage failure")
	// ErrNoTransaction commit or rollback without an open transaction
	ErrNoTransaction = errors.New("no open transaction")
	// ErrTransactionInProgress begin while a transaction is already open
	ErrTransactionInProgress = errors.New("transaction already in progress")

	ErrBrokenRegistry       = schema.ErrBrokenRegistry
	ErrUnknownDiscriminator = schema.ErrUnknownDiscriminator
)

// ValidationError aggregates every violated column rule of one save.
// Messages are meant to be shown to end users as they are.
type ValidationError struct {
	Failures []*schema.FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Failures))
	for idx, failure := range e.Failures {
		messages[idx] = failure.Message
	}
	return strings.Join(messages, "\n")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field returns the failure reported for the named column, if any
func (e *ValidationError) Field(column string) *schema.FieldError {
	for _, failure := range e.Failures {
		if failure.Column == column {
			return failure
		}
	}
	return nil
}

// StorageError is a provider failure together with the statement that caused it
type StorageError struct {
	SQL  string
	Vars []interface{}
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%v [statement: %s]", e.Err, e.SQL)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
