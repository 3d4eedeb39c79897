package polyorm

import (
	"errors"

	"github.com/polyorm/polyorm/errtranslator"
	"github.com/polyorm/polyorm/schema"
)

// rejection extracts the constraint violation behind a storage error
func (db *DB) rejection(err error) (*errtranslator.Rejection, bool) {
	var storageErr *StorageError
	if db.translator == nil || !errors.As(err, &storageErr) {
		return nil, false
	}

	var rejection *errtranslator.Rejection
	if !errors.As(db.translator.Translate(storageErr.Err), &rejection) {
		return nil, false
	}
	return rejection, true
}

func (db *DB) isIdentityCollision(err error) bool {
	rejection, ok := db.rejection(err)
	return ok && rejection.Kind == errtranslator.Unique && rejection.PrimaryKey
}

// translateRejection maps a constraint the provider enforced into the
// validation vocabulary of obj's columns. Other errors are returned as is.
func (u *UnitOfWork) translateRejection(desc *schema.Descriptor, obj interface{}, err error) error {
	rejection, ok := u.db.rejection(err)
	if !ok || rejection.PrimaryKey {
		return err
	}

	column := desc.LookUpColumn(rejection.Table, rejection.Column)
	if column == nil && rejection.Constraint != "" {
		column = desc.LookUpColumn(rejection.Table, rejection.Constraint)
	}

	var failure *schema.FieldError
	if column != nil {
		failure = columnFailure(column, obj, rejection)
	} else {
		failure = &schema.FieldError{
			Table:   rejection.Table,
			Column:  rejection.Column,
			Rule:    ruleOf(rejection.Kind),
			Message: genericMessages[rejection.Kind],
		}
	}

	u.log.Warn(u.ctx, "constraint rejection mapped to validation failure: %v", rejection)
	return &ValidationError{Failures: []*schema.FieldError{failure}}
}

func columnFailure(column *schema.Column, obj interface{}, rejection *errtranslator.Rejection) *schema.FieldError {
	value := column.Value(obj)
	if rejection.Kind == errtranslator.Unique {
		return column.UniqueViolation(value)
	}

	// the column rules usually name the problem precisely
	if failure := column.ValidateValue(value); failure != nil {
		return failure
	}

	return &schema.FieldError{
		Table:   column.Table().Name,
		Column:  column.Name,
		Label:   column.Label,
		Rule:    ruleOf(rejection.Kind),
		Message: column.Label + " is not valid.",
	}
}

func ruleOf(kind errtranslator.Kind) schema.Rule {
	switch kind {
	case errtranslator.Unique:
		return schema.RuleUnique
	case errtranslator.NotNull:
		return schema.RuleRequired
	case errtranslator.TooLong:
		return schema.RuleLength
	case errtranslator.OutOfRange:
		return schema.RuleRange
	}
	return schema.RulePattern
}

var genericMessages = map[errtranslator.Kind]string{
	errtranslator.Unique:     "A value is already in use.",
	errtranslator.Check:      "A value is not in the correct format.",
	errtranslator.NotNull:    "A required value is missing.",
	errtranslator.TooLong:    "A value is too long.",
	errtranslator.OutOfRange: "A value is out of range.",
}
