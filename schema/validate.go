package schema

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"
	"unicode/utf8"
)

// Rule names the constraint a value violated
type Rule string

const (
	RuleRequired Rule = "required"
	RuleRange    Rule = "range"
	RuleLength   Rule = "length"
	RulePattern  Rule = "pattern"
	RuleUnique   Rule = "unique"
)

// FieldError is one column's violation, Message is ready for end users
type FieldError struct {
	Table   string
	Column  string
	Label   string
	Rule    Rule
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// UniqueChecker counts other non-deleted rows holding value in column
type UniqueChecker interface {
	CountDuplicates(ctx context.Context, column *Column, ownerID int64, value driver.Value) (int64, error)
}

func (c *Column) fail(rule Rule, format string, args ...interface{}) *FieldError {
	var table string
	if c.table != nil {
		table = c.table.Name
	}
	return &FieldError{
		Table:   table,
		Column:  c.Name,
		Label:   c.Label,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidateValue checks the rules that need no storage access
func (c *Column) ValidateValue(value interface{}) *FieldError {
	if c.IsAbsent(value) {
		if !c.AllowsAbsentValue() {
			return c.fail(RuleRequired, "%s is required.", c.Label)
		}
		return nil
	}

	switch v := value.(type) {
	case int64:
		return checkNumber(c, v)
	case float64:
		return checkNumber(c, v)
	case time.Time:
		return c.checkTime(v)
	case string:
		return c.checkString(v)
	}
	return nil
}

// checkNumber compares in the column's own numeric type, int64 bounds never pass through float64
func checkNumber[N int64 | float64](c *Column, v N) *FieldError {
	min, hasMin := c.MinAllowed.(N)
	max, hasMax := c.MaxAllowed.(N)

	switch {
	case hasMin && hasMax && (v < min || v > max):
		return c.fail(RuleRange, "%s must be between %v and %v.", c.Label, min, max)
	case hasMin && !hasMax && v < min:
		return c.fail(RuleRange, "%s must be at least %v.", c.Label, min)
	case hasMax && !hasMin && v > max:
		return c.fail(RuleRange, "%s must be at most %v.", c.Label, max)
	}
	return nil
}

func (c *Column) checkTime(v time.Time) *FieldError {
	const layout = "2006-01-02 15:04"
	min, hasMin := c.MinAllowed.(time.Time)
	max, hasMax := c.MaxAllowed.(time.Time)

	switch {
	case hasMin && hasMax && (v.Before(min) || v.After(max)):
		return c.fail(RuleRange, "%s must be between %s and %s.", c.Label, min.Format(layout), max.Format(layout))
	case hasMin && !hasMax && v.Before(min):
		return c.fail(RuleRange, "%s must not be before %s.", c.Label, min.Format(layout))
	case hasMax && !hasMin && v.After(max):
		return c.fail(RuleRange, "%s must not be after %s.", c.Label, max.Format(layout))
	}
	return nil
}

func (c *Column) checkString(v string) *FieldError {
	length := utf8.RuneCountInString(v)

	switch {
	case c.MaxLength > 0 && c.MinLength > 0 && (length < c.MinLength || length > c.MaxLength):
		if c.MinLength == c.MaxLength {
			return c.fail(RuleLength, "%s must be exactly %d characters long.", c.Label, c.MinLength)
		}
		return c.fail(RuleLength, "%s must be between %d and %d characters long.", c.Label, c.MinLength, c.MaxLength)
	case c.MaxLength > 0 && length > c.MaxLength:
		return c.fail(RuleLength, "%s must be at most %d characters long.", c.Label, c.MaxLength)
	case c.MinLength > 0 && length < c.MinLength:
		return c.fail(RuleLength, "%s must be at least %d characters long.", c.Label, c.MinLength)
	}

	if c.Pattern != nil && !c.Pattern.MatchString(v) {
		if c.PatternMessage != "" {
			return c.fail(RulePattern, c.PatternMessage, c.Label)
		}
		return c.fail(RulePattern, "%s is not in the correct format.", c.Label)
	}
	return nil
}

// Validate checks the bound value of owner, including uniqueness when
// checker is not nil. A non-nil error is a storage failure, not a violation.
func (c *Column) Validate(ctx context.Context, checker UniqueChecker, owner interface{}, ownerID int64) (*FieldError, error) {
	value := c.Value(owner)
	if failure := c.ValidateValue(value); failure != nil {
		return failure, nil
	}

	if !c.IsUnique || checker == nil || c.IsAbsent(value) {
		return nil, nil
	}

	literal, err := c.Literal(value)
	if err != nil {
		return nil, err
	}

	count, err := checker.CountDuplicates(ctx, c, ownerID, literal)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return c.UniqueViolation(value), nil
	}
	return nil, nil
}

// UniqueViolation is the failure reported when value is already taken
func (c *Column) UniqueViolation(value interface{}) *FieldError {
	switch v := value.(type) {
	case nil:
		return c.fail(RuleUnique, "%s is already in use.", c.Label)
	case Ref:
		return c.fail(RuleUnique, "%s is already in use.", c.Label)
	case LargeObject:
		return c.fail(RuleUnique, "%s is already in use.", c.Label)
	default:
		return c.fail(RuleUnique, "%s \"%v\" is already in use.", c.Label, v)
	}
}
