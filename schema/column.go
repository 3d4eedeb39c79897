package schema

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"time"
)

// Auxiliary column suffixes. A reference column X is stored as X and
// X_class_name; a large object column X as X, X_mime_type and X_filename.
const (
	SuffixClassName = "class_name"
	SuffixMimeType  = "mime_type"
	SuffixFilename  = "filename"
)

// Column describes one persisted field of one table level.
type Column struct {
	// Name is the logical name, DBName the physical column
	Name   string
	DBName string
	// Label is the friendly name used in validation messages
	Label string
	Type  ValueType

	AllowsAbsent bool
	IsUnique     bool

	// MinAllowed/MaxAllowed bound Int columns (as int64), Float columns (as float64) and
	// Time columns (as time.Time); nil means unbounded
	MinAllowed interface{}
	MaxAllowed interface{}
	// MinLength/MaxLength bound String columns; MaxLength 0 means unbounded
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	// PatternMessage replaces the default format message, "%s" is the label
	PatternMessage string

	// aux holds the physical names of the auxiliary columns
	aux     []string
	field   func(obj interface{}) interface{}
	accepts func(obj interface{}) bool
	table   *Table
}

func newColumn[T any, F any](name string, typ ValueType, field func(T) *F) *Column {
	return &Column{
		Name: name,
		Type: typ,
		field: func(obj interface{}) interface{} {
			return field(obj.(T))
		},
		accepts: func(obj interface{}) bool {
			_, ok := obj.(T)
			return ok
		},
	}
}

// Int declares an int64 column; T is usually an interface the owning level implements
func Int[T any](name string, field func(T) *int64) *Column {
	return newColumn(name, TypeInt, field)
}

// Float declares a float64 column
func Float[T any](name string, field func(T) *float64) *Column {
	return newColumn(name, TypeFloat, field)
}

// String declares a string column; with MinLength 0 an empty string is allowed
func String[T any](name string, field func(T) *string) *Column {
	return newColumn(name, TypeString, field)
}

// Bool declares a bool column, which can never be absent
func Bool[T any](name string, field func(T) *bool) *Column {
	c := newColumn(name, TypeBool, field)
	c.AllowsAbsent = true
	return c
}

// Time declares a time column; the zero time is the absent value
func Time[T any](name string, field func(T) *time.Time) *Column {
	return newColumn(name, TypeTime, field)
}

// Reference declares a foreign-key column to another persistent object
func Reference[T any](name string, field func(T) *Ref) *Column {
	return newColumn(name, TypeReference, field)
}

// Blob declares a large object column whose payload is fetched on demand
func Blob[T any](name string, field func(T) *LargeObject) *Column {
	return newColumn(name, TypeLargeObject, field)
}

// Optional allows the absent value
func (c *Column) Optional() *Column {
	c.AllowsAbsent = true
	return c
}

// Required rejects the absent value; for strings this implies MinLength >= 1
func (c *Column) Required() *Column {
	c.AllowsAbsent = false
	if c.Type == TypeString && c.MinLength < 1 {
		c.MinLength = 1
	}
	return c
}

// Unique rejects values already used by another non-deleted row
func (c *Column) Unique() *Column {
	c.IsUnique = true
	return c
}

// Range bounds numeric columns to [min, max]; use IntRange for int64 bounds beyond 2^53
func (c *Column) Range(min, max float64) *Column {
	if c.Type == TypeInt {
		return c.IntRange(int64(min), int64(max))
	}
	c.MinAllowed, c.MaxAllowed = min, max
	return c
}

// IntRange bounds Int columns to [min, max]
func (c *Column) IntRange(min, max int64) *Column {
	c.MinAllowed, c.MaxAllowed = min, max
	return c
}

// Between bounds time columns to [min, max]
func (c *Column) Between(min, max time.Time) *Column {
	c.MinAllowed, c.MaxAllowed = min, max
	return c
}

// Length bounds string length in runes; max 0 is unbounded
func (c *Column) Length(min, max int) *Column {
	c.MinLength, c.MaxLength = min, max
	return c
}

// Match requires strings to match pattern; message may be empty
func (c *Column) Match(pattern string, message string) *Column {
	c.Pattern = regexp.MustCompile(pattern)
	c.PatternMessage = message
	return c
}

// Labeled overrides the friendly name
func (c *Column) Labeled(label string) *Column {
	c.Label = label
	return c
}

// Table returns the owning table level
func (c *Column) Table() *Table {
	return c.table
}

// AllowsAbsentValue applies the rule that strings with MinLength 0 implicitly allow the absent value
func (c *Column) AllowsAbsentValue() bool {
	return c.AllowsAbsent || (c.Type == TypeString && c.MinLength == 0)
}

// Accepts reports whether obj can be bound by this column
func (c *Column) Accepts(obj interface{}) bool {
	return c.accepts(obj)
}

// Ptr returns the pointer to the bound field of obj
func (c *Column) Ptr(obj interface{}) interface{} {
	return c.field(obj)
}

// Value returns the current value of the bound field of obj
func (c *Column) Value(obj interface{}) interface{} {
	switch p := c.field(obj).(type) {
	case *int64:
		return *p
	case *float64:
		return *p
	case *string:
		return *p
	case *bool:
		return *p
	case *time.Time:
		return *p
	case *Ref:
		return *p
	case *LargeObject:
		return *p
	}
	return nil
}

// IsAbsent reports whether value is this column's absent value
func (c *Column) IsAbsent(value interface{}) bool {
	return IsAbsentValue(value)
}

// Literal converts a value into a storage-ready driver value; absent values become NULL
func (c *Column) Literal(value interface{}) (driver.Value, error) {
	if c.IsAbsent(value) {
		return nil, nil
	}

	switch v := value.(type) {
	case int64, float64, string, bool:
		return v, nil
	case time.Time:
		return v.UTC(), nil
	case Ref:
		return v.ID, nil
	case LargeObject:
		return v.Payload, nil
	}
	return nil, fmt.Errorf("column %v: unsupported value %T", c.Name, value)
}

// Width is the number of select-list positions this column occupies
func (c *Column) Width() int {
	switch c.Type {
	case TypeReference:
		return 2
	case TypeLargeObject:
		return 3
	}
	return 1
}

// SelectExprs lists the select expressions for this column under alias; payload bytes are never selected
func (c *Column) SelectExprs(alias string) []string {
	col := alias + "." + c.DBName
	switch c.Type {
	case TypeReference:
		return []string{col, alias + "." + c.aux[0]}
	case TypeLargeObject:
		return []string{"LENGTH(" + col + ")", alias + "." + c.aux[0], alias + "." + c.aux[1]}
	}
	return []string{col}
}

// Assignment is one physical column and the value written to it
type Assignment struct {
	Column string
	Value  driver.Value
}

// Assignments expands the bound field of obj into physical column values.
// On update a large object whose payload was never loaded keeps its stored bytes;
// on insert it is ErrPayloadNotLoaded, its bytes only exist in the source row.
func (c *Column) Assignments(obj interface{}, insert bool) ([]Assignment, error) {
	value := c.Value(obj)
	literal, err := c.Literal(value)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case Ref:
		var className driver.Value
		if !v.IsAbsent() {
			className = v.ClassName
		}
		return []Assignment{{c.DBName, literal}, {c.aux[0], className}}, nil
	case LargeObject:
		var mimeType, filename driver.Value
		if !v.IsAbsent() {
			mimeType, filename = v.MimeType, v.Filename
		}
		meta := []Assignment{{c.aux[0], mimeType}, {c.aux[1], filename}}
		if !v.Loaded && !v.IsAbsent() {
			if !insert {
				return meta, nil
			}
			if v.Size > 0 {
				return nil, fmt.Errorf("%w: column %v holds %d bytes", ErrPayloadNotLoaded, c.Name, v.Size)
			}
		}
		return append([]Assignment{{c.DBName, literal}}, meta...), nil
	}
	return []Assignment{{c.DBName, literal}}, nil
}

// StubFunc builds the unpopulated instance a loaded reference points at
type StubFunc func(className string, id int64) (interface{}, error)

// Scan assigns Width() raw provider values to the bound field of obj
func (c *Column) Scan(obj interface{}, raw []interface{}, stub StubFunc) error {
	var err error
	switch p := c.field(obj).(type) {
	case *int64:
		v, ok, e := asInt64(raw[0])
		if err = e; ok {
			*p = v
		} else {
			*p = AbsentInt
		}
	case *float64:
		v, ok, e := asFloat64(raw[0])
		if err = e; ok {
			*p = v
		} else {
			*p = AbsentFloat
		}
	case *string:
		v, _, e := asString(raw[0])
		err, *p = e, v
	case *bool:
		v, _, e := asBool(raw[0])
		err, *p = e, v
	case *time.Time:
		v, ok, e := asTime(raw[0])
		if err = e; ok {
			*p = v
		} else {
			*p = AbsentTime
		}
	case *Ref:
		err = c.scanRef(p, raw, stub)
	case *LargeObject:
		err = c.scanLargeObject(p, raw)
	default:
		err = fmt.Errorf("unsupported field %T", p)
	}

	if err != nil {
		return fmt.Errorf("column %v: %w", c.DBName, err)
	}
	return nil
}

func (c *Column) scanRef(p *Ref, raw []interface{}, stub StubFunc) error {
	id, ok, err := asInt64(raw[0])
	if err != nil {
		return err
	}
	if !ok || id < 1 {
		*p = Ref{}
		return nil
	}

	className, _, err := asString(raw[1])
	if err != nil {
		return err
	}

	ref := Ref{ID: id, ClassName: className}
	if stub != nil {
		if ref.Target, err = stub(className, id); err != nil {
			return err
		}
	}
	*p = ref
	return nil
}

func (c *Column) scanLargeObject(p *LargeObject, raw []interface{}) error {
	size, ok, err := asInt64(raw[0])
	if err != nil {
		return err
	}
	mimeType, _, err := asString(raw[1])
	if err != nil {
		return err
	}
	filename, _, err := asString(raw[2])
	if err != nil {
		return err
	}

	if !ok {
		size = 0
	}
	*p = LargeObject{Size: size, MimeType: mimeType, Filename: filename}
	return nil
}

// ScanPayload fills in the payload of a large object column
func (c *Column) ScanPayload(obj interface{}, raw interface{}) error {
	p, ok := c.field(obj).(*LargeObject)
	if !ok {
		return fmt.Errorf("column %v is not a large object", c.DBName)
	}

	payload, _, err := asBytes(raw)
	if err != nil {
		return fmt.Errorf("column %v: %w", c.DBName, err)
	}
	p.Payload = payload
	p.Size = int64(len(payload))
	p.Loaded = true
	return nil
}
