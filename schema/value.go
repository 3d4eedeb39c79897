package schema

import (
	"errors"
	"math"
	"time"
)

// ErrPayloadNotLoaded is returned when a large object read without its payload is written to a new row
var ErrPayloadNotLoaded = errors.New("large object payload not loaded")

// Absent-value sentinels for storage types without a native absent value.
// Writing a sentinel stores NULL; reading NULL yields the sentinel again.
const (
	AbsentInt    int64 = math.MinInt64
	AbsentString       = ""
)

var (
	AbsentFloat = -math.MaxFloat64
	AbsentTime  = time.Time{}
)

// ValueType is the closed set of column value types
type ValueType int

const (
	TypeInt ValueType = iota + 1
	TypeFloat
	TypeString
	TypeBool
	TypeTime
	TypeReference
	TypeLargeObject
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	case TypeReference:
		return "reference"
	case TypeLargeObject:
		return "large object"
	}
	return "unknown"
}

// Ref is a foreign reference to another persistent object, stored as the
// referenced identity plus its discriminator.
//
// Target holds the referenced instance. After a load it is an unpopulated
// stub carrying only identity and discriminator until it is hydrated.
type Ref struct {
	ID        int64
	ClassName string
	Target    interface{}
}

// IsAbsent reports whether the reference points nowhere
func (r Ref) IsAbsent() bool {
	return r.ID < 1
}

// LargeObject is a byte payload with metadata. Size, MimeType and Filename
// are always loaded; Payload is only present once Loaded is true.
type LargeObject struct {
	Payload  []byte
	MimeType string
	Filename string
	Size     int64
	Loaded   bool
}

// NewLargeObject returns a loaded large object for payload
func NewLargeObject(payload []byte, mimeType, filename string) LargeObject {
	return LargeObject{
		Payload:  payload,
		MimeType: mimeType,
		Filename: filename,
		Size:     int64(len(payload)),
		Loaded:   true,
	}
}

// IsAbsent reports whether there is no object at all, loaded or not
func (l LargeObject) IsAbsent() bool {
	return l.Size <= 0 && len(l.Payload) == 0 && l.MimeType == "" && l.Filename == ""
}

// IsAbsentValue applies the sentinel rules of the value's type
func IsAbsentValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case int64:
		return v == AbsentInt
	case float64:
		return v == AbsentFloat || math.IsNaN(v)
	case string:
		return v == AbsentString
	case bool:
		return false
	case time.Time:
		return v.IsZero()
	case Ref:
		return v.IsAbsent()
	case LargeObject:
		return v.IsAbsent()
	}
	return false
}
