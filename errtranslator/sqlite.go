package errtranslator

import (
	"strings"
)

// sqlite extended result codes
var sqliteErrCodes = map[int]Kind{
	275:  Check,   // SQLITE_CONSTRAINT_CHECK
	1299: NotNull, // SQLITE_CONSTRAINT_NOTNULL
	1555: Unique,  // SQLITE_CONSTRAINT_PRIMARYKEY
	2067: Unique,  // SQLITE_CONSTRAINT_UNIQUE
}

type SqliteErrTranslator struct{}

type SqliteErr struct {
	Code         int `json:"Code"`
	ExtendedCode int `json:"ExtendedCode"`
	SystemErrno  int `json:"SystemErrno"`
}

// Translate parses "UNIQUE constraint failed: customers.email" style messages
func (s *SqliteErrTranslator) Translate(err error) error {
	var sqliteErr SqliteErr
	if !decode(err, &sqliteErr) {
		return err
	}

	kind, ok := sqliteErrCodes[sqliteErr.ExtendedCode]
	if !ok {
		return err
	}

	rejection := &Rejection{
		Kind:       kind,
		Code:       sqliteErr.ExtendedCode,
		PrimaryKey: sqliteErr.ExtendedCode == 1555,
		Message:    err.Error(),
		Err:        err,
	}

	if idx := strings.Index(rejection.Message, "constraint failed: "); idx >= 0 {
		target := rejection.Message[idx+len("constraint failed: "):]
		if kind == Check {
			rejection.Constraint = target
		} else {
			// composite indexes report "t.a, t.b"; the first column is enough to name the field
			target = strings.TrimSpace(strings.SplitN(target, ",", 2)[0])
			if dot := strings.IndexByte(target, '.'); dot >= 0 {
				rejection.Table, rejection.Column = target[:dot], target[dot+1:]
			} else {
				rejection.Column = target
			}
		}
	}

	if rejection.Column == "id" && kind == Unique {
		rejection.PrimaryKey = true
	}

	return rejection
}
