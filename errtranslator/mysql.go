package errtranslator

import (
	"regexp"
	"strings"
)

var mysqlErrCodes = map[int]Kind{
	1062: Unique,
	3819: Check,
	1048: NotNull,
	1406: TooLong,
	1264: OutOfRange,
}

var (
	mysqlDuplicateKey = regexp.MustCompile(`for key '([^']+)'`)
	mysqlColumnName   = regexp.MustCompile(`(?:column|Column) '([^']+)'`)
	mysqlCheckName    = regexp.MustCompile(`Check constraint '([^']+)'`)
)

type MysqlErrTranslator struct{}

type MysqlErr struct {
	Number  int    `json:"Number"`
	Message string `json:"Message"`
}

func (m *MysqlErrTranslator) Translate(err error) error {
	var mysqlErr MysqlErr
	if !decode(err, &mysqlErr) {
		return err
	}

	kind, ok := mysqlErrCodes[mysqlErr.Number]
	if !ok {
		return err
	}

	rejection := &Rejection{
		Kind:    kind,
		Code:    mysqlErr.Number,
		Message: mysqlErr.Message,
		Err:     err,
	}

	switch kind {
	case Unique:
		if m := mysqlDuplicateKey.FindStringSubmatch(mysqlErr.Message); m != nil {
			// mysql 8 reports "table.index"
			key := m[1]
			if dot := strings.LastIndexByte(key, '.'); dot >= 0 {
				rejection.Table, key = key[:dot], key[dot+1:]
			}
			rejection.Constraint = key
			rejection.Column = key
			rejection.PrimaryKey = key == "PRIMARY"
		}
	case Check:
		if m := mysqlCheckName.FindStringSubmatch(mysqlErr.Message); m != nil {
			rejection.Constraint = m[1]
		}
	default:
		if m := mysqlColumnName.FindStringSubmatch(mysqlErr.Message); m != nil {
			rejection.Column = m[1]
		}
	}

	return rejection
}
