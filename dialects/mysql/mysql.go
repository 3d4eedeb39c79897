package mysql

import (
	"database/sql"

	"github.com/go-sql-driver/mysql"

	"github.com/polyorm/polyorm/errtranslator"
)

// DriverName is the database/sql driver used by the dialector
const DriverName = "mysql"

type Dialector struct {
	DSN string
}

func Open(dsn string) *Dialector {
	return &Dialector{DSN: dsn}
}

// New builds the dialector from DSN parts
func New(dsn DSN) *Dialector {
	return &Dialector{DSN: dsn.String()}
}

func (Dialector) Name() string {
	return "mysql"
}

// Open validates the DSN with the driver's parser before opening the pool
func (dialector Dialector) Open() (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dialector.DSN)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

func (Dialector) BindVar(n int) string {
	return "?"
}

func (Dialector) Translator() errtranslator.ErrTranslator {
	return &errtranslator.MysqlErrTranslator{}
}
