package postgres

import (
	"database/sql"
	"strconv"

	// import postgres driver
	_ "github.com/lib/pq"

	"github.com/polyorm/polyorm/errtranslator"
)

// DriverName is the database/sql driver used by the dialector
const DriverName = "postgres"

type Dialector struct {
	DSN string
}

func Open(dsn string) *Dialector {
	return &Dialector{DSN: dsn}
}

func (Dialector) Name() string {
	return "postgres"
}

func (dialector Dialector) Open() (*sql.DB, error) {
	return sql.Open(DriverName, dialector.DSN)
}

func (Dialector) BindVar(n int) string {
	return "$" + strconv.Itoa(n)
}

func (Dialector) Translator() errtranslator.ErrTranslator {
	return &errtranslator.PostgresErrTranslator{}
}
