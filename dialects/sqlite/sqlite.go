package sqlite

import (
	"database/sql"
	"strings"

	// import sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/polyorm/polyorm/errtranslator"
)

// DriverName is the database/sql driver used by the dialector
const DriverName = "sqlite3"

type Dialector struct {
	DSN string
}

func Open(dsn string) *Dialector {
	return &Dialector{DSN: dsn}
}

func (Dialector) Name() string {
	return "sqlite"
}

// Open opens the pool; an in-memory database lives in a single connection
func (dialector Dialector) Open() (*sql.DB, error) {
	db, err := sql.Open(DriverName, dialector.DSN)
	if err != nil {
		return nil, err
	}

	if isMemory(dialector.DSN) {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func (Dialector) BindVar(n int) string {
	return "?"
}

func (Dialector) Translator() errtranslator.ErrTranslator {
	return &errtranslator.SqliteErrTranslator{}
}

func isMemory(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
