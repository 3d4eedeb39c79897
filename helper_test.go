package polyorm_test

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/polyorm/polyorm"
	"github.com/polyorm/polyorm/dialects/sqlite"
	"github.com/polyorm/polyorm/logger"
	"github.com/polyorm/polyorm/schema"
)

type Party struct {
	polyorm.Model
	Name string
	Code string
}

func (p *Party) party() *Party { return p }

type partyLevel interface{ party() *Party }

type Customer struct {
	Party
	Email    string
	Credit   float64
	Since    time.Time
	Active   bool
	Referrer schema.Ref
	Avatar   schema.LargeObject
}

type Supplier struct {
	Party
	Rating int64

	saved     int
	populated int
}

var errBlocked = errors.New("supplier is blocked")

func (s *Supplier) BeforeSave(*polyorm.UnitOfWork) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Code == "BLOCKED" {
		return errBlocked
	}
	return nil
}

func (s *Supplier) AfterSave(*polyorm.UnitOfWork) error {
	s.saved++
	return nil
}

func (s *Supplier) AfterPopulate(*polyorm.UnitOfWork) error {
	s.populated++
	return nil
}

var now = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func registerTypes(t *testing.T, db *polyorm.DB) {
	require.NoError(t, db.Register(
		polyorm.Abstract("crm.Party", "",
			schema.String("Name", func(p partyLevel) *string { return &p.party().Name }).Required().Length(1, 50),
			schema.String("Code", func(p partyLevel) *string { return &p.party().Code }).Unique(),
		),
		polyorm.Type("crm.Customer", "crm.Party", func() *Customer { return &Customer{} },
			schema.String("Email", func(c *Customer) *string { return &c.Email }).Match(`^[^@\s]+@[^@\s]+$`, "").Labeled("E-mail"),
			schema.Float("Credit", func(c *Customer) *float64 { return &c.Credit }).Range(0, 10000).Optional(),
			schema.Time("Since", func(c *Customer) *time.Time { return &c.Since }).Optional(),
			schema.Bool("Active", func(c *Customer) *bool { return &c.Active }),
			schema.Reference("Referrer", func(c *Customer) *schema.Ref { return &c.Referrer }).Optional(),
			schema.Blob("Avatar", func(c *Customer) *schema.LargeObject { return &c.Avatar }).Optional(),
		),
		polyorm.Type("crm.Supplier", "crm.Party", func() *Supplier { return &Supplier{} },
			schema.Int("Rating", func(s *Supplier) *int64 { return &s.Rating }).Range(1, 5).Optional(),
		),
	))
	require.NoError(t, db.Validate())
}

var ddl = []string{
	`CREATE TABLE persistent_objects (
		id INTEGER PRIMARY KEY,
		class_name TEXT NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		order_hint INTEGER,
		concurrency_token INTEGER NOT NULL,
		last_modified_at DATETIME,
		last_modified_by TEXT
	)`,
	`CREATE TABLE parties (id INTEGER PRIMARY KEY, name TEXT NOT NULL, code TEXT)`,
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		email TEXT UNIQUE,
		credit REAL,
		since DATETIME,
		active BOOLEAN,
		referrer INTEGER,
		referrer_class_name TEXT,
		avatar BLOB,
		avatar_mime_type TEXT,
		avatar_filename TEXT
	)`,
	`CREATE TABLE suppliers (id INTEGER PRIMARY KEY, rating INTEGER CHECK (rating IS NULL OR rating BETWEEN 1 AND 5))`,
}

// openSQLite returns a db on a fresh in-memory database with the crm schema
func openSQLite(t *testing.T) *polyorm.DB {
	db, err := polyorm.Open(sqlite.Open(":memory:"), &polyorm.Config{
		Logger:  logger.Discard,
		NowFunc: func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range ddl {
		_, err := db.ConnPool.Exec(stmt)
		require.NoError(t, err)
	}

	registerTypes(t, db)
	return db
}

// openMock returns a db whose statements are checked by sqlmock
func openMock(t *testing.T, dialector polyorm.Dialector, opts ...polyorm.Option) (*polyorm.DB, sqlmock.Sqlmock) {
	var (
		conn *sql.DB
		mock sqlmock.Sqlmock
		err  error
	)
	conn, mock, err = sqlmock.New()
	require.NoError(t, err)

	if dialector == nil {
		dialector = sqlite.Open(":memory:")
	}

	db, err := polyorm.Open(dialector, &polyorm.Config{
		ConnPool: conn,
		Logger:   logger.Discard,
		NowFunc:  func() time.Time { return now },
	}, opts...)
	require.NoError(t, err)

	registerTypes(t, db)
	return db, mock
}

func count(t *testing.T, db *polyorm.DB, table string) int {
	var n int
	require.NoError(t, db.ConnPool.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
