package polyorm

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/polyorm/polyorm/errtranslator"
	"github.com/polyorm/polyorm/internal/stmt_store"
	"github.com/polyorm/polyorm/logger"
	"github.com/polyorm/polyorm/schema"
)

// DB is the process wide handle: connection pool, registry and config.
// It is safe for concurrent use; all work goes through a UnitOfWork.
type DB struct {
	*Config

	translator errtranslator.ErrTranslator
	stmts      stmt_store.Store
	root       rootColumns
	// numericPlaceholder is set for dialects binding $n parameters
	numericPlaceholder *regexp.Regexp
}

// physical names of the root columns the engine reads and writes itself
type rootColumns struct {
	table            string
	className        string
	isDeleted        string
	concurrencyToken string
}

// Open initialize db based on dialector
func Open(dialector Dialector, config *Config, opts ...Option) (db *DB, err error) {
	if config == nil {
		config = &Config{}
	}

	for _, opt := range opts {
		opt(config)
	}

	if dialector != nil {
		config.Dialector = dialector
	}
	if config.Dialector == nil {
		return nil, errors.New("polyorm: dialector is required")
	}

	config.applyDefaults()

	if config.Registry == nil {
		if config.Registry, err = NewRegistry(config.NamingStrategy, config.RootTable); err != nil {
			return nil, err
		}
	}

	db = &DB{Config: config, translator: config.Dialector.Translator()}
	if db.root, err = lookUpRootColumns(config.Registry); err != nil {
		return nil, err
	}

	if config.Dialector.BindVar(1) != "?" {
		db.numericPlaceholder = logger.NumericPlaceholder
	}

	if config.ConnPool == nil {
		if config.ConnPool, err = config.Dialector.Open(); err != nil {
			return nil, err
		}
	}

	if config.MaxIdleConnections > 0 {
		config.ConnPool.SetMaxIdleConns(config.MaxIdleConnections)
	}
	if config.MaxOpenConnections > 0 {
		config.ConnPool.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.ConnMaxLifetime > 0 {
		config.ConnPool.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if config.PrepareStmt {
		db.stmts = stmt_store.New(config.PrepareStmtMaxSize, config.PrepareStmtTTL)
	}
	return db, nil
}

func lookUpRootColumns(r *schema.Registry) (rootColumns, error) {
	desc, err := r.Descriptor(r.RootKey())
	if err != nil {
		return rootColumns{}, err
	}

	root := rootColumns{table: desc.Root().Name}
	for _, column := range desc.Root().Columns {
		switch column.Name {
		case columnClassName:
			root.className = column.DBName
		case columnIsDeleted:
			root.isDeleted = column.DBName
		case columnConcurrencyToken:
			root.concurrencyToken = column.DBName
		}
	}

	if root.className == "" || root.isDeleted == "" || root.concurrencyToken == "" {
		return rootColumns{}, fmt.Errorf("%w: root type %q lacks the persistent object columns", ErrBrokenRegistry, r.RootKey())
	}
	return root, nil
}

// Register adds types to the registry, see Type and Abstract
func (db *DB) Register(regs ...schema.TypeRegistration) error {
	for _, reg := range regs {
		if err := db.Registry.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// Validate builds every registered descriptor; call it once after registration
func (db *DB) Validate() error {
	return db.Registry.Validate()
}

// Close releases cached statements and the connection pool
func (db *DB) Close() error {
	if db.stmts != nil {
		db.stmts.Close()
	}
	return db.ConnPool.Close()
}

// Transaction runs fc in a new unit of work inside one transaction
func (db *DB) Transaction(ctx context.Context, fc func(u *UnitOfWork) error, opts ...UnitOfWorkOption) error {
	u := db.UnitOfWork(ctx, opts...)
	defer u.Close()
	return u.Transaction(fc)
}
