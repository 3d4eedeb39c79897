package polyorm

import (
	"database/sql"
	"time"

	"github.com/polyorm/polyorm/logger"
	"github.com/polyorm/polyorm/schema"
)

const (
	// DefaultRootTable holds the columns every persistent object shares
	DefaultRootTable       = "persistent_objects"
	defaultIdentityRetries = 3
)

// Config polyorm config
type Config struct {
	// Dialector database dialector
	Dialector
	// ConnPool an already opened pool; when nil the dialector opens one
	ConnPool *sql.DB

	// Logger
	Logger logger.Interface
	// NamingStrategy tables, columns naming strategy
	NamingStrategy schema.Namer
	// Registry maps type keys to descriptors, created from RootTable when nil
	Registry *schema.Registry
	// RootTable defaults to DefaultRootTable; ignored when Registry is set
	RootTable string
	// NowFunc the function to be used when stamping last modified times
	NowFunc func() time.Time

	// StatementTimeout bounds every statement, zero means no timeout
	StatementTimeout time.Duration
	// MaxIdleConnections sets the maximum number of connections in the idle connection pool
	MaxIdleConnections int
	// MaxOpenConnections sets the maximum number of open connections to the database
	MaxOpenConnections int
	// ConnMaxLifetime sets the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// PrepareStmt executes every statement as a cached prepared statement
	PrepareStmt        bool
	PrepareStmtMaxSize int
	PrepareStmtTTL     time.Duration

	// IdentityRetries bounds how often an insert that owns its transaction
	// retries after another writer took the same new identity
	IdentityRetries int
}

// Option configures Config in Open
type Option func(c *Config)

// WithLogger set logger.
func WithLogger(l logger.Interface) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithNamingStrategy set schema namer.
func WithNamingStrategy(namer schema.Namer) Option {
	return func(c *Config) {
		c.NamingStrategy = namer
	}
}

// WithRegistry set the type registry.
func WithRegistry(r *schema.Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithStatementTimeout set the per statement timeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.StatementTimeout = d
	}
}

// WithPrepareStmt enable the prepared statement cache.
func WithPrepareStmt(size int, ttl time.Duration) Option {
	return func(c *Config) {
		c.PrepareStmt = true
		c.PrepareStmtMaxSize = size
		c.PrepareStmtTTL = ttl
	}
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logger.Default
	}

	if c.NamingStrategy == nil {
		c.NamingStrategy = schema.NamingStrategy{}
	}

	if c.RootTable == "" {
		c.RootTable = DefaultRootTable
	}

	if c.NowFunc == nil {
		c.NowFunc = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}

	if c.IdentityRetries <= 0 {
		c.IdentityRetries = defaultIdentityRetries
	}
}
