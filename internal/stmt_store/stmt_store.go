package stmt_store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Stmt is a cached prepared statement; callers wait on prepared before use
type Stmt struct {
	*sql.Stmt
	prepared   chan struct{}
	prepareErr error
}

func (stmt *Stmt) Error() error {
	return stmt.prepareErr
}

func (stmt *Stmt) Close() error {
	<-stmt.prepared

	if stmt.Stmt != nil {
		return stmt.Stmt.Close()
	}
	return nil
}

// ConnPool is satisfied by *sql.DB
type ConnPool interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store caches prepared statements keyed by their SQL text
type Store interface {
	Prepare(ctx context.Context, conn ConnPool, query string) (*Stmt, error)
	Keys() []string
	Len() int
	Close()
}

const (
	defaultMaxSize = 1024
	defaultTTL     = time.Hour * 24
)

// New returns an LRU store; evicted statements are closed in the background
func New(size int, ttl time.Duration) Store {
	if size <= 0 {
		size = defaultMaxSize
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}

	onEvicted := func(k string, v *Stmt) {
		if v != nil {
			go v.Close()
		}
	}
	return &lruStore{lru: expirable.NewLRU[string, *Stmt](size, onEvicted, ttl)}
}

type lruStore struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, *Stmt]
}

func (s *lruStore) Keys() []string {
	return s.lru.Keys()
}

func (s *lruStore) Len() int {
	return s.lru.Len()
}

func (s *lruStore) Close() {
	s.lru.Purge()
}

func (s *lruStore) Prepare(ctx context.Context, conn ConnPool, query string) (*Stmt, error) {
	s.mu.Lock()
	if stmt, ok := s.lru.Get(query); ok && stmt != nil {
		s.mu.Unlock()
		<-stmt.prepared
		if stmt.prepareErr != nil {
			return nil, stmt.prepareErr
		}
		return stmt, nil
	}

	cacheStmt := &Stmt{prepared: make(chan struct{})}
	s.lru.Add(query, cacheStmt)
	s.mu.Unlock()

	defer close(cacheStmt.prepared)

	var err error
	if cacheStmt.Stmt, err = conn.PrepareContext(ctx, query); err != nil {
		cacheStmt.prepareErr = err
		s.lru.Remove(query)
		return nil, err
	}

	return cacheStmt, nil
}
