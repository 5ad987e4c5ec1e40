// Package sqlexec implements the SQL executor (C6): a connection pool keyed
// by environment, collection/by-id reads through the odata translator, and
// stored-procedure calls for writes.
package sqlexec

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/microsoft/go-mssqldb"
)

// Pool hands out a *sql.DB per environment, opening it lazily on first use
// and reusing it afterwards (database/sql already pools connections
// internally; this layer pools the *sql.DB handles themselves).
type Pool struct {
	min, max int

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewPool creates a Pool that caps each environment's handle at max open
// connections and at min idle connections.
func NewPool(min, max int) *Pool {
	return &Pool{min: min, max: max, dbs: make(map[string]*sql.DB)}
}

// Get returns the pooled *sql.DB for connectionString, opening one if this
// is the first call for it. The environment name is used only for the error
// message; the handle is keyed by connection string so two environments
// sharing a connection string share a pool.
func (p *Pool) Get(environment, connectionString string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[connectionString]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlserver", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open connection for environment %s: %w", environment, err)
	}
	db.SetMaxOpenConns(p.max)
	db.SetMaxIdleConns(p.min)
	p.dbs[connectionString] = db
	return db, nil
}

// Inject registers db directly under connectionString, bypassing sql.Open.
// Used by tests to substitute a sqlmock-backed *sql.DB for the real driver.
func (p *Pool) Inject(connectionString string, db *sql.DB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dbs[connectionString] = db
}

// Close closes every pooled handle, for graceful shutdown.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, db := range p.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
