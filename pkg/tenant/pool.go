// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package tenant resolves a wiki (tenant) to its SQL database. Each wiki is
// an isolated namespace: either its own database (the DSN contains the
// {wiki} placeholder) or a table prefix inside one shared database.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"

	"golang.org/x/sync/singleflight"

	_ "github.com/go-sql-driver/mysql" // MySQL/Vitess driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (also works with CockroachDB)
	_ "modernc.org/sqlite"             // Pure Go SQLite driver
)

// WikiPlaceholder is replaced by the wiki id in a per-wiki DSN.
const WikiPlaceholder = "{wiki}"

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = time.Minute
	pingTimeout            = 5 * time.Second

	// maxPrefixName bounds the readable part of a table prefix so the
	// longest table name stays under the 63 byte identifier limit.
	maxPrefixName = 24
)

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrInvalidWiki   = errors.New("invalid wiki id")
	ErrPoolClosed    = errors.New("tenant pool is closed")
	ErrWikiCollision = errors.New("wiki table prefix already in use")

	wikiIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)
)

// Driver identifies a database driver type.
type Driver string

const (
	DriverPostgres    Driver = "postgres"
	DriverCockroachDB Driver = "cockroachdb"
	DriverMySQL       Driver = "mysql"
	DriverVitess      Driver = "vitess"
	DriverSQLite      Driver = "sqlite"
)

// Config holds the tenant database configuration.
type Config struct {
	Driver Driver

	// DSN is the data source name. If it contains {wiki}, every wiki gets
	// its own database, e.g. "postgres://u:p@db:5432/{wiki}?sslmode=disable".
	DSN string

	// Connection pool settings, applied per database
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible pool defaults.
func DefaultConfig(driver Driver, dsn string) Config {
	return Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Conn is the database of one wiki.
type Conn struct {
	Wiki    string
	DB      *sql.DB
	Dialect Dialect

	prefix string
}

// Table returns the quoted name of a tenant table.
func (c *Conn) Table(name string) string {
	return c.Dialect.Quote(c.prefix + name)
}

// Pool lazily opens and caches one Conn per wiki.
type Pool struct {
	cfg        Config
	driverName string
	dialect    Dialect
	perWiki    bool

	// opening dedupes concurrent opens of one wiki or one DSN; mu is never
	// held across database round trips.
	opening singleflight.Group

	mu       sync.Mutex
	conns    map[string]*Conn
	dbs      map[string]*sql.DB // keyed by resolved DSN
	prefixes map[string]string  // table prefix -> wiki, shared database only
	closed   bool
}

// NewPool validates cfg and returns a pool. No connection is opened until
// the first Conn call.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	p := &Pool{
		cfg:     cfg,
		perWiki: strings.Contains(cfg.DSN, WikiPlaceholder),
		conns:    make(map[string]*Conn),
		dbs:      make(map[string]*sql.DB),
		prefixes: make(map[string]string),
	}

	switch cfg.Driver {
	case DriverPostgres, DriverCockroachDB:
		p.driverName, p.dialect = "pgx", PostgresDialect{}
	case DriverMySQL, DriverVitess:
		p.driverName, p.dialect = "mysql", MySQLDialect{}
	case DriverSQLite:
		p.driverName, p.dialect = "sqlite", SQLiteDialect{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	if p.cfg.MaxOpenConns == 0 {
		p.cfg.MaxOpenConns = defaultMaxOpenConns
	}
	if p.cfg.MaxIdleConns == 0 {
		p.cfg.MaxIdleConns = defaultMaxIdleConns
	}
	return p, nil
}

// Dialect returns the SQL dialect of the pool's driver.
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Conn returns the database of wiki, opening it and creating the schema on
// first use.
func (p *Pool) Conn(ctx context.Context, wiki string) (*Conn, error) {
	if !wikiIDPattern.MatchString(wiki) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWiki, wiki)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if c, ok := p.conns[wiki]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	v, err, _ := p.opening.Do(wiki, func() (any, error) {
		return p.openConn(ctx, wiki)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

func (p *Pool) openConn(ctx context.Context, wiki string) (*Conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[wiki]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	dsn := p.cfg.DSN
	prefix := ""
	if p.perWiki {
		dsn = strings.ReplaceAll(dsn, WikiPlaceholder, wiki)
	} else {
		prefix = TablePrefix(wiki)
	}

	db, err := p.database(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database for wiki %s: %w", wiki, err)
	}

	c := &Conn{Wiki: wiki, DB: db, Dialect: p.dialect, prefix: prefix}
	if err := ensureSchema(ctx, c); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if prefix != "" {
		if other, taken := p.prefixes[prefix]; taken && other != wiki {
			return nil, fmt.Errorf("%w: %q and %q", ErrWikiCollision, other, wiki)
		}
		p.prefixes[prefix] = wiki
	}
	p.conns[wiki] = c

	logger.Debug().
		Str("wiki", wiki).
		Str("driver", string(p.cfg.Driver)).
		Bool("per_wiki_database", p.perWiki).
		Msg("tenant: database ready")
	return c, nil
}

// database returns the shared *sql.DB of dsn, opening it once.
func (p *Pool) database(ctx context.Context, dsn string) (*sql.DB, error) {
	v, err, _ := p.opening.Do("dsn\x00"+dsn, func() (any, error) {
		p.mu.Lock()
		if db, ok := p.dbs[dsn]; ok {
			p.mu.Unlock()
			return db, nil
		}
		p.mu.Unlock()

		db, err := p.open(ctx, dsn)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			db.Close()
			return nil, ErrPoolClosed
		}
		p.dbs[dsn] = db
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

// TablePrefix returns the table name prefix of wiki in a shared database.
// The readable part is lower-cased and cut to a fixed length; the hash of
// the raw id keeps ids that differ only in case or in '-' and '_' apart.
func TablePrefix(wiki string) string {
	name := strings.ReplaceAll(strings.ToLower(wiki), "-", "_")
	if len(name) > maxPrefixName {
		name = name[:maxPrefixName]
	}
	return name + "_" + HashKey(wiki)[:8] + "_"
}

func (p *Pool) open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(p.driverName, dsn)
	if err != nil {
		return nil, err
	}

	if p.cfg.Driver == DriverSQLite {
		// One writer, and never drop the last connection: an in-memory
		// database disappears with it.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetMaxOpenConns(p.cfg.MaxOpenConns)
		db.SetMaxIdleConns(p.cfg.MaxIdleConns)
		db.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(p.cfg.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Wikis returns the wikis opened so far.
func (p *Pool) Wikis() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	wikis := make([]string, 0, len(p.conns))
	for w := range p.conns {
		wikis = append(wikis, w)
	}
	return wikis
}

// Close closes every database opened by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.conns = nil
	p.dbs = nil
	p.prefixes = nil
	return errors.Join(errs...)
}
