package bucketstore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Options configures a DB opened with Open.
type Options struct {
	// Logger receives structured log entries for every request. A nil
	// Logger gets a warn-level default.
	Logger *logrus.Logger

	// Triggers resolves the pre/post callback names buckets declare. A
	// nil Triggers is treated as an empty registry: buckets that name
	// any trigger fail validation with NotFunction.
	Triggers *TriggerRegistry

	// MaxOpenConns and MaxIdleConns tune the underlying connection pool.
	// Zero uses database/sql's defaults.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// CacheSize bounds the number of bucket descriptors held in the LRU
	// catalog cache. Zero uses a default of 256.
	CacheSize int

	// QueryTimeout bounds every request's SQL transaction with
	// context.WithTimeout. Zero disables the deadline. Expiry surfaces
	// to the caller as a transient error.
	QueryTimeout time.Duration

	// Verbose logs every bound statement at debug level (array argument
	// shapes only; scalar values are elided).
	Verbose bool

	// IsTesting disables QueryTimeout regardless of its value, so tests
	// that step through a debugger or run under a race detector don't
	// trip a deadline meant for production traffic.
	IsTesting bool
}

// DB is a handle to one schema-aware object store backed by a Postgres
// database. It owns the connection pool, the trigger registry and the
// bucket descriptor cache; all requests are issued through it.
type DB struct {
	sqlx     *sqlx.DB
	log      Logger
	triggers *TriggerRegistry
	catalog  *catalog

	sessions     []*Request
	sessionsLock sync.Mutex

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64

	etagSeedVal  uint64
	queryTimeout time.Duration
	verbose      bool
	isTesting    bool
}

// etagSeed returns the per-instance seed mixed into every computeEtag
// call, so etags computed by different DB instances over identical
// (bucket, key, value) tuples don't collide when compared across
// deployments that were never meant to interoperate.
func (db *DB) etagSeed() uint64 {
	return db.etagSeedVal
}

// Open connects to the Postgres database at dsn, ensures the
// buckets_config relation exists, and returns a ready DB handle.
func Open(ctx context.Context, dsn string, opt Options) (*DB, error) {
	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errInternal("", fmt.Errorf("opening database: %w", err))
	}
	if opt.MaxOpenConns != 0 {
		conn.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns != 0 {
		conn.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLifetime != 0 {
		conn.SetConnMaxLifetime(opt.ConnMaxLifetime)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, classifyDBError("", fmt.Errorf("connecting to database: %w", err))
	}

	triggers := opt.Triggers
	if triggers == nil {
		triggers = NewTriggerRegistry()
	}

	cacheSize := opt.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	lc, err := newCatalogCache(cacheSize)
	if err != nil {
		return nil, errInternal("", fmt.Errorf("allocating descriptor cache: %w", err))
	}

	var seedBuf [8]byte
	if _, err := rand.Read(seedBuf[:]); err != nil {
		return nil, errInternal("", fmt.Errorf("seeding etag hasher: %w", err))
	}

	db := &DB{
		sqlx:         conn,
		log:          newLogger(opt.Logger),
		triggers:     triggers,
		catalog:      &catalog{db: nil, cache: lc, triggers: triggers},
		etagSeedVal:  binary.LittleEndian.Uint64(seedBuf[:]),
		queryTimeout: opt.QueryTimeout,
		verbose:      opt.Verbose,
		isTesting:    opt.IsTesting,
	}
	db.catalog.db = db

	if err := db.ensureCatalogTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.sqlx.Close()
}

// SQLX exposes the underlying sqlx handle for callers that need to run
// diagnostics outside the request pipeline (migrations, health checks).
func (db *DB) SQLX() *sqlx.DB {
	return db.sqlx
}

func (db *DB) ensureCatalogTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS buckets_config (
	name           text PRIMARY KEY,
	index_map      jsonb NOT NULL DEFAULT '{}',
	pre            jsonb NOT NULL DEFAULT '[]',
	post           jsonb NOT NULL DEFAULT '[]',
	options        jsonb NOT NULL DEFAULT '{}',
	reindex_active jsonb NOT NULL DEFAULT '{}',
	rver           bigint NOT NULL DEFAULT 0,
	mtime          timestamptz NOT NULL DEFAULT now()
)`
	if _, err := db.sqlx.ExecContext(ctx, ddl); err != nil {
		return errInternal("", fmt.Errorf("creating buckets_config: %w", err))
	}
	return nil
}

func (db *DB) addSession(r *Request) {
	db.sessionsLock.Lock()
	defer db.sessionsLock.Unlock()
	db.sessions = append(db.sessions, r)
}

func (db *DB) removeSession(r *Request) {
	db.sessionsLock.Lock()
	defer db.sessionsLock.Unlock()
	for i, s := range db.sessions {
		if s == r {
			n := len(db.sessions)
			db.sessions[i] = db.sessions[n-1]
			db.sessions[n-1] = nil
			db.sessions = db.sessions[:n-1]
			return
		}
	}
}

// OpenSessions returns the number of requests currently mid-pipeline,
// useful for shutdown draining and diagnostics.
func (db *DB) OpenSessions() int {
	db.sessionsLock.Lock()
	defer db.sessionsLock.Unlock()
	return len(db.sessions)
}
