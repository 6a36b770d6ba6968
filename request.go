package bucketstore

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/jmoiron/sqlx"
)

// Request is the per-call session threaded through a pipeline's ordered
// handlers: one SQL transaction, the resolved bucket descriptor, and
// whatever intermediate state one handler leaves for the next (such as
// the previous object read for an etag check).
type Request struct {
	ctx context.Context
	db  *DB
	tx  *sqlx.Tx
	log Logger

	Bucket string
	Key    string
	Filter string

	bucket   *BucketDescriptor
	previous *storedObject
	where    *whereClause
	written  bool
}

// whereClause is a compiled filter ready to splice into a SELECT
// statement, as produced by compileFilterOrAll for FindObjects.
type whereClause struct {
	clause string
	args   []any
}

func (db *DB) newRequest(ctx context.Context, tx *sqlx.Tx, bucket, key string) *Request {
	return &Request{
		ctx:    ctx,
		db:     db,
		tx:     tx,
		log:    withOp(db.log, "", bucket),
		Bucket: bucket,
		Key:    key,
	}
}

// handlerFunc is one stage of a pipeline. Returning an error aborts the
// remaining stages and rolls back the transaction.
type handlerFunc func(r *Request) error

// transact runs handlers in order inside a single SQL transaction bound
// to a Request, committing if every handler succeeds and rolling back
// otherwise (including on panic, which is converted to an error so a bad
// handler cannot wedge the connection pool).
func (db *DB) transact(ctx context.Context, op, bucket, key string, handlers ...handlerFunc) (r *Request, err error) {
	if db.queryTimeout > 0 && !db.isTesting {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.queryTimeout)
		defer cancel()
	}

	tx, err := db.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifyDBError(bucket, fmt.Errorf("beginning transaction: %w", err))
	}

	r = db.newRequest(ctx, tx, bucket, key)
	r.log = withOp(db.log, op, bucket)
	db.addSession(r)
	defer db.removeSession(r)

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			err = errInternal(bucket, fmt.Errorf("panic in %s: %v\n%s", op, p, debug.Stack()))
			logResult(r.log, err)
		}
	}()

	for _, h := range handlers {
		if err = h(r); err != nil {
			tx.Rollback()
			logResult(r.log, err)
			return r, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = classifyDBError(bucket, fmt.Errorf("committing %s: %w", op, err))
		logResult(r.log, err)
		return r, err
	}
	if r.written {
		db.WriteCount.Add(1)
	} else {
		db.ReadCount.Add(1)
	}
	r.log.WithField("written", r.written).Debug("request completed")
	return r, nil
}

func (r *Request) markWritten() {
	r.written = true
}

// descriptor loads and caches the bucket's schema, failing with
// BucketNotFound if it has never been created.
func (r *Request) descriptor() (*BucketDescriptor, error) {
	if r.bucket != nil {
		return r.bucket, nil
	}
	desc, err := r.db.catalog.get(r.ctx, r.tx, r.Bucket)
	if err != nil {
		return nil, err
	}
	r.bucket = desc
	return desc, nil
}

// descriptorFresh bypasses the LRU cache entirely and reads the bucket's
// schema straight from buckets_config, for callers that must not risk a
// cached descriptor lagging a schema change committed by another
// connection (GetOptions.NoCache).
func (r *Request) descriptorFresh() (*BucketDescriptor, error) {
	desc, err := r.db.catalog.load(r.ctx, r.tx, r.Bucket)
	if err != nil {
		return nil, err
	}
	r.bucket = desc
	return desc, nil
}

// checkRowVersionGuard implements the write path's row-version guard: a
// row loaded under FOR UPDATE that carries a newer _rver than the
// descriptor this request is holding means another connection's
// UpdateBucket committed a newer schema version after this descriptor was
// cached (rowRVer is stamped from the writer's own desc.Options.Version,
// so it is directly comparable to the currently held one). Drop the stale
// cache entry and reload before the caller projects columns against it.
func (r *Request) checkRowVersionGuard(desc *BucketDescriptor, rowRVer int64) (*BucketDescriptor, error) {
	if desc.Options.Version == 0 || rowRVer <= desc.Options.Version {
		return desc, nil
	}
	r.db.catalog.invalidate(r.Bucket)
	r.bucket = nil
	return r.descriptor()
}

// logStatement emits stmt and the shape of its bound args at debug level
// when the DB was opened with Options.Verbose.
func (r *Request) logStatement(stmt string, args []any) {
	logStatement(r.log, r.db.verbose, stmt, args)
}
