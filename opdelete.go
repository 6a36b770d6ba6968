package bucketstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DelOptions controls DelObject's precondition and trigger behaviour.
type DelOptions struct {
	Etag      *string
	Headers   map[string]string
	NoTrigger bool
}

// DelObject deletes the object at key, running pre-triggers as
// updateless writes (Update: true, Value: nil signals a delete to the
// trigger callback) and enforcing any etag precondition first.
func (db *DB) DelObject(ctx context.Context, bucket, key string, opt DelOptions) error {
	_, err := db.transact(ctx, "DelObject", bucket, key, func(r *Request) error {
		return doDel(r, opt)
	})
	return err
}

// doDel runs the delObject pipeline against an already-open Request.
func doDel(r *Request, opt DelOptions) error {
	bucket, key := r.Bucket, r.Key
	desc, err := r.descriptor()
	if err != nil {
		return err
	}

	selectList := "_id, _key, _value, _etag, _mtime, _txn_snap"
	if desc.Options.Version != 0 {
		selectList += ", _rver"
	}
	selectStmt := fmt.Sprintf(`SELECT %s FROM %s WHERE _key = $1 FOR UPDATE`, selectList, bucketTableName(bucket))
	r.logStatement(selectStmt, []any{key})

	var prev storedObject
	err = r.tx.GetContext(r.ctx, &prev, selectStmt, key)
	if errors.Is(err, sql.ErrNoRows) {
		return errObjectNotFound(bucket, key)
	}
	if err != nil {
		return classifyDBError(bucket, err)
	}
	r.previous = &prev
	desc, err = r.checkRowVersionGuard(desc, prev.RVer)
	if err != nil {
		return err
	}

	if err := checkEtagPrecondition(bucket, key, opt.Etag, true, prev.ETag); err != nil {
		return err
	}

	if !opt.NoTrigger && len(desc.PreFuncs) > 0 {
		cookie := &TriggerCookie{
			Bucket: bucket, ID: prev.ID, Key: key, Headers: opt.Headers,
			Update: true, Session: r, Schema: desc, Log: r.log,
		}
		if err := runTriggers(r.ctx, desc.PreFuncs, cookie); err != nil {
			return err
		}
	}

	deleteStmt := fmt.Sprintf(`DELETE FROM %s WHERE _key = $1`, bucketTableName(bucket))
	r.logStatement(deleteStmt, []any{key})
	res, err := r.tx.ExecContext(r.ctx, deleteStmt, key)
	if err != nil {
		return classifyDBError(bucket, fmt.Errorf("deleting: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errObjectNotFound(bucket, key)
	}
	r.markWritten()

	if !opt.NoTrigger && len(desc.PostFuncs) > 0 {
		cookie := &TriggerCookie{
			Bucket: bucket, ID: prev.ID, Key: key, Headers: opt.Headers,
			Update: true, Session: r, Schema: desc, Log: r.log,
		}
		if err := runTriggers(r.ctx, desc.PostFuncs, cookie); err != nil {
			return err
		}
	}
	return nil
}
