package bucketstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PutOptions controls PutObject's precondition and trigger behaviour.
type PutOptions struct {
	// Etag, when non-nil, gates the write on the object's current etag:
	// an empty string means "must not exist"; any other value must match
	// the stored etag exactly.
	Etag *string
	// Headers is passed through to pre/post triggers via TriggerCookie.
	Headers map[string]string
	// NoTrigger skips pre/post trigger invocation.
	NoTrigger bool
}

// PutObject writes value under key in bucket, enforcing any etag
// precondition and running the bucket's registered pre/post triggers, per
// the putObject pipeline of §4.F.
func (db *DB) PutObject(ctx context.Context, bucket, key string, value map[string]any, opt PutOptions) (string, error) {
	var etag string
	_, err := db.transact(ctx, "PutObject", bucket, key, func(r *Request) error {
		e, err := doPut(r, value, opt)
		etag = e
		return err
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

// doPut runs the putObject pipeline against an already-open Request,
// letting Batch share it inside a wider transaction.
func doPut(r *Request, value map[string]any, opt PutOptions) (string, error) {
	bucket, key := r.Bucket, r.Key
	desc, err := r.descriptor()
	if err != nil {
		return "", err
	}

	selectList := "_id, _key, _value, _etag, _mtime, _txn_snap"
	if desc.Options.Version != 0 {
		selectList += ", _rver"
	}
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE _key = $1 FOR UPDATE`, selectList, bucketTableName(bucket))
	r.logStatement(stmt, []any{key})

	var prev storedObject
	err = r.tx.GetContext(r.ctx, &prev, stmt, key)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return "", classifyDBError(bucket, err)
	}
	if exists {
		r.previous = &prev
		desc, err = r.checkRowVersionGuard(desc, prev.RVer)
		if err != nil {
			return "", err
		}
	}

	if err := checkEtagPrecondition(bucket, key, opt.Etag, exists, prev.ETag); err != nil {
		return "", err
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return "", errInvalidQuery(bucket, fmt.Sprintf("value is not JSON-serialisable: %v", err))
	}

	if !opt.NoTrigger && len(desc.PreFuncs) > 0 {
		cookie := &TriggerCookie{
			Bucket: bucket, Key: key, Value: value, Headers: opt.Headers,
			Update: exists, Session: r, Schema: desc, Log: r.log,
		}
		if exists {
			cookie.ID = prev.ID
		}
		if err := runTriggers(r.ctx, desc.PreFuncs, cookie); err != nil {
			return "", err
		}
	}

	cols, err := indexObject(desc, value)
	if err != nil {
		return "", err
	}

	newEtag := computeEtag(r.db.etagSeed(), bucket, key, valueJSON)
	mtimeMS := nowMillis()

	if exists {
		if err := execUpdateObject(r, bucket, key, valueJSON, newEtag, mtimeMS, desc, cols); err != nil {
			return "", err
		}
	} else {
		if _, err := execInsertObject(r, bucket, key, valueJSON, newEtag, mtimeMS, desc, cols); err != nil {
			return "", err
		}
	}
	r.markWritten()

	if !opt.NoTrigger && len(desc.PostFuncs) > 0 {
		cookie := &TriggerCookie{
			Bucket: bucket, Key: key, Value: value, Headers: opt.Headers,
			Update: exists, Session: r, Schema: desc, Log: r.log,
		}
		if err := runTriggers(r.ctx, desc.PostFuncs, cookie); err != nil {
			return "", err
		}
	}

	return newEtag, nil
}

// checkEtagPrecondition implements the write-path etag rule from §4.F.
func checkEtagPrecondition(bucket, key string, want *string, exists bool, actual string) error {
	if want == nil {
		return nil
	}
	if *want == "" {
		if exists {
			return errEtagConflict(bucket, key, "<none>", actual)
		}
		return nil
	}
	if !exists || actual != *want {
		found := actual
		if !exists {
			found = "<none>"
		}
		return errEtagConflict(bucket, key, *want, found)
	}
	return nil
}

func execInsertObject(r *Request, bucket, key string, valueJSON []byte, etag string, mtimeMS int64, desc *BucketDescriptor, cols map[string]any) (int64, error) {
	fields := []string{"_key", "_value", "_etag", "_mtime", "_txn_snap"}
	placeholders := []string{"$1", "$2", "$3", "$4", "txid_current()"}
	args := []any{key, valueJSON, etag, mtimeMS}

	if desc.Options.Version != 0 {
		fields = append(fields, "_rver")
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, desc.Options.Version)
	}
	for _, field := range desc.IndexedFields() {
		v, ok := cols[field]
		if !ok {
			continue
		}
		fields = append(fields, field)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, v)
	}

	insertStmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING _id`,
		bucketTableName(bucket), quoteColumns(fields), joinPlaceholders(placeholders))
	r.logStatement(insertStmt, args)

	var id int64
	if err := r.tx.GetContext(r.ctx, &id, insertStmt, args...); err != nil {
		if isUniqueViolation(err) {
			return 0, errUniqueAttribute(bucket, "", err)
		}
		return 0, classifyDBError(bucket, fmt.Errorf("inserting: %w", err))
	}
	return id, nil
}

func execUpdateObject(r *Request, bucket, key string, valueJSON []byte, etag string, mtimeMS int64, desc *BucketDescriptor, cols map[string]any) error {
	sets := []string{"_value = $1", "_etag = $2", "_mtime = $3", "_txn_snap = txid_current()"}
	args := []any{valueJSON, etag, mtimeMS}

	if desc.Options.Version != 0 {
		sets = append(sets, fmt.Sprintf("_rver = $%d", len(args)+1))
		args = append(args, desc.Options.Version)
	}
	// put is a full-object replacement: every indexed column is bound, not
	// just the ones cols carries, so a field dropped from the new value
	// clears its column to NULL instead of retaining the prior row's value.
	for _, field := range desc.IndexedFields() {
		v := cols[field]
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteColumn(field), len(args)+1))
		args = append(args, v)
	}
	args = append(args, key)

	updateStmt := fmt.Sprintf(`UPDATE %s SET %s WHERE _key = $%d`,
		bucketTableName(bucket), joinPlaceholders(sets), len(args))
	r.logStatement(updateStmt, args)
	if _, err := r.tx.ExecContext(r.ctx, updateStmt, args...); err != nil {
		if isUniqueViolation(err) {
			return errUniqueAttribute(bucket, "", err)
		}
		return classifyDBError(bucket, fmt.Errorf("updating: %w", err))
	}
	return nil
}
