package bucketstore

import (
	"context"
	"fmt"
)

// GetOptions controls GetObject's projection and cache policy.
type GetOptions struct {
	// Ignore lists indexed fields whose projected column must not
	// overwrite the JSON value on reconstruction (§4.G step 2).
	Ignore []string

	// NoCache bypasses the catalog's descriptor cache, reading the
	// bucket's schema straight from buckets_config. Used by callers that
	// just evolved the schema on another connection and cannot tolerate
	// reading against a stale cached descriptor for even one request.
	NoCache bool
}

// GetObject reads one object by key, reconstructing its JSON value from
// the stored blob and its indexed columns per §4.G.
func (db *DB) GetObject(ctx context.Context, bucket, key string, opt GetOptions) (*Object, error) {
	var obj *Object
	_, err := db.transact(ctx, "GetObject", bucket, key, func(r *Request) error {
		o, err := doGet(r, opt)
		obj = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// doGet runs the getObject pipeline against an already-open Request.
func doGet(r *Request, opt GetOptions) (*Object, error) {
	var desc *BucketDescriptor
	var err error
	if opt.NoCache {
		desc, err = r.descriptorFresh()
	} else {
		desc, err = r.descriptor()
	}
	if err != nil {
		return nil, err
	}

	row, projected, err := fetchByKey(r, desc, r.Key)
	if err != nil {
		return nil, err
	}

	ignore := make(map[string]bool, len(opt.Ignore))
	for _, f := range opt.Ignore {
		ignore[f] = true
	}
	return reconstruct(desc, row, projected, ignore)
}

// fetchByKey selects one row by key along with its indexed columns,
// returning ObjectNotFound if absent. Used by GetObject; it is a plain
// (non-locking) read, unlike the write paths' own SELECT ... FOR UPDATE.
func fetchByKey(r *Request, desc *BucketDescriptor, key string) (*storedObject, map[string]any, error) {
	cols := desc.IndexedFields()
	selectList := "_id, _key, _value, _etag, _mtime, _txn_snap"
	if desc.Options.Version != 0 {
		selectList += ", _rver"
	}
	for _, c := range cols {
		selectList += ", " + quoteColumn(c)
	}

	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE _key = $1`, selectList, bucketTableName(desc.Name))
	r.logStatement(stmt, []any{key})
	rows, err := r.tx.QueryxContext(r.ctx, stmt, key)
	if err != nil {
		return nil, nil, classifyDBError(desc.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil, errObjectNotFound(desc.Name, key)
	}

	scanned, err := rows.SliceScan()
	if err != nil {
		return nil, nil, errInternal(desc.Name, fmt.Errorf("scanning row: %w", err))
	}
	return decodeScannedRow(desc, cols, scanned)
}

// decodeScannedRow splits a SliceScan result into the fixed system-field
// prefix and the per-bucket projected columns.
func decodeScannedRow(desc *BucketDescriptor, cols []string, scanned []any) (*storedObject, map[string]any, error) {
	i := 0
	next := func() any {
		v := scanned[i]
		i++
		return v
	}

	row := &storedObject{}
	if id, ok := next().(int64); ok {
		row.ID = id
	}
	row.Key = asString(next())
	if v, ok := next().([]byte); ok {
		row.Value = v
	}
	if e := next(); e != nil {
		row.ETag = asString(e)
	}
	if m := next(); m != nil {
		row.MTime, _ = asInt64(m)
	}
	if t := next(); t != nil {
		row.TxnSnap, _ = asInt64(t)
	}
	if desc.Options.Version != 0 {
		if rv := next(); rv != nil {
			row.RVer, _ = asInt64(rv)
		}
	}

	projected := make(map[string]any, len(cols))
	for _, c := range cols {
		if i >= len(scanned) {
			break
		}
		projected[c] = scanned[i]
		i++
	}
	return row, projected, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
