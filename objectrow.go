package bucketstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Object is the caller-facing view of one row: the decoded JSON value plus
// the system fields stamped by the write path.
type Object struct {
	Key     string
	Value   map[string]any
	ETag    string
	ID      int64
	MTime   time.Time
	TxnSnap int64
	RVer    int64
	Count   int64
}

// storedObject is the raw shape of one row as read back from a bucket
// relation, before JSON reconstruction merges the projected columns back
// into Value.
type storedObject struct {
	ID      int64  `db:"_id"`
	Key     string `db:"_key"`
	Value   []byte `db:"_value"`
	ETag    string `db:"_etag"`
	MTime   int64  `db:"_mtime"`
	TxnSnap int64  `db:"_txn_snap"`
	RVer    int64  `db:"_rver"`
	Count   int64  `db:"_count"`
}

// bucketTableName is the (quoted, safe) relation name backing bucket.
// Bucket names are already constrained by ValidateBucketName's regex, so
// no further escaping is required beyond identifier quoting.
func bucketTableName(bucket string) string {
	return `"` + bucket + `"`
}

// computeEtag hashes (bucket, key, value) with a stable, seeded xxhash so
// unchanged writes produce the same etag and callers can use it as a
// cheap no-op-write detector.
func computeEtag(seed uint64, bucket, key string, value []byte) string {
	h := xxhash.NewWithSeed(seed)
	h.WriteString(bucket)
	h.Write([]byte{0})
	h.WriteString(key)
	h.Write([]byte{0})
	h.Write(value)
	return hex.EncodeToString(h.Sum(nil))
}

// indexObject computes the column projection for a write: one entry per
// declared index field whose key is present in value, coerced per §4.A.
// Fields absent from value are omitted from the map; a full-object
// replacement (put, reindex) still binds every indexed column, passing nil
// for the ones missing here, while a partial update (UpdateObjects, insert)
// only touches the columns present.
func indexObject(desc *BucketDescriptor, value map[string]any) (map[string]any, error) {
	cols := make(map[string]any, len(desc.Index))
	for field, idx := range desc.Index {
		v, present := value[field]
		if !present {
			continue
		}
		col, err := CoerceColumn(field, idx, v)
		if err != nil {
			return nil, errInvalidIndexType(desc.Name, field, err)
		}
		cols[field] = col
	}
	return cols, nil
}

// reconstruct rebuilds the JSON object for one stored row per §4.G: parse
// _value, then for each indexed field not in ignore, let the column value
// win unless the JSON already carries an array for that key.
func reconstruct(desc *BucketDescriptor, row *storedObject, projected map[string]any, ignore map[string]bool) (*Object, error) {
	var value map[string]any
	if len(row.Value) > 0 {
		if err := json.Unmarshal(row.Value, &value); err != nil {
			return nil, errInternal(desc.Name, fmt.Errorf("decoding stored value for key %q: %w", row.Key, err))
		}
	}
	if value == nil {
		value = make(map[string]any)
	}

	for field, idx := range desc.Index {
		if ignore[field] {
			continue
		}
		col, ok := projected[field]
		if !ok || col == nil {
			delete(value, field)
			continue
		}
		if existing, has := value[field]; has {
			if _, isArray := existing.([]any); isArray {
				continue
			}
		}
		value[field] = ReverseColumn(idx, col)
	}

	return &Object{
		Key:     row.Key,
		Value:   value,
		ETag:    row.ETag,
		ID:      row.ID,
		MTime:   time.UnixMilli(row.MTime),
		TxnSnap: row.TxnSnap,
		RVer:    row.RVer,
		Count:   row.Count,
	}, nil
}
