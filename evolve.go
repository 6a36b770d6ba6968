package bucketstore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// schemaDiff is the set of index-field changes between a bucket's stored
// descriptor and an incoming one.
type schemaDiff struct {
	add []string
	del []string
	mod []string
}

func diffIndex(old, new IndexMap) schemaDiff {
	var d schemaDiff
	for f := range new {
		if _, ok := old[f]; !ok {
			d.add = append(d.add, f)
		} else if !reflect.DeepEqual(old[f], new[f]) {
			d.mod = append(d.mod, f)
		}
	}
	for f := range old {
		if _, ok := new[f]; !ok {
			d.del = append(d.del, f)
		}
	}
	return d
}

// indexName is the deterministic name used for a bucket field's backing
// index, per §4.E.9.
func indexName(bucket, field string) string {
	return bucket + "_" + field + "_idx"
}

func createColumnDDL(tx *sqlx.Tx, ctx context.Context, bucket string, field string, idx IndexField) error {
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`,
		bucketTableName(bucket), pq.QuoteIdentifier(field), sqlColumnType(idx))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errInternal(bucket, fmt.Errorf("adding column %q: %w", field, err))
	}
	return createFieldIndex(tx, ctx, bucket, field, idx)
}

func createFieldIndex(tx *sqlx.Tx, ctx context.Context, bucket, field string, idx IndexField) error {
	method := "BTREE"
	if idx.Array {
		method = "GIN"
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	col := pq.QuoteIdentifier(field)
	stmt := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON %s USING %s (%s) WHERE %s IS NOT NULL`,
		unique, pq.QuoteIdentifier(indexName(bucket, field)), bucketTableName(bucket), method, col, col)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errInternal(bucket, fmt.Errorf("creating index for %q: %w", field, err))
	}
	return nil
}

func dropColumnDDL(tx *sqlx.Tx, ctx context.Context, bucket, field string) error {
	stmt := fmt.Sprintf(`DROP INDEX IF EXISTS %s`, pq.QuoteIdentifier(indexName(bucket, field)))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errInternal(bucket, fmt.Errorf("dropping index for %q: %w", field, err))
	}
	stmt = fmt.Sprintf(`ALTER TABLE %s DROP COLUMN IF EXISTS %s`,
		bucketTableName(bucket), pq.QuoteIdentifier(field))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errInternal(bucket, fmt.Errorf("dropping column %q: %w", field, err))
	}
	return nil
}

// ensureRVerColumn adds the _rver bookkeeping column and its BTREE index
// to a bucket relation, if not already present. Skipped by updateBucket
// when no_reindex is set or the incoming version is 0.
func ensureRVerColumn(tx *sqlx.Tx, ctx context.Context, bucket string) error {
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS _rver bigint NOT NULL DEFAULT 0`, bucketTableName(bucket))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errInternal(bucket, fmt.Errorf("adding _rver column: %w", err))
	}
	stmt = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (_rver)`,
		pq.QuoteIdentifier(bucket+"__rver_idx"), bucketTableName(bucket))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errInternal(bucket, fmt.Errorf("indexing _rver: %w", err))
	}
	return nil
}

// consolidateReindex merges fields into ra's set for version ver,
// preserving whatever other versions/fields were already tracked.
func consolidateReindex(ra ReindexActive, ver int64, fields []string) ReindexActive {
	out := ra.Clone()
	if len(fields) == 0 {
		return out
	}
	set := out[ver]
	if set == nil {
		set = make(map[string]bool, len(fields))
	}
	for _, f := range fields {
		set[f] = true
	}
	out[ver] = set
	return out
}

// clearReindexVersions drops every version in ra that is <= current once
// ReindexObjects has confirmed no row is behind current: an older version's
// entry can be left over when a later schema change superseded it before
// its backfill was confirmed, and it would otherwise linger forever since
// nothing ever re-checks it once it stops being the current version.
func clearReindexVersions(ra ReindexActive, current int64) ReindexActive {
	out := ra.Clone()
	for ver := range out {
		if ver <= current {
			delete(out, ver)
		}
	}
	return out
}
