package bucketstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReindexObjects backfills up to count rows whose _rver is behind the
// bucket's current schema version, re-running indexObject against their
// stored JSON and stamping the new _rver. Once no row is left behind the
// current version, every completed version's reindex_active entry is
// cleared, not just the current one, since an older version's backfill
// necessarily finished first but may not have been cleared at the time.
// Triggers are not invoked (PutOptions.NoTrigger equivalent) since a
// backfill is not a client-initiated write.
func (db *DB) ReindexObjects(ctx context.Context, bucket string, count int) (int, error) {
	processed := 0
	_, err := db.transact(ctx, "ReindexObjects", bucket, "", func(r *Request) error {
		desc, err := r.descriptor()
		if err != nil {
			return err
		}
		if desc.Options.Version == 0 || len(desc.ReindexActive) == 0 {
			return nil
		}

		selectStmt := fmt.Sprintf(
			`SELECT _id, _key, _value FROM %s WHERE _rver < $1 ORDER BY _id LIMIT $2 FOR UPDATE`,
			bucketTableName(bucket))
		r.logStatement(selectStmt, []any{desc.Options.Version, count})
		rows, err := r.tx.QueryxContext(r.ctx, selectStmt, desc.Options.Version, count)
		if err != nil {
			return classifyDBError(bucket, err)
		}

		type pending struct {
			id    int64
			key   string
			value map[string]any
		}
		var batch []pending
		for rows.Next() {
			var id int64
			var key string
			var raw []byte
			if err := rows.Scan(&id, &key, &raw); err != nil {
				rows.Close()
				return errInternal(bucket, fmt.Errorf("scanning row: %w", err))
			}
			var value map[string]any
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &value); err != nil {
					rows.Close()
					return errInternal(bucket, fmt.Errorf("decoding key %q: %w", key, err))
				}
			}
			batch = append(batch, pending{id, key, value})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return classifyDBError(bucket, err)
		}

		for _, p := range batch {
			cols, err := indexObject(desc, p.value)
			if err != nil {
				return err
			}
			if err := execReindexColumns(r, bucket, p.key, desc, cols); err != nil {
				return err
			}
			processed++
		}
		if processed > 0 {
			r.markWritten()
		}

		var remaining int64
		remainingStmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE _rver < $1`, bucketTableName(bucket))
		r.logStatement(remainingStmt, []any{desc.Options.Version})
		if err := r.tx.GetContext(r.ctx, &remaining, remainingStmt, desc.Options.Version); err != nil {
			return classifyDBError(bucket, err)
		}
		if remaining == 0 {
			newReindex := clearReindexVersions(desc.ReindexActive, desc.Options.Version)
			reindexJSON, _ := json.Marshal(newReindex)
			if _, err := r.tx.ExecContext(r.ctx,
				`UPDATE buckets_config SET reindex_active = $2, rver = rver + 1 WHERE name = $1`,
				bucket, reindexJSON); err != nil {
				return errInternal(bucket, fmt.Errorf("clearing reindex_active: %w", err))
			}
			db.catalog.invalidate(bucket)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

func execReindexColumns(r *Request, bucket, key string, desc *BucketDescriptor, cols map[string]any) error {
	sets := []string{"_rver = $1"}
	args := []any{desc.Options.Version}
	for _, field := range desc.IndexedFields() {
		args = append(args, cols[field])
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteColumn(field), len(args)))
	}
	args = append(args, key)
	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE _key = $%d`,
		bucketTableName(bucket), joinPlaceholders(sets), len(args))
	r.logStatement(stmt, args)
	if _, err := r.tx.ExecContext(r.ctx, stmt, args...); err != nil {
		return classifyDBError(bucket, fmt.Errorf("reindexing %q: %w", key, err))
	}
	return nil
}
