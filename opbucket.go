package bucketstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpdateOptions controls UpdateBucket's schema-evolution behaviour.
type UpdateOptions struct {
	// NoReindex skips reindex bookkeeping and the _rver column entirely,
	// used when the caller knows added columns need no backfill (e.g. a
	// brand-new field that will only ever be written going forward).
	NoReindex bool
}

// CreateBucket validates cfg, creates the backing relation with one
// column per indexed field and a supporting index per field, and
// registers the descriptor in buckets_config.
func (db *DB) CreateBucket(ctx context.Context, name string, cfg BucketConfig) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	if err := ValidateBucketConfig(name, cfg, db.triggers); err != nil {
		return err
	}

	tx, err := db.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		return classifyDBError(name, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM buckets_config WHERE name = $1)`, name); err != nil {
		return classifyDBError(name, err)
	}
	if exists {
		return errInvalidBucketConfig(name, "bucket already exists")
	}

	createTable := fmt.Sprintf(`
CREATE TABLE %s (
	_id       bigserial PRIMARY KEY,
	_key      text NOT NULL UNIQUE,
	_value    jsonb NOT NULL,
	_etag     text NOT NULL,
	_mtime    bigint NOT NULL,
	_txn_snap bigint
)`, bucketTableName(name))
	if _, err := tx.ExecContext(ctx, createTable); err != nil {
		return errInternal(name, fmt.Errorf("creating relation: %w", err))
	}

	for field, idx := range cfg.Index {
		if err := createColumnDDL(tx, ctx, name, field, idx); err != nil {
			return err
		}
	}
	if cfg.Options.Version != 0 {
		if err := ensureRVerColumn(tx, ctx, name); err != nil {
			return err
		}
	}

	indexJSON, _ := json.Marshal(cfg.Index)
	preJSON, _ := json.Marshal(cfg.Pre)
	postJSON, _ := json.Marshal(cfg.Post)
	optionsJSON, _ := json.Marshal(cfg.Options)

	_, err = tx.ExecContext(ctx, `
INSERT INTO buckets_config (name, index_map, pre, post, options, reindex_active, rver)
VALUES ($1, $2, $3, $4, $5, '{}', 0)`, name, indexJSON, preJSON, postJSON, optionsJSON)
	if err != nil {
		return errInternal(name, fmt.Errorf("registering bucket: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return classifyDBError(name, fmt.Errorf("committing: %w", err))
	}
	db.catalog.invalidate(name)
	return nil
}

// UpdateBucket applies a schema evolution: computes the diff between the
// stored and incoming index maps, alters the backing relation, and
// records reindex bookkeeping for backfilled fields, per §4.E.
func (db *DB) UpdateBucket(ctx context.Context, name string, cfg BucketConfig, opt UpdateOptions) error {
	if err := ValidateBucketConfig(name, cfg, db.triggers); err != nil {
		return err
	}

	tx, err := db.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		return classifyDBError(name, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	var row catalogRow
	err = tx.GetContext(ctx, &row, `
SELECT name, index_map, pre, post, options, reindex_active, rver
FROM buckets_config WHERE name = $1 FOR UPDATE`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return errBucketNotFound(name)
	}
	if err != nil {
		return classifyDBError(name, err)
	}

	var oldIndex IndexMap
	var oldOptions BucketOptions
	var oldReindex ReindexActive
	if len(row.IndexMap) > 0 {
		json.Unmarshal(row.IndexMap, &oldIndex)
	}
	if len(row.Options) > 0 {
		json.Unmarshal(row.Options, &oldOptions)
	}
	if len(row.ReindexActive) > 0 {
		json.Unmarshal(row.ReindexActive, &oldReindex)
	}

	vOld, vNew := oldOptions.Version, cfg.Options.Version
	if vOld != 0 && vOld >= vNew {
		return errBucketVersion(name, vOld, vNew)
	}

	diff := diffIndex(oldIndex, cfg.Index)
	if len(diff.mod) > 0 {
		return errInvalidBucketConfig(name, fmt.Sprintf("field %q changed type; drop and re-add it instead", diff.mod[0]))
	}

	if !opt.NoReindex && vNew != 0 {
		if err := ensureRVerColumn(tx, ctx, name); err != nil {
			return err
		}
	}

	for _, field := range diff.del {
		if err := dropColumnDDL(tx, ctx, name, field); err != nil {
			return err
		}
	}
	for _, field := range diff.add {
		if err := createColumnDDL(tx, ctx, name, field, cfg.Index[field]); err != nil {
			return err
		}
	}

	newReindex := oldReindex
	if !opt.NoReindex {
		newReindex = consolidateReindex(oldReindex, vNew, diff.add)
	}

	indexJSON, _ := json.Marshal(cfg.Index)
	preJSON, _ := json.Marshal(cfg.Pre)
	postJSON, _ := json.Marshal(cfg.Post)
	optionsJSON, _ := json.Marshal(cfg.Options)
	reindexJSON, _ := json.Marshal(newReindex)

	_, err = tx.ExecContext(ctx, `
UPDATE buckets_config
SET index_map = $2, pre = $3, post = $4, options = $5, reindex_active = $6,
    rver = rver + 1, mtime = now()
WHERE name = $1`, name, indexJSON, preJSON, postJSON, optionsJSON, reindexJSON)
	if err != nil {
		return errInternal(name, fmt.Errorf("updating bucket: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return classifyDBError(name, fmt.Errorf("committing: %w", err))
	}
	db.catalog.invalidate(name)
	return nil
}

// GetBucket returns the current descriptor for name.
func (db *DB) GetBucket(ctx context.Context, name string) (*BucketDescriptor, error) {
	return db.catalog.get(ctx, db.sqlx, name)
}

// DelBucket drops a bucket's backing relation and its buckets_config
// entry. There is no undo.
func (db *DB) DelBucket(ctx context.Context, name string) error {
	tx, err := db.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		return classifyDBError(name, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM buckets_config WHERE name = $1`, name)
	if err != nil {
		return errInternal(name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errBucketNotFound(name)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, bucketTableName(name))); err != nil {
		return errInternal(name, fmt.Errorf("dropping relation: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return classifyDBError(name, fmt.Errorf("committing: %w", err))
	}
	db.catalog.invalidate(name)
	return nil
}

// ListBuckets returns every registered bucket's descriptor, ordered by
// name.
func (db *DB) ListBuckets(ctx context.Context) ([]*BucketDescriptor, error) {
	var names []string
	if err := db.sqlx.SelectContext(ctx, &names, `SELECT name FROM buckets_config ORDER BY name`); err != nil {
		return nil, classifyDBError("", err)
	}
	out := make([]*BucketDescriptor, 0, len(names))
	for _, n := range names {
		desc, err := db.catalog.get(ctx, db.sqlx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}
