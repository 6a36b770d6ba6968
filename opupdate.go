package bucketstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aviddiviner/bucketstore/filter"
)

// UpdateObjects bulk-updates the indexed columns named in fields for
// every row matching filterStr, without touching _value. Matching rows
// have _etag refreshed to detach them from readers that pin an old etag
// after this out-of-band write.
func (db *DB) UpdateObjects(ctx context.Context, bucket string, fields map[string]any, filterStr string) (int64, error) {
	var affected int64
	_, err := db.transact(ctx, "UpdateObjects", bucket, "", func(r *Request) error {
		desc, err := r.descriptor()
		if err != nil {
			return err
		}

		cols, err := indexObject(desc, fields)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return errInvalidQuery(bucket, "no recognised indexed fields in update")
		}

		sortedFields := desc.IndexedFields()
		sets := make([]string, 0, len(cols)+1)
		args := make([]any, 0, len(cols)+1)
		for _, field := range sortedFields {
			v, ok := cols[field]
			if !ok {
				continue
			}
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", quoteColumn(field), len(args)))
		}
		args = append(args, nowMillis())
		mtimeArg := len(args)
		sets = append(sets, fmt.Sprintf("_mtime = $%d", mtimeArg))
		// _value is untouched by a bulk column update, so there is no new
		// content to hash into _etag; derive a fresh one from the row's own
		// key and the write's timestamp instead, so readers pinning the old
		// etag still see it change.
		sets = append(sets, fmt.Sprintf("_etag = md5(_key || $%d::text)", mtimeArg))

		if filterStr == "" {
			return errInvalidQuery(bucket, "UpdateObjects requires a filter matching at least one indexed field")
		}
		ast, err := filter.Parse(filterStr)
		if err != nil {
			return errInvalidQuery(bucket, err.Error())
		}
		compiled, err := filter.Compile(ast, desc, len(args)+1)
		if err != nil {
			var notIndexed *filter.NotIndexedError
			if errors.As(err, &notIndexed) {
				return errNotIndexed(bucket, notIndexed.Field)
			}
			return errInvalidQuery(bucket, err.Error())
		}
		args = append(args, compiled.Args...)

		stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
			bucketTableName(bucket), joinPlaceholders(sets), compiled.Clause)

		r.logStatement(stmt, args)
		res, err := r.tx.ExecContext(r.ctx, stmt, args...)
		if err != nil {
			return classifyDBError(bucket, fmt.Errorf("bulk updating: %w", err))
		}
		affected, _ = res.RowsAffected()
		if affected > 0 {
			r.markWritten()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
