package bucketstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aviddiviner/bucketstore/filter"
)

const defaultFindLimit = 1000

// FindOptions controls FindObjects's ordering, pagination, and
// projection.
type FindOptions struct {
	// Sort names one or more indexed fields to ORDER BY, applied in the
	// order given; Desc reverses every field in the list.
	Sort []string
	Desc bool
	// Limit caps the number of rows returned; 0 uses defaultFindLimit
	// unless NoLimit is set.
	Limit   int64
	NoLimit bool
	Offset  int64
	// Ignore lists indexed fields excluded from JSON reconstruction.
	Ignore []string
}

// ObjectIterator streams matching rows one at a time. Objects are decoded
// eagerly per row so the caller need not hold the underlying transaction
// open across slow processing, at the cost of buffering the full result
// set in memory — acceptable given the Limit default of 1000.
type ObjectIterator struct {
	objects []*Object
	pos     int
}

func (it *ObjectIterator) Next() bool {
	it.pos++
	return it.pos <= len(it.objects)
}

func (it *ObjectIterator) Object() *Object {
	if it.pos < 1 || it.pos > len(it.objects) {
		return nil
	}
	return it.objects[it.pos-1]
}

func (it *ObjectIterator) Len() int { return len(it.objects) }

// FindObjects compiles filterStr against bucket's descriptor and streams
// matching rows, reconstructed per §4.G.
func (db *DB) FindObjects(ctx context.Context, bucket, filterStr string, opt FindOptions) (*ObjectIterator, error) {
	it := &ObjectIterator{}
	_, err := db.transact(ctx, "FindObjects", bucket, "", func(r *Request) error {
		desc, err := r.descriptor()
		if err != nil {
			return err
		}

		where, err := compileFilterOrAll(filterStr, desc)
		if err != nil {
			return err
		}

		cols := desc.IndexedFields()
		selectList := "_id, _key, _value, _etag, _mtime, _txn_snap, COUNT(*) OVER() AS _count"
		if desc.Options.Version != 0 {
			selectList += ", _rver"
		}
		for _, c := range cols {
			selectList += ", " + quoteColumn(c)
		}

		stmt := fmt.Sprintf(`SELECT %s FROM %s`, selectList, bucketTableName(bucket))
		args := where.args
		if where.clause != "" {
			stmt += " WHERE " + where.clause
		}
		if len(opt.Sort) > 0 {
			dir := "ASC"
			if opt.Desc {
				dir = "DESC"
			}
			sortCols := make([]string, len(opt.Sort))
			for i, f := range opt.Sort {
				sortCols[i] = quoteColumn(f) + " " + dir
			}
			stmt += " ORDER BY " + strings.Join(sortCols, ", ")
		}
		limit := opt.Limit
		if limit == 0 && !opt.NoLimit {
			limit = defaultFindLimit
		}
		if limit > 0 {
			args = append(args, limit)
			stmt += fmt.Sprintf(" LIMIT $%d", len(args))
		}
		if opt.Offset > 0 {
			args = append(args, opt.Offset)
			stmt += fmt.Sprintf(" OFFSET $%d", len(args))
		}

		r.logStatement(stmt, args)
		rows, err := r.tx.QueryxContext(r.ctx, stmt, args...)
		if err != nil {
			return classifyDBError(bucket, fmt.Errorf("querying: %w", err))
		}
		defer rows.Close()

		ignore := make(map[string]bool, len(opt.Ignore))
		for _, f := range opt.Ignore {
			ignore[f] = true
		}

		for rows.Next() {
			scanned, err := rows.SliceScan()
			if err != nil {
				return errInternal(bucket, fmt.Errorf("scanning row: %w", err))
			}
			row, count, projected, err := decodeFindRow(desc, cols, scanned)
			if err != nil {
				return err
			}
			row.Count = count
			obj, err := reconstruct(desc, row, projected, ignore)
			if err != nil {
				return err
			}
			it.objects = append(it.objects, obj)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// compileFilterOrAll parses and compiles filterStr, treating the empty
// string as "match every row" (no WHERE clause emitted).
func compileFilterOrAll(filterStr string, desc *BucketDescriptor) (*whereClause, error) {
	if filterStr == "" {
		return &whereClause{}, nil
	}
	ast, err := filter.Parse(filterStr)
	if err != nil {
		return nil, errInvalidQuery(desc.Name, err.Error())
	}
	compiled, err := filter.Compile(ast, desc, 1)
	if err != nil {
		var notIndexed *filter.NotIndexedError
		if errors.As(err, &notIndexed) {
			return nil, errNotIndexed(desc.Name, notIndexed.Field)
		}
		return nil, errInvalidQuery(desc.Name, err.Error())
	}
	return &whereClause{clause: compiled.Clause, args: compiled.Args}, nil
}

// decodeFindRow is decodeScannedRow plus the trailing _count column
// FindObjects's window function adds after the system-field prefix.
func decodeFindRow(desc *BucketDescriptor, cols []string, scanned []any) (*storedObject, int64, map[string]any, error) {
	// Layout: _id,_key,_value,_etag,_mtime,_txn_snap,_count[,_rver],cols...
	prefixLen := 7
	if desc.Options.Version != 0 {
		prefixLen++
	}
	if len(scanned) < prefixLen {
		return nil, 0, nil, errInternal(desc.Name, fmt.Errorf("unexpected row shape"))
	}

	head := append([]any{}, scanned[:6]...)
	countVal, _ := asInt64(scanned[6])
	rest := scanned[7:]
	if desc.Options.Version != 0 {
		head = append(head, rest[0])
		rest = rest[1:]
	}
	head = append(head, rest...)

	row, projected, err := decodeScannedRow(desc, cols, head)
	if err != nil {
		return nil, 0, nil, err
	}
	return row, countVal, projected, nil
}
