package bucketstore

import (
	"github.com/aviddiviner/bucketstore/filter"
)

// systemFieldTypes gives the Postgres scalar type backing each internal
// column, so filters against them compile the same way as user-declared
// indexed fields.
var systemFieldTypes = map[string]string{
	"_id":       "bigint",
	"_key":      "text",
	"_etag":     "text",
	"_mtime":    "bigint",
	"_txn_snap": "bigint",
}

// FieldType implements filter.FieldResolver.
func (d *BucketDescriptor) FieldType(attr string) (pgType string, isArray bool, found bool) {
	if t, ok := systemFieldTypes[attr]; ok {
		return t, false, true
	}
	idx, ok := d.Index[attr]
	if !ok {
		return "", false, false
	}
	return pgBaseType(idx.Type), idx.Array, true
}

// Coerce implements filter.FieldResolver, mapping a raw filter literal to
// the driver argument bound for attr's column. Array fields coerce the
// literal as a single element, matching what compile.go binds against
// `>= ANY(col)` / `<= ANY(col)` / `@> ARRAY[...]`.
func (d *BucketDescriptor) Coerce(attr, literal string) (any, error) {
	if isSystemField(attr) {
		switch attr {
		case "_id", "_mtime", "_txn_snap":
			return coerceNumber(attr, literal)
		default:
			return literal, nil
		}
	}
	idx, ok := d.Index[attr]
	if !ok {
		return nil, errNotIndexed(d.Name, attr)
	}
	return CoerceScalar(attr, idx.Type, literal)
}

var _ filter.FieldResolver = (*BucketDescriptor)(nil)
