package bucketstore

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

var truthyRE = regexp.MustCompile(`(?i)^true$`)

// CoerceScalar maps one JSON scalar value to the Go value used as the
// driver argument for the corresponding relational column, per the
// forward direction of the type table in §4.A.
func CoerceScalar(field string, typ IndexType, v any) (any, error) {
	switch typ {
	case TypeString:
		return stringify(v), nil
	case TypeNumber:
		return coerceNumber(field, v)
	case TypeBoolean:
		return coerceBoolean(v), nil
	case TypeIP:
		return coerceIP(field, v)
	case TypeSubnet:
		return coerceSubnet(field, v)
	default:
		return nil, fmt.Errorf("unknown index type %q", typ)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func coerceNumber(field string, v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("field %q: %v is not integer-valued", field, t)
		}
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %q is not integer-parsable: %w", field, t, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %q: %v (%T) is not integer-parsable", field, v, v)
	}
}

func coerceBoolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return truthyRE.MatchString(t)
	default:
		return truthyRE.MatchString(fmt.Sprint(t))
	}
}

func coerceIP(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("field %q: %q is not a valid IP address: %w", field, s, err)
	}
	return addr.String(), nil
}

func coerceSubnet(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return "", fmt.Errorf("field %q: %q is not a valid CIDR subnet: %w", field, s, err)
	}
	return prefix.Masked().String(), nil
}

// asSlice normalises a JSON value to a slice: a scalar becomes a
// one-element slice, an array passes through, per §4.A.
func asSlice(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

// CoerceColumn maps a JSON value (scalar or array) for field to the driver
// argument for its projected column, honouring the array-ness of the
// declared index type.
func CoerceColumn(field string, idx IndexField, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if !idx.Array {
		val, err := CoerceScalar(field, idx.Type, v)
		if err != nil {
			return nil, err
		}
		return val, nil
	}

	elems := asSlice(v)
	switch idx.Type {
	case TypeNumber:
		out := make(pq.Int64Array, len(elems))
		for i, e := range elems {
			n, err := coerceNumber(field, e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case TypeBoolean:
		out := make(pq.BoolArray, len(elems))
		for i, e := range elems {
			out[i] = coerceBoolean(e)
		}
		return out, nil
	default: // string, ip, subnet all project to text[]
		out := make(pq.StringArray, len(elems))
		for i, e := range elems {
			var s string
			var err error
			switch idx.Type {
			case TypeIP:
				s, err = coerceIP(field, e)
			case TypeSubnet:
				s, err = coerceSubnet(field, e)
			default:
				s = stringify(e)
			}
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
}

// pgBaseType returns the scalar Postgres type backing an indexed field,
// with no array brackets. IP and subnet fields use the native inet/cidr
// types rather than text so that <= and >= comparisons order numerically
// instead of lexically.
func pgBaseType(typ IndexType) string {
	switch typ {
	case TypeString:
		return "text"
	case TypeNumber:
		return "bigint"
	case TypeBoolean:
		return "boolean"
	case TypeIP:
		return "inet"
	case TypeSubnet:
		return "cidr"
	default:
		return "text"
	}
}

// sqlColumnType returns the Postgres column type used for an indexed
// field's DDL, per §4.A / §4.E.9.
func sqlColumnType(idx IndexField) string {
	base := pgBaseType(idx.Type)
	if idx.Array {
		return base + "[]"
	}
	return base
}

var arrayLiteralSpecial = []byte{'"', ',', '{', '}', '\\'}

func needsArrayEscape(s string) bool {
	for _, b := range arrayLiteralSpecial {
		if strings.IndexByte(s, b) >= 0 {
			return true
		}
	}
	return false
}

// escapeArrayElement renders one string array element for a human-readable
// Postgres array literal: elements containing any of `" , { } \` are
// wrapped in double quotes with those characters backslash-escaped. This
// mirrors the projection rule in §4.A; it is used for verbose statement
// logging, not for parameter binding (bound array arguments go through
// lib/pq's Array wrappers, which handle their own escaping).
func escapeArrayElement(s string) string {
	if !needsArrayEscape(s) {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		for _, special := range arrayLiteralSpecial {
			if c == special {
				b.WriteByte('\\')
				break
			}
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// formatArrayLiteral renders a Postgres-style array literal, e.g.
// `{a,"b\,c",d}`, for logging.
func formatArrayLiteral(elems []string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = escapeArrayElement(e)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ReverseScalar maps a scanned column value back to its JSON
// representation, per the reverse direction of §4.A.
func ReverseScalar(typ IndexType, v any) any {
	switch typ {
	case TypeNumber:
		switch n := v.(type) {
		case int64:
			return n
		default:
			return v
		}
	default:
		return v
	}
}

// ReverseColumn maps a scanned column value (scalar or pq array) back to a
// JSON-compatible value.
func ReverseColumn(idx IndexField, v any) any {
	if v == nil {
		return nil
	}
	if !idx.Array {
		return ReverseScalar(idx.Type, v)
	}
	switch arr := v.(type) {
	case []int64:
		return arr
	case []string:
		return arr
	case []bool:
		return arr
	default:
		return v
	}
}
