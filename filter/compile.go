package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// FieldResolver is implemented by the caller's bucket descriptor. It tells
// the compiler whether an attribute may appear as a filter leaf and, if
// so, what Postgres type its backing column has.
type FieldResolver interface {
	// Usable reports whether attr may be used in a filter: it must be a
	// declared, non-reindexing indexed field, or one of the system
	// fields (_id, _key, _etag, _mtime, _txn_snap).
	Usable(attr string) bool
	// FieldType returns the Postgres base scalar type ("text", "bigint",
	// "boolean", "inet", "cidr") and whether the column is an array.
	// found is false for attributes Usable did not recognise at all.
	FieldType(attr string) (pgType string, isArray bool, found bool)
	// Coerce maps a raw filter literal to the driver argument used for
	// that attribute's column (or one element of it, for array columns).
	Coerce(attr, literal string) (any, error)
}

// Compiled is a parameterised SQL boolean expression ready to splice into
// a WHERE clause.
type Compiled struct {
	Clause string
	Args   []any
}

// unusableFieldErr marks a leaf referencing a field that isn't indexed (or
// is being reindexed). An enclosing AND drops the leaf and continues; an
// enclosing OR, NOT, or the top level treats it as fatal.
type unusableFieldErr struct{ field string }

func (e *unusableFieldErr) Error() string {
	return fmt.Sprintf("field %q is not indexed", e.field)
}

// NotIndexedError is returned by Compile when no usable clause could be
// produced, per the taxonomy's NotIndexed kind.
type NotIndexedError struct{ Field string }

func (e *NotIndexedError) Error() string {
	if e.Field == "" {
		return "filter requires at least one indexed field"
	}
	return fmt.Sprintf("field %q is not indexed", e.Field)
}

// Compile compiles a parsed filter AST to a parameterised SQL clause.
// startArg is the 1-based placeholder number to start numbering at (the
// root of a top-level compile always starts at 1; nested compiles thread
// a running counter so they stay dense, per §4.B).
func Compile(root *Node, r FieldResolver, startArg int) (*Compiled, error) {
	if startArg < 1 {
		startArg = 1
	}
	counter := startArg
	var args []any
	clause, err := compileNode(root, r, &args, &counter)
	if err != nil {
		var uf *unusableFieldErr
		if errors.As(err, &uf) {
			return nil, &NotIndexedError{Field: uf.field}
		}
		return nil, err
	}
	if clause == "" {
		return nil, &NotIndexedError{}
	}
	return &Compiled{Clause: clause, Args: args}, nil
}

func compileNode(n *Node, r FieldResolver, args *[]any, counter *int) (string, error) {
	switch n.Op {
	case OpAnd:
		return compileAnd(n, r, args, counter)
	case OpOr:
		return compileOr(n, r, args, counter)
	case OpNot:
		child, err := compileNode(n.Children[0], r, args, counter)
		if err != nil {
			return "", err
		}
		return "NOT (" + child + ")", nil
	default:
		return compileLeaf(n, r, args, counter)
	}
}

func compileAnd(n *Node, r FieldResolver, args *[]any, counter *int) (string, error) {
	var clauses []string
	var dropped error
	for _, c := range n.Children {
		cl, err := compileNode(c, r, args, counter)
		if err != nil {
			var uf *unusableFieldErr
			if errors.As(err, &uf) {
				dropped = err
				continue
			}
			return "", err
		}
		clauses = append(clauses, cl)
	}
	if len(clauses) == 0 {
		if dropped != nil {
			return "", dropped
		}
		return "", fmt.Errorf("empty and")
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

func compileOr(n *Node, r FieldResolver, args *[]any, counter *int) (string, error) {
	var clauses []string
	for _, c := range n.Children {
		cl, err := compileNode(c, r, args, counter)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, cl)
	}
	if len(clauses) == 0 {
		return "", fmt.Errorf("empty or")
	}
	return "(" + strings.Join(clauses, " OR ") + ")", nil
}

func nextArg(counter *int, args *[]any, v any) string {
	ph := fmt.Sprintf("$%d", *counter)
	*counter++
	*args = append(*args, v)
	return ph
}

func compileLeaf(n *Node, r FieldResolver, args *[]any, counter *int) (string, error) {
	switch n.Op {
	case OpApprox:
		return "", fmt.Errorf("approximate-match filters are not supported")
	case OpUnknownExt:
		// unknown extensible matching rule (see parseExtensible)
		return "", &unusableFieldErr{field: n.Attr}
	}

	if !r.Usable(n.Attr) {
		return "", &unusableFieldErr{field: n.Attr}
	}
	pgType, isArray, found := r.FieldType(n.Attr)
	if !found {
		return "", &unusableFieldErr{field: n.Attr}
	}
	col := pq.QuoteIdentifier(n.Attr)

	switch n.Op {
	case OpPresent:
		return col + " IS NOT NULL", nil

	case OpEqual:
		val, err := r.Coerce(n.Attr, n.Value)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", n.Attr, err)
		}
		if isArray {
			ph := nextArg(counter, args, val)
			return fmt.Sprintf("%s @> ARRAY[%s]::%s[]", col, ph, pgType), nil
		}
		ph := nextArg(counter, args, val)
		return fmt.Sprintf("(%s = %s AND %s IS NOT NULL)", col, ph, col), nil

	case OpGreaterEq, OpLessEq:
		op := ">="
		if n.Op == OpLessEq {
			op = "<="
		}
		val, err := r.Coerce(n.Attr, n.Value)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", n.Attr, err)
		}
		if isArray {
			ph := nextArg(counter, args, val)
			return fmt.Sprintf("%s::%s %s ANY(%s)", ph, pgType, op, col), nil
		}
		ph := nextArg(counter, args, val)
		return fmt.Sprintf("(%s %s %s AND %s IS NOT NULL)", col, op, ph, col), nil

	case OpSubstring:
		pattern := substringPattern(n.Sub, false)
		ph := nextArg(counter, args, pattern)
		return fmt.Sprintf("(%s LIKE %s AND %s IS NOT NULL)", col, ph, col), nil

	case OpExtCaseIgnoreMatch:
		lowered := strings.ToLower(n.Value)
		val, err := r.Coerce(n.Attr, lowered)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", n.Attr, err)
		}
		ph := nextArg(counter, args, val)
		return fmt.Sprintf("(LOWER(%s) = %s AND %s IS NOT NULL)", col, ph, col), nil

	case OpExtCaseIgnoreSubstrings:
		pattern := substringPattern(n.Sub, true)
		ph := nextArg(counter, args, pattern)
		return fmt.Sprintf("(%s ILIKE %s AND %s IS NOT NULL)", col, ph, col), nil

	default:
		return "", fmt.Errorf("unsupported filter operator %v", n.Op)
	}
}

// substringPattern renders a Substring as a SQL LIKE/ILIKE pattern,
// normalising adjacent `%%` produced by concatenating multiple `any`
// segments down to a single `%` (redesign per §9 open question).
func substringPattern(s *Substring, lower bool) string {
	var b strings.Builder
	if s.Initial != "" {
		b.WriteString(escapeLikeLiteral(s.Initial, lower))
	}
	b.WriteByte('%')
	for _, a := range s.Any {
		b.WriteString(escapeLikeLiteral(a, lower))
		b.WriteByte('%')
	}
	if s.Final != "" {
		b.WriteString(escapeLikeLiteral(s.Final, lower))
	}
	return normalizePercent(b.String())
}

func escapeLikeLiteral(s string, lower bool) string {
	if lower {
		s = strings.ToLower(s)
	}
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func normalizePercent(s string) string {
	for strings.Contains(s, "%%") {
		s = strings.ReplaceAll(s, "%%", "%")
	}
	return s
}
