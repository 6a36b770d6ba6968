// Package filter implements the LDAP-style filter grammar used by
// FindObjects and UpdateObjects: parsing a filter string to an AST,
// decorating it against a bucket's indexed fields, and compiling it to a
// parameterised SQL WHERE clause.
package filter

// Op identifies the kind of filter node.
type Op int

const (
	// OpUnknownExt marks an extensible filter whose matching rule this
	// grammar does not implement. It always compiles to NotIndexed.
	OpUnknownExt Op = -1

	OpAnd Op = iota
	OpOr
	OpNot
	OpEqual
	OpPresent
	OpGreaterEq
	OpLessEq
	OpSubstring
	OpApprox // (attr~=value) - parsed but always rejected at compile time
	OpExtCaseIgnoreMatch
	OpExtCaseIgnoreSubstrings
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	case OpEqual:
		return "equal"
	case OpPresent:
		return "present"
	case OpGreaterEq:
		return "ge"
	case OpLessEq:
		return "le"
	case OpSubstring:
		return "substring"
	case OpApprox:
		return "approx"
	case OpExtCaseIgnoreMatch:
		return "ext:caseIgnoreMatch"
	case OpExtCaseIgnoreSubstrings:
		return "ext:caseIgnoreSubstringsMatch"
	default:
		return "unknown"
	}
}

// Substring holds the decomposed pieces of a substring filter value:
// `initial*any*any*final`, any side optional.
type Substring struct {
	Initial string
	Any     []string
	Final   string
}

// Node is one AST node. Leaves (equal/present/ge/le/substring/ext-*) carry
// Attr and, except for present, Value or Sub. Internal nodes (and/or/not)
// carry Children.
type Node struct {
	Op       Op
	Attr     string
	Value    string
	Sub      *Substring
	Children []*Node
}

// Leaf reports whether n is a leaf node (as opposed to and/or/not).
func (n *Node) Leaf() bool {
	switch n.Op {
	case OpAnd, OpOr, OpNot:
		return false
	default:
		return true
	}
}
