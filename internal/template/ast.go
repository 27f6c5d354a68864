// Package template provides the template language used by block files.
// It supports {{ expr }} for Starlark expressions, {* stmt *} for control flow
// and named sql blocks, and {# comment #} for comments.
package template

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
	Offset int // byte offset into the source
}

// Node is the interface for all template AST nodes.
type Node interface {
	Pos() Position
	node() // marker method to restrict implementation
}

// nodeBase provides common Position handling for all nodes.
type nodeBase struct {
	pos Position
}

func (n *nodeBase) Pos() Position { return n.pos }
func (n *nodeBase) node()         {}

// TextNode represents literal SQL text (passed through unchanged).
type TextNode struct {
	nodeBase
	Text string
}

// ExprNode represents a {{ expr }} expression.
// The Expr field contains the Starlark expression source (without delimiters).
type ExprNode struct {
	nodeBase
	Expr string
}

// StmtKind identifies the type of control flow statement.
type StmtKind int

// StmtKind constants for control flow statement types.
const (
	StmtUnknown StmtKind = iota // Unknown/invalid statement
	StmtFor                     // {* for x in items: *}
	StmtEndFor                  // {* endfor *}
	StmtIf                      // {* if cond: *}
	StmtElif                    // {* elif cond: *}
	StmtElse                    // {* else: *}
	StmtEndIf                   // {* endif *}
	StmtSQL                     // {* sql name[, note = expr | cond_for = name] *}
	StmtEndSQL                  // {* endsql *}
)

func (k StmtKind) String() string {
	switch k {
	case StmtFor:
		return "for"
	case StmtEndFor:
		return "endfor"
	case StmtIf:
		return "if"
	case StmtElif:
		return "elif"
	case StmtElse:
		return "else"
	case StmtEndIf:
		return "endif"
	case StmtSQL:
		return "sql"
	case StmtEndSQL:
		return "endsql"
	default:
		return "unknown"
	}
}

// ForBlock represents a complete for loop with its body.
type ForBlock struct {
	nodeBase
	VarName  string // Loop variable name
	IterExpr string // Iterator expression (evaluated by Starlark)
	Body     []Node // Nodes inside the loop
}

// IfBlock represents a complete if/elif/else conditional.
type IfBlock struct {
	nodeBase
	Condition string   // if condition expression
	Body      []Node   // Nodes for the if branch
	ElseIfs   []Branch // elif branches (may be empty)
	Else      []Node   // else branch (may be nil)
}

// Branch represents an elif branch.
type Branch struct {
	Condition string
	Body      []Node
	pos       Position
}

// SQLBlock is a named query block:
//
//	{* sql list_users, note = "all users" *} SELECT ... {* endsql *}
//
// Name and CondFor are static; Note is a Starlark expression evaluated at render time.
type SQLBlock struct {
	nodeBase
	Name    string
	Note    string // note expression source, empty if absent
	CondFor string // owner block name, empty if absent
	Body    []Node

	// Source is the body text between the closing "*}" of the opening tag
	// and the "{*" of the endsql tag, exactly as written.
	Source    string
	OpenLine  int // line of the opening tag
	CloseLine int // line of the endsql tag
}

// Template represents a complete parsed template.
type Template struct {
	Nodes  []Node
	File   string // Source file path
	Blocks []*SQLBlock
}
