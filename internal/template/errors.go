package template

import "fmt"

// Error is implemented by every error this package returns. Position points
// at the token that caused it.
type Error interface {
	error
	Position() Position
}

// located is the position and message shared by the error types below.
type located struct {
	Pos Position
	Msg string
}

// Position returns where the error occurred.
func (l located) Position() Position { return l.Pos }

func (l located) String() string {
	if l.Pos.File == "" {
		return fmt.Sprintf("%d:%d: %s", l.Pos.Line, l.Pos.Column, l.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", l.Pos.File, l.Pos.Line, l.Pos.Column, l.Msg)
}

// LexError is an unterminated or malformed delimiter.
type LexError struct{ located }

func (e *LexError) Error() string { return e.String() }

func lexError(pos Position, msg string) *LexError {
	return &LexError{located{Pos: pos, Msg: msg}}
}

// ParseError is a malformed statement, including bad sql block tags.
type ParseError struct{ located }

func (e *ParseError) Error() string { return e.String() }

// NewParseError creates a parse error with a fixed message.
func NewParseError(pos Position, msg string) *ParseError {
	return &ParseError{located{Pos: pos, Msg: msg}}
}

// NewParseErrorf creates a parse error with a formatted message.
func NewParseErrorf(pos Position, format string, args ...any) *ParseError {
	return NewParseError(pos, fmt.Sprintf(format, args...))
}

// RenderError is a failure while evaluating a parsed template. Cause holds the
// Starlark or block handler error, if any.
type RenderError struct {
	located
	Cause error
}

func (e *RenderError) Error() string {
	if e.Cause == nil {
		return e.String()
	}
	return e.String() + ": " + e.Cause.Error()
}

func (e *RenderError) Unwrap() error { return e.Cause }

func renderError(pos Position, cause error, format string, args ...any) *RenderError {
	return &RenderError{located: located{Pos: pos, Msg: fmt.Sprintf(format, args...)}, Cause: cause}
}

// UnmatchedBlockError is an opening statement without its closing tag, or a
// closing or continuation tag without its opener.
type UnmatchedBlockError struct {
	located
	BlockKind StmtKind
}

func (e *UnmatchedBlockError) Error() string { return e.String() }

// pairs maps every block statement to the opener and closer it belongs to.
var pairs = map[StmtKind][2]string{
	StmtFor:    {"for", "endfor"},
	StmtEndFor: {"for", "endfor"},
	StmtIf:     {"if", "endif"},
	StmtElif:   {"if", "elif"},
	StmtElse:   {"if", "else"},
	StmtEndIf:  {"if", "endif"},
	StmtSQL:    {"sql", "endsql"},
	StmtEndSQL: {"sql", "endsql"},
}

// NewUnmatchedBlockError creates the error for an unbalanced statement of kind.
func NewUnmatchedBlockError(pos Position, kind StmtKind) *UnmatchedBlockError {
	msg := fmt.Sprintf("unmatched block: %s", kind)
	if p, ok := pairs[kind]; ok {
		switch kind {
		case StmtFor, StmtIf, StmtSQL:
			msg = fmt.Sprintf("unclosed '%s' block (missing '%s')", p[0], p[1])
		default:
			msg = fmt.Sprintf("'%s' without matching '%s'", p[1], p[0])
		}
	}
	return &UnmatchedBlockError{located: located{Pos: pos, Msg: msg}, BlockKind: kind}
}
