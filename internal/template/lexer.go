package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText    TokenType = iota // Literal text (SQL)
	TokenExpr                     // Expression content (between {{ and }})
	TokenStmt                     // Statement content (between {* and *})
	TokenComment                  // Comment content (between {# and #}), never rendered
	TokenEOF                      // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenComment:
		return "COMMENT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
// Pos is where the token (including its delimiters) starts, End is just past it.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
	End   Position
}

// delimiter pairs recognized by the lexer.
var delimiters = []struct {
	open, close string
	typ         TokenType
	missing     string
}{
	{"{{", "}}", TokenExpr, "unclosed expression: missing '}}'"},
	{"{*", "*}", TokenStmt, "unclosed statement: missing '*}'"},
	{"{#", "#}", TokenComment, "unclosed comment: missing '#}'"},
}

// Lexer tokenizes a template string.
type Lexer struct {
	input    string
	file     string
	pos      int // current byte offset in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastPos  int // offset at start of current token
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		line:  1,
		col:   1,
	}
}

// Tokenize converts the input into a slice of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}

	return tokens, nil
}

// nextToken returns the next token from the input.
func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.position(), End: l.position()}, nil
	}

	for _, d := range delimiters {
		if l.matchString(d.open) {
			return l.scanDelimited(d.open, d.close, d.typ, d.missing)
		}
	}

	return l.scanText()
}

// atDelimiter reports whether any opening delimiter starts at the current position.
func (l *Lexer) atDelimiter() bool {
	for _, d := range delimiters {
		if l.matchString(d.open) {
			return true
		}
	}
	return false
}

// scanText scans literal text until a delimiter or EOF.
func (l *Lexer) scanText() (Token, error) {
	l.markStart()
	start := l.pos

	for l.pos < len(l.input) && !l.atDelimiter() {
		l.advance()
	}

	if l.pos == start {
		return Token{}, lexError(l.position(), "unexpected state in lexer")
	}

	return Token{
		Type:  TokenText,
		Value: l.input[start:l.pos],
		Pos:   l.startPosition(),
		End:   l.position(),
	}, nil
}

// scanDelimited scans an open ... close construct and returns its trimmed content.
// Expressions track brace depth so dict literals containing "}}" survive.
func (l *Lexer) scanDelimited(open, closing string, typ TokenType, missing string) (Token, error) {
	l.markStart()

	for range len(open) {
		l.advance()
	}
	l.skipWhitespace()

	contentStart := l.pos
	depth := 0

	for l.pos < len(l.input) {
		if l.matchString(closing) && depth == 0 {
			content := strings.TrimSpace(l.input[contentStart:l.pos])
			for range len(closing) {
				l.advance()
			}
			return Token{
				Type:  typ,
				Value: content,
				Pos:   l.startPosition(),
				End:   l.position(),
			}, nil
		}

		if typ == TokenExpr {
			switch l.peek() {
			case '{':
				depth++
			case '}':
				if depth > 0 {
					depth--
				}
			}
		}

		l.advance()
	}

	return Token{}, lexError(l.startPosition(), missing)
}

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// matchString checks if the input at current position matches s.
func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// skipWhitespace skips blanks (not newlines) after an opening delimiter.
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r := l.peek()
		if r != ' ' && r != '\t' {
			break
		}
		l.advance()
	}
}

// markStart records the start position for the current token.
func (l *Lexer) markStart() {
	l.lastPos = l.pos
	l.lastLine = l.line
	l.lastCol = l.col
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col, Offset: l.pos}
}

// startPosition returns the position where the current token started.
func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol, Offset: l.lastPos}
}
