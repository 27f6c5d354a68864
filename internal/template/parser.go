package template

import (
	"regexp"
	"slices"
	"strings"

	"go.starlark.net/syntax"
)

// BlockFunc is called for every sql block as soon as its endsql tag is parsed,
// before anything is rendered. Returning an error aborts parsing.
type BlockFunc func(b *SQLBlock) error

// ParseString parses a template from a string.
func ParseString(input, file string) (*Template, error) {
	return Parse(input, file, nil)
}

// Parse parses a template and reports each sql block to onBlock (which may be nil).
func Parse(input, file string, onBlock BlockFunc) (*Template, error) {
	tokens, err := NewLexer(input, file).Tokenize()
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, src: input, file: file, onBlock: onBlock}
	nodes, end, err := p.parseNodes()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, NewUnmatchedBlockError(end.tok.Pos, end.kind)
	}

	return &Template{Nodes: nodes, File: file, Blocks: p.blocks}, nil
}

// stmt is a parsed {* ... *} statement.
type stmt struct {
	kind    StmtKind
	expr    string // condition, iterator or sql arguments
	varName string // loop variable (for loops only)
	tok     Token
}

type parser struct {
	tokens  []Token
	pos     int
	src     string
	file    string
	onBlock BlockFunc
	blocks  []*SQLBlock
	inSQL   bool
}

// parseNodes consumes nodes until EOF or until a statement whose kind is in stop.
// The stopping statement is consumed and returned; nil means EOF was reached.
func (p *parser) parseNodes(stop ...StmtKind) ([]Node, *stmt, error) {
	var nodes []Node

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++

		switch tok.Type {
		case TokenEOF:
			return nodes, nil, nil
		case TokenComment:
			continue
		case TokenText:
			nodes = append(nodes, &TextNode{nodeBase: nodeBase{pos: tok.Pos}, Text: tok.Value})
		case TokenExpr:
			if tok.Value == "" {
				return nil, nil, NewParseError(tok.Pos, "empty expression")
			}
			nodes = append(nodes, &ExprNode{nodeBase: nodeBase{pos: tok.Pos}, Expr: tok.Value})
		case TokenStmt:
			s, err := parseStmt(tok)
			if err != nil {
				return nil, nil, err
			}
			if slices.Contains(stop, s.kind) {
				return nodes, s, nil
			}
			node, err := p.parseBlock(s)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, node)
		}
	}

	return nodes, nil, nil
}

// parseBlock builds the block that starts with s.
func (p *parser) parseBlock(s *stmt) (Node, error) {
	switch s.kind {
	case StmtFor:
		body, end, err := p.parseNodes(StmtEndFor)
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, NewUnmatchedBlockError(s.tok.Pos, StmtFor)
		}
		return &ForBlock{nodeBase: nodeBase{pos: s.tok.Pos}, VarName: s.varName, IterExpr: s.expr, Body: body}, nil

	case StmtIf:
		return p.parseIf(s)

	case StmtSQL:
		return p.parseSQL(s)

	default:
		return nil, NewUnmatchedBlockError(s.tok.Pos, s.kind)
	}
}

func (p *parser) parseIf(s *stmt) (Node, error) {
	block := &IfBlock{nodeBase: nodeBase{pos: s.tok.Pos}, Condition: s.expr}

	body, end, err := p.parseNodes(StmtElif, StmtElse, StmtEndIf)
	if err != nil {
		return nil, err
	}
	block.Body = body

	for {
		if end == nil {
			return nil, NewUnmatchedBlockError(s.tok.Pos, StmtIf)
		}
		switch end.kind {
		case StmtEndIf:
			return block, nil
		case StmtElif:
			elif := end
			body, end, err = p.parseNodes(StmtElif, StmtElse, StmtEndIf)
			if err != nil {
				return nil, err
			}
			block.ElseIfs = append(block.ElseIfs, Branch{Condition: elif.expr, Body: body, pos: elif.tok.Pos})
		case StmtElse:
			body, end, err = p.parseNodes(StmtEndIf)
			if err != nil {
				return nil, err
			}
			if end == nil {
				return nil, NewUnmatchedBlockError(s.tok.Pos, StmtIf)
			}
			if body == nil {
				body = []Node{}
			}
			block.Else = body
			return block, nil
		}
	}
}

func (p *parser) parseSQL(s *stmt) (Node, error) {
	if p.inSQL {
		return nil, NewParseError(s.tok.Pos, "sql blocks cannot be nested")
	}

	block, err := parseSQLArgs(s)
	if err != nil {
		return nil, err
	}

	p.inSQL = true
	body, end, err := p.parseNodes(StmtEndSQL)
	p.inSQL = false
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, NewUnmatchedBlockError(s.tok.Pos, StmtSQL)
	}

	block.Body = body
	block.Source = p.src[s.tok.End.Offset:end.tok.Pos.Offset]
	block.OpenLine = s.tok.Pos.Line
	block.CloseLine = end.tok.Pos.Line

	if p.onBlock != nil {
		if err := p.onBlock(block); err != nil {
			return nil, err
		}
	}
	p.blocks = append(p.blocks, block)
	return block, nil
}

// parseStmt classifies the content of a {* ... *} token.
func parseStmt(tok Token) (*stmt, error) {
	content := strings.TrimSpace(tok.Value)
	keyword, rest, _ := strings.Cut(content, " ")
	keyword = strings.TrimSuffix(keyword, ":")
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ":")
	rest = strings.TrimSpace(rest)

	s := &stmt{tok: tok, expr: rest}

	switch keyword {
	case "for":
		varName, iter, ok := strings.Cut(rest, " in ")
		varName = strings.TrimSpace(varName)
		if !ok || !isIdentifier(varName) || strings.TrimSpace(iter) == "" {
			return nil, NewParseErrorf(tok.Pos, "invalid for statement %q: expected 'for <name> in <expr>'", content)
		}
		s.kind = StmtFor
		s.varName = varName
		s.expr = strings.TrimSpace(iter)
	case "if", "elif":
		if rest == "" {
			return nil, NewParseErrorf(tok.Pos, "%s statement requires a condition", keyword)
		}
		s.kind = StmtIf
		if keyword == "elif" {
			s.kind = StmtElif
		}
	case "else", "endif", "endfor", "endsql":
		if rest != "" {
			return nil, NewParseErrorf(tok.Pos, "unexpected arguments after %q", keyword)
		}
		s.kind = map[string]StmtKind{"else": StmtElse, "endif": StmtEndIf, "endfor": StmtEndFor, "endsql": StmtEndSQL}[keyword]
	case "sql":
		s.kind = StmtSQL
		s.expr = strings.TrimSpace(strings.TrimPrefix(content, "sql"))
	default:
		return nil, NewParseErrorf(tok.Pos, "unknown statement %q", keyword)
	}

	return s, nil
}

var keywordArg = regexp.MustCompile(`(?s)^([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)

// parseSQLArgs parses "name[, note = <expr> | cond_for = <name>]".
func parseSQLArgs(s *stmt) (*SQLBlock, error) {
	block := &SQLBlock{nodeBase: nodeBase{pos: s.tok.Pos}}

	args := splitTopLevel(s.expr)
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, NewParseError(s.tok.Pos, "sql block requires a name")
	}
	if len(args) > 2 {
		return nil, NewParseErrorf(s.tok.Pos, "sql block takes a name and at most one of note or cond_for, got %d arguments", len(args))
	}

	name, err := staticName(args[0])
	if err != nil {
		return nil, NewParseErrorf(s.tok.Pos, "invalid sql block name: %v", err)
	}
	block.Name = name

	if len(args) == 1 {
		return block, nil
	}

	m := keywordArg.FindStringSubmatch(strings.TrimSpace(args[1]))
	if m == nil {
		return nil, NewParseErrorf(s.tok.Pos, "sql block %q: expected note = <expr> or cond_for = <name>, got %q", name, strings.TrimSpace(args[1]))
	}
	value := strings.TrimSpace(m[2])
	if value == "" {
		return nil, NewParseErrorf(s.tok.Pos, "sql block %q: %s requires a value", name, m[1])
	}

	switch m[1] {
	case "note":
		if _, err := syntax.ParseExpr(s.tok.Pos.File, value, 0); err != nil {
			return nil, NewParseErrorf(s.tok.Pos, "sql block %q: invalid note expression: %v", name, err)
		}
		block.Note = value
	case "cond_for":
		owner, err := staticName(value)
		if err != nil {
			return nil, NewParseErrorf(s.tok.Pos, "sql block %q: invalid cond_for: %v", name, err)
		}
		block.CondFor = owner
	default:
		return nil, NewParseErrorf(s.tok.Pos, "sql block %q: unknown option %q (expected note or cond_for)", name, m[1])
	}

	return block, nil
}

// staticName accepts a string literal or a bare identifier.
func staticName(src string) (string, error) {
	expr, err := syntax.ParseExpr("", strings.TrimSpace(src), 0)
	if err != nil {
		return "", err
	}
	switch e := expr.(type) {
	case *syntax.Ident:
		return e.Name, nil
	case *syntax.Literal:
		if s, ok := e.Value.(string); ok && s != "" {
			return s, nil
		}
	}
	return "", &nameError{src: strings.TrimSpace(src)}
}

type nameError struct{ src string }

func (e *nameError) Error() string {
	return "expected identifier or string literal, got " + e.src
}

// splitTopLevel splits on commas that are outside quotes and brackets.
func splitTopLevel(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var parts []string
	var quote rune
	depth, start := 0, 0
	escaped := false

	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}
