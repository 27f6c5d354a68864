package template

import (
	"maps"
	"strings"

	starctx "github.com/leapstack-labs/blocksql/internal/starlark"
	"go.starlark.net/starlark"
)

// BlockHandler is called once a sql block's body has been rendered.
// note is the evaluated note expression ("" when absent). The returned text
// replaces the block in the surrounding output.
type BlockHandler func(b *SQLBlock, body, note string) (string, error)

// Renderer evaluates a parsed template against an execution context.
type Renderer struct {
	ctx     *starctx.ExecutionContext
	onBlock BlockHandler
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithBlockHandler installs a handler for sql blocks.
func WithBlockHandler(h BlockHandler) RendererOption {
	return func(r *Renderer) {
		r.onBlock = h
	}
}

// NewRenderer creates a renderer bound to ctx.
func NewRenderer(ctx *starctx.ExecutionContext, opts ...RendererOption) *Renderer {
	r := &Renderer{ctx: ctx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderString parses and renders input in one step.
func RenderString(input, file string, ctx *starctx.ExecutionContext) (string, error) {
	tmpl, err := ParseString(input, file)
	if err != nil {
		return "", err
	}
	return NewRenderer(ctx).Render(tmpl)
}

// Render renders the whole template.
func (r *Renderer) Render(tmpl *Template) (string, error) {
	var sb strings.Builder
	if err := r.renderNodes(&sb, tmpl.Nodes, nil); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// CollapseSpace replaces every run of whitespace with one space and trims the ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (r *Renderer) renderNodes(sb *strings.Builder, nodes []Node, locals starlark.StringDict) error {
	for _, node := range nodes {
		if err := r.renderNode(sb, node, locals); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderNode(sb *strings.Builder, node Node, locals starlark.StringDict) error {
	switch n := node.(type) {
	case *TextNode:
		sb.WriteString(n.Text)
		return nil

	case *ExprNode:
		text, err := r.ctx.EvalExprStringWithLocals(n.Expr, n.pos.File, n.pos.Line, locals)
		if err != nil {
			return renderError(n.pos, err, "expression failed")
		}
		sb.WriteString(text)
		return nil

	case *ForBlock:
		return r.renderFor(sb, n, locals)

	case *IfBlock:
		return r.renderIf(sb, n, locals)

	case *SQLBlock:
		return r.renderSQL(sb, n, locals)

	default:
		return renderError(node.Pos(), nil, "unknown node type %T", node)
	}
}

func (r *Renderer) renderFor(sb *strings.Builder, n *ForBlock, locals starlark.StringDict) error {
	iterable, err := r.ctx.EvalExprWithLocals(n.IterExpr, n.pos.File, n.pos.Line, locals)
	if err != nil {
		return renderError(n.pos, err, "for iterator failed")
	}

	iter := starlark.Iterate(iterable)
	if iter == nil {
		return renderError(n.pos, nil, "cannot iterate over %s", iterable.Type())
	}
	defer iter.Done()

	loopLocals := make(starlark.StringDict, len(locals)+1)
	maps.Copy(loopLocals, locals)

	var item starlark.Value
	for iter.Next(&item) {
		loopLocals[n.VarName] = item
		if err := r.renderNodes(sb, n.Body, loopLocals); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderIf(sb *strings.Builder, n *IfBlock, locals starlark.StringDict) error {
	ok, err := r.truth(n.Condition, n.pos, locals)
	if err != nil {
		return err
	}
	if ok {
		return r.renderNodes(sb, n.Body, locals)
	}

	for _, branch := range n.ElseIfs {
		ok, err := r.truth(branch.Condition, branch.pos, locals)
		if err != nil {
			return err
		}
		if ok {
			return r.renderNodes(sb, branch.Body, locals)
		}
	}

	return r.renderNodes(sb, n.Else, locals)
}

func (r *Renderer) truth(expr string, pos Position, locals starlark.StringDict) (bool, error) {
	v, err := r.ctx.EvalExprWithLocals(expr, pos.File, pos.Line, locals)
	if err != nil {
		return false, renderError(pos, err, "condition failed")
	}
	return bool(v.Truth()), nil
}

func (r *Renderer) renderSQL(sb *strings.Builder, n *SQLBlock, locals starlark.StringDict) error {
	var body strings.Builder
	if err := r.renderNodes(&body, n.Body, locals); err != nil {
		return err
	}

	var note string
	if n.Note != "" {
		var err error
		note, err = r.ctx.EvalExprStringWithLocals(n.Note, n.pos.File, n.pos.Line, locals)
		if err != nil {
			return renderError(n.pos, err, "note of sql block %q failed", n.Name)
		}
	}

	if r.onBlock == nil {
		sb.WriteString(CollapseSpace(body.String()))
		return nil
	}

	out, err := r.onBlock(n, body.String(), note)
	if err != nil {
		return renderError(n.pos, err, "sql block %q", n.Name)
	}
	sb.WriteString(out)
	return nil
}
