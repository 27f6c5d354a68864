// Package factory builds query generators from a compiled registry snapshot.
//
// A Factory holds one Generator per sql block. Generators are read-only over
// the snapshot and safe for concurrent use.
package factory

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/leapstack-labs/blocksql/internal/guard"
	"github.com/leapstack-labs/blocksql/internal/macro"
	"github.com/leapstack-labs/blocksql/internal/registry"
	starctx "github.com/leapstack-labs/blocksql/internal/starlark"
	"github.com/leapstack-labs/blocksql/internal/template"
	"go.starlark.net/starlark"
)

// Option configures a Factory.
type Option func(*Factory)

// WithResultEscaping controls whether parametrized results are passed through
// guard.EscapeString. It is on by default; the parameterless path is never escaped.
func WithResultEscaping(enabled bool) Option {
	return func(f *Factory) {
		f.escape = enabled
	}
}

// WithMacroRegistry exposes macro namespaces to generator renders.
func WithMacroRegistry(r *macro.Registry) Option {
	return func(f *Factory) {
		if r != nil {
			f.macros = r.ToStarlarkDict()
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithThreadPool shares Starlark threads with other factories.
func WithThreadPool(pool *starctx.ThreadPool) Option {
	return func(f *Factory) {
		f.pool = pool
	}
}

// WithFile names the template in render error positions.
func WithFile(file string) Option {
	return func(f *Factory) {
		f.file = file
	}
}

// Factory is the name-indexed set of generators of one template.
type Factory struct {
	file       string
	snap       *registry.Snapshot
	generators map[string]*Generator
	escape     bool
	macros     starlark.StringDict
	pool       *starctx.ThreadPool
	logger     *slog.Logger
}

// New validates snap and builds a generator for every block in it.
func New(snap *registry.Snapshot, opts ...Option) (*Factory, error) {
	f := &Factory{
		snap:   snap,
		escape: true,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.pool == nil {
		f.pool = starctx.NewThreadPool(0, starctx.WithPrintLogger(f.logger))
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}

	f.generators = make(map[string]*Generator, snap.Len())
	for _, b := range snap.Blocks() {
		tmpl, err := template.ParseString(b.RawSQL, f.file)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", b.Name, err)
		}
		f.generators[b.Name] = &Generator{
			Name:    b.Name,
			Note:    b.Note,
			IsCond:  b.IsCond,
			Owner:   b.CondFor,
			Params:  b.Params,
			Conds:   b.Conds,
			sql:     b.SQL,
			rawSQL:  b.RawSQL,
			tmpl:    tmpl,
			factory: f,
		}
	}
	return f, nil
}

// Get returns the generator for name.
func (f *Factory) Get(name string) (*Generator, error) {
	g, ok := f.generators[name]
	if !ok {
		return nil, &registry.UnknownBlockError{Name: name}
	}
	return g, nil
}

// MustGet is like Get but panics on unknown names.
func (f *Factory) MustGet(name string) *Generator {
	g, err := f.Get(name)
	if err != nil {
		panic(err)
	}
	return g
}

// Render renders the block name with params.
func (f *Factory) Render(name string, params Params) (string, error) {
	g, err := f.Get(name)
	if err != nil {
		return "", err
	}
	return g.Render(params)
}

// Names returns the block names in sorted order.
func (f *Factory) Names() []string {
	return f.snap.Names()
}

// Len returns the number of generators.
func (f *Factory) Len() int {
	return len(f.generators)
}

// Blocks returns block metadata in declaration order.
func (f *Factory) Blocks() []registry.Block {
	return f.snap.Blocks()
}

// File returns the template name the factory was built from.
func (f *Factory) File() string {
	return f.file
}

func (f *Factory) render(tmpl *template.Template, params starlark.StringDict) (string, error) {
	ctx := starctx.NewExecutionContext(params,
		starctx.WithLenient(),
		starctx.WithMacros(f.macros),
		starctx.WithThreadPool(f.pool),
		starctx.WithLogger(f.logger),
	)
	out, err := template.NewRenderer(ctx).Render(tmpl)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Generator renders one sql block.
type Generator struct {
	Name   string
	Note   string
	IsCond bool
	Owner  string   // owning block when IsCond
	Params []string // parameter names the body references
	Conds  []string // conditional blocks owned by this one

	sql     string
	rawSQL  string
	tmpl    *template.Template
	factory *Factory
}

// SQL returns the text rendered at compile time without parameters.
func (g *Generator) SQL() string { return g.sql }

// RawSQL returns the block body source the generator renders.
func (g *Generator) RawSQL() string { return g.rawSQL }

func (g *Generator) String() string {
	if g.IsCond {
		return fmt.Sprintf("<sql %s cond_for=%s>", g.Name, g.Owner)
	}
	return fmt.Sprintf("<sql %s>", g.Name)
}

// Render produces the block's SQL.
//
// Conditional blocks cannot be rendered directly. Without parameters the text
// captured at compile time is returned as is. Otherwise conditional parameters
// are rendered first, then the block body is rendered with all parameters,
// trimmed and, unless disabled, single quotes are doubled. Whitespace inside
// the result is left alone. Parameters the body does not receive are falsy
// and render empty; passing one to a guard is a *guard.Error.
func (g *Generator) Render(params Params) (string, error) {
	if g.IsCond {
		return "", &ScopeError{Name: g.Name, Owner: g.Owner}
	}
	if len(params) == 0 {
		return g.sql, nil
	}

	plain := make(starlark.StringDict, len(params))
	for name, p := range params {
		if p.kind != KindValue {
			continue
		}
		v, err := starctx.GoToStarlark(p.value)
		if err != nil {
			return "", &ParamError{Block: g.Name, Param: name, Err: err}
		}
		plain[name] = v
	}

	resolved := maps.Clone(plain)
	for name, p := range params {
		switch p.kind {
		case KindCond:
			text, err := g.resolve(name, p.conds[0], plain)
			if err != nil {
				return "", err
			}
			resolved[name] = starlark.String(text)

		case KindConds:
			texts := make([]starlark.Value, 0, len(p.conds))
			for _, c := range p.conds {
				text, err := g.resolve(name, c, plain)
				if err != nil {
					return "", err
				}
				if text != "" {
					texts = append(texts, starlark.String(text))
				}
			}
			resolved[name] = starlark.NewList(texts)
		}
	}

	out, err := g.factory.render(g.tmpl, resolved)
	if err != nil {
		return "", fmt.Errorf("render %q: %w", g.Name, err)
	}
	if g.factory.escape {
		out = guard.EscapeString(out)
	}
	return out, nil
}

// resolve renders a conditional block owned by g and trims the result.
// The conditional sees only the plain value parameters: other conditional
// parameters of the same call are unbound while it renders.
func (g *Generator) resolve(param string, c *Generator, plain starlark.StringDict) (string, error) {
	if c == nil {
		return "", &ParamError{Block: g.Name, Param: param, Err: fmt.Errorf("nil conditional block")}
	}
	if !c.IsCond || c.Owner != g.Name {
		return "", &ConditionMismatchError{Cond: c.Name, Owner: c.Owner, Expected: g.Name}
	}

	text, err := c.factory.render(c.tmpl, plain)
	if err != nil {
		return "", fmt.Errorf("render condition %q: %w", c.Name, err)
	}
	return text, nil
}
