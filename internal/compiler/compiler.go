// Package compiler turns template source into a registry snapshot of sql blocks.
//
// Compilation runs in two passes over one parse:
//
//  1. Registration: as each block's endsql tag is parsed, its raw body source is
//     recorded under the block name.
//  2. Normalization: the template is rendered once without parameters. When a
//     block finishes rendering its whitespace-collapsed text, note and condition
//     ownership are recorded.
//
// Every call owns its registry, so concurrent compilations never share state.
package compiler

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/blocksql/internal/macro"
	"github.com/leapstack-labs/blocksql/internal/registry"
	starctx "github.com/leapstack-labs/blocksql/internal/starlark"
	"github.com/leapstack-labs/blocksql/internal/template"
	"go.starlark.net/starlark"
)

// Option configures a compilation.
type Option func(*Unit)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unit) {
		u.logger = logger
	}
}

// WithMacroRegistry exposes macro namespaces to block bodies.
func WithMacroRegistry(r *macro.Registry) Option {
	return func(u *Unit) {
		if r != nil {
			u.macros = r.ToStarlarkDict()
		}
	}
}

// WithThreadPool shares Starlark threads with other renders.
func WithThreadPool(pool *starctx.ThreadPool) Option {
	return func(u *Unit) {
		u.pool = pool
	}
}

// Unit is the state of a single compilation.
type Unit struct {
	file   string
	reg    *registry.Registry
	logger *slog.Logger
	macros starlark.StringDict
	pool   *starctx.ThreadPool

	normalized map[string]bool
}

// Compile parses and normalizes source and returns a validated snapshot.
// file is used for error positions only.
func Compile(file, source string, opts ...Option) (*registry.Snapshot, error) {
	u := &Unit{
		file:       file,
		reg:        registry.New(),
		logger:     slog.New(slog.DiscardHandler),
		normalized: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u.compile(source)
}

func (u *Unit) compile(source string) (*registry.Snapshot, error) {
	tmpl, err := template.Parse(source, u.file, u.register)
	if err != nil {
		return nil, err
	}

	ctxOpts := []starctx.ContextOption{
		starctx.WithCompilePass(),
		starctx.WithMacros(u.macros),
		starctx.WithLogger(u.logger),
	}
	if u.pool != nil {
		ctxOpts = append(ctxOpts, starctx.WithThreadPool(u.pool))
	}
	renderer := template.NewRenderer(starctx.NewExecutionContext(nil, ctxOpts...), template.WithBlockHandler(u.normalize))

	if _, err := renderer.Render(tmpl); err != nil {
		return nil, err
	}

	// blocks in branches the parameterless render skipped
	for _, b := range tmpl.Blocks {
		if u.normalized[b.Name] {
			continue
		}
		u.logger.Debug("normalizing block outside the rendered path", "file", u.file, "block", b.Name)
		if _, err := renderer.Render(&template.Template{Nodes: []template.Node{b}, File: u.file}); err != nil {
			return nil, err
		}
	}

	snap := u.reg.Snapshot()
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", u.file, err)
	}

	u.logger.Debug("compiled template", "file", u.file, "blocks", snap.Len())
	return snap, nil
}

// register runs as soon as a block is parsed.
func (u *Unit) register(b *template.SQLBlock) error {
	if err := u.reg.Register(b.Name, RawSQL(b.Source), b.OpenLine, b.CloseLine); err != nil {
		return fmt.Errorf("%s:%d: %w", u.file, b.OpenLine, err)
	}

	params, err := u.freeParams(b.Body)
	if err != nil {
		return template.NewParseErrorf(b.Pos(), "sql block %q: %v", b.Name, err)
	}
	u.reg.SetOrMerge(b.Name, func(blk *registry.Block) {
		blk.Params = params
	})
	return nil
}

// normalize runs when a block's body has been rendered without parameters.
func (u *Unit) normalize(b *template.SQLBlock, body, note string) (string, error) {
	sql := template.CollapseSpace(body)

	u.reg.SetOrMerge(b.Name, func(blk *registry.Block) {
		blk.SQL = sql
		blk.Note = note
		blk.IsCond = b.CondFor != ""
		blk.CondFor = b.CondFor
	})
	if b.CondFor != "" {
		u.reg.LinkCondition(b.CondFor, b.Name)
	}
	u.normalized[b.Name] = true

	return sql, nil
}

// RawSQL trims every line of a block body and joins them with single spaces.
func RawSQL(source string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

// freeParams lists the names a block body reads that are not loop variables,
// macro namespaces or the guards module.
func (u *Unit) freeParams(nodes []template.Node) ([]string, error) {
	found := make(map[string]bool)
	if err := u.collect(nodes, nil, found); err != nil {
		return nil, err
	}

	params := make([]string, 0, len(found))
	for name := range found {
		if name == starctx.GuardsNamespace {
			continue
		}
		if _, ok := u.macros[name]; ok {
			continue
		}
		params = append(params, name)
	}
	slices.Sort(params)
	return params, nil
}

func (u *Unit) collect(nodes []template.Node, bound map[string]bool, found map[string]bool) error {
	add := func(expr string) error {
		names, err := starctx.FreeNames(expr)
		if err != nil {
			return err
		}
		for _, name := range names {
			if !bound[name] {
				found[name] = true
			}
		}
		return nil
	}

	for _, node := range nodes {
		switch n := node.(type) {
		case *template.ExprNode:
			if err := add(n.Expr); err != nil {
				return err
			}
		case *template.IfBlock:
			if err := add(n.Condition); err != nil {
				return err
			}
			if err := u.collect(n.Body, bound, found); err != nil {
				return err
			}
			for _, branch := range n.ElseIfs {
				if err := add(branch.Condition); err != nil {
					return err
				}
				if err := u.collect(branch.Body, bound, found); err != nil {
					return err
				}
			}
			if err := u.collect(n.Else, bound, found); err != nil {
				return err
			}
		case *template.ForBlock:
			if err := add(n.IterExpr); err != nil {
				return err
			}
			inner := make(map[string]bool, len(bound)+1)
			for k := range bound {
				inner[k] = true
			}
			inner[n.VarName] = true
			if err := u.collect(n.Body, inner, found); err != nil {
				return err
			}
		}
	}
	return nil
}
