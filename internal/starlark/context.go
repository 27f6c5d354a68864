package starlark

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/leapstack-labs/blocksql/internal/macro"
	"go.starlark.net/starlark"
)

// ExecutionContext provides all globals and state for rendering one template.
// It is cheap to build; callers create one per render.
type ExecutionContext struct {
	// Params are the caller supplied parameters, accessible by name in templates.
	Params starlark.StringDict

	// Macros contains loaded macro namespaces
	// Each key is a namespace (e.g., "datetime") with a struct of functions
	Macros starlark.StringDict

	// Lenient binds unknown names to Undefined instead of failing. Undefined
	// values are falsy and render as empty text, but guards still reject them.
	Lenient bool

	// CompilePass is the parameterless render that runs right after parsing.
	// Guards pass Undefined through and expressions that fail because of an
	// unbound name render empty.
	CompilePass bool

	logger  *slog.Logger
	pool    *ThreadPool
	globals starlark.StringDict
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithMacros sets the macros for the context.
func WithMacros(macros starlark.StringDict) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.Macros = macros
	}
}

// WithMacroRegistry sets macros from a macro.Registry.
func WithMacroRegistry(registry *macro.Registry) ContextOption {
	return func(ctx *ExecutionContext) {
		if registry != nil {
			ctx.Macros = registry.ToStarlarkDict()
		}
	}
}

// WithLenient makes unknown names evaluate to Undefined.
func WithLenient() ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.Lenient = true
	}
}

// WithCompilePass marks the context as the compile-time render. It implies WithLenient.
func WithCompilePass() ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.Lenient = true
		ctx.CompilePass = true
	}
}

// WithThreadPool shares a thread pool between contexts.
func WithThreadPool(pool *ThreadPool) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.pool = pool
	}
}

// WithLogger sets the logger used for lenient evaluation diagnostics.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.logger = logger
	}
}

// NewExecutionContext creates a new execution context for the given parameters.
func NewExecutionContext(params starlark.StringDict, opts ...ContextOption) *ExecutionContext {
	ctx := &ExecutionContext{
		Params: params,
		Macros: make(starlark.StringDict),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if ctx.pool == nil {
		ctx.pool = NewThreadPool(1)
	}
	if ctx.logger == nil {
		ctx.logger = slog.New(slog.DiscardHandler)
	}
	ctx.globals = Predeclared(ctx.Params, ctx.Macros)
	return ctx
}

// Globals returns the combined globals dictionary for Starlark execution.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	return ctx.globals
}

// EvalExpr evaluates a single Starlark expression and returns the result.
func (ctx *ExecutionContext) EvalExpr(expr string, filename string, line int) (starlark.Value, error) {
	return ctx.EvalExprWithLocals(expr, filename, line, nil)
}

// EvalExprWithLocals evaluates a Starlark expression with additional local variables,
// such as loop variables.
func (ctx *ExecutionContext) EvalExprWithLocals(expr string, filename string, line int, locals starlark.StringDict) (starlark.Value, error) {
	thread := ctx.pool.Get(filename)
	defer ctx.pool.Put(thread)
	thread.SetLocal(compilePassKey, ctx.CompilePass)

	globals := ctx.globals
	if len(locals) > 0 || ctx.Lenient {
		combined := make(starlark.StringDict, len(globals)+len(locals))
		maps.Copy(combined, globals)
		maps.Copy(combined, locals)
		globals = combined
	}

	var unbound []string
	if ctx.Lenient {
		names, err := FreeNames(expr)
		if err != nil {
			return nil, &EvalError{File: filename, Line: line, Expr: expr, Message: err.Error()}
		}
		for _, name := range names {
			if _, ok := globals[name]; !ok {
				globals[name] = Undefined{name: name}
				unbound = append(unbound, name)
			}
		}
	}

	result, err := starlark.Eval(thread, filename, expr, globals) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		if ctx.CompilePass && len(unbound) > 0 {
			ctx.logger.Debug("expression depends on unbound names, rendering empty",
				"file", filename, "line", line, "expr", expr, "names", unbound, "error", err)
			return Undefined{name: unbound[0]}, nil
		}
		return nil, &EvalError{
			File:    filename,
			Line:    line,
			Expr:    expr,
			Message: err.Error(),
			Cause:   err,
		}
	}

	return result, nil
}

const compilePassKey = "blocksql.compile_pass"

// inCompilePass reports whether thread is evaluating for the compile-time render.
func inCompilePass(thread *starlark.Thread) bool {
	on, _ := thread.Local(compilePassKey).(bool)
	return on
}

// EvalExprString evaluates a Starlark expression and returns the string result.
func (ctx *ExecutionContext) EvalExprString(expr string, filename string, line int) (string, error) {
	return ctx.EvalExprStringWithLocals(expr, filename, line, nil)
}

// EvalExprStringWithLocals evaluates a Starlark expression with local variables and returns the string result.
func (ctx *ExecutionContext) EvalExprStringWithLocals(expr string, filename string, line int, locals starlark.StringDict) (string, error) {
	result, err := ctx.EvalExprWithLocals(expr, filename, line, locals)
	if err != nil {
		return "", err
	}
	return ToText(result), nil
}

// ToText converts a value to the text spliced into a template.
func ToText(v starlark.Value) string {
	switch v := v.(type) {
	case starlark.String:
		return string(v)
	case starlark.NoneType, Undefined:
		return ""
	default:
		return v.String()
	}
}

// EvalError represents an error during Starlark expression evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
	Cause   error // underlying Starlark error; unwraps to errors raised by builtins
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}
