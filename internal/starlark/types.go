// Package starlark provides the Starlark execution context and builtins for template rendering.
package starlark

import (
	"fmt"
	"math/big"
	"slices"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Undefined is the value bound to unknown names during lenient rendering.
// It is falsy, renders as empty text, iterates as an empty sequence and
// returns itself for any attribute.
type Undefined struct {
	name string
}

var (
	_ starlark.HasAttrs = Undefined{}
	_ starlark.Iterable = Undefined{}
)

func (u Undefined) String() string        { return "" }
func (u Undefined) Type() string          { return "undefined" }
func (u Undefined) Freeze()               {}
func (u Undefined) Truth() starlark.Bool  { return starlark.False }
func (u Undefined) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: undefined %s", u.name) }
func (u Undefined) AttrNames() []string   { return nil }

// Attr returns another Undefined so dotted access on missing params stays lenient.
func (u Undefined) Attr(name string) (starlark.Value, error) {
	return Undefined{name: u.name + "." + name}, nil
}

// Iterate yields nothing.
func (u Undefined) Iterate() starlark.Iterator { return emptyIterator{} }

// Name returns the unbound name this value stands for.
func (u Undefined) Name() string { return u.name }

type emptyIterator struct{}

func (emptyIterator) Next(*starlark.Value) bool { return false }
func (emptyIterator) Done()                     {}

// IsUndefined reports whether v is an Undefined placeholder.
func IsUndefined(v starlark.Value) bool {
	_, ok := v.(Undefined)
	return ok
}

// ParamsToStarlark converts a parameter map to Starlark globals.
func ParamsToStarlark(params map[string]any) (starlark.StringDict, error) {
	out := make(starlark.StringDict, len(params))
	for name, v := range params {
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
		out[name] = sv
	}
	return out, nil
}

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: nil, string, bool, all int and float kinds, *big.Int, time.Time,
// time.Duration, []string, []any, map[string]any and starlark.Value itself.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int8:
		return starlark.MakeInt64(int64(val)), nil
	case int16:
		return starlark.MakeInt64(int64(val)), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint:
		return starlark.MakeUint(val), nil
	case uint8:
		return starlark.MakeUint64(uint64(val)), nil
	case uint16:
		return starlark.MakeUint64(uint64(val)), nil
	case uint32:
		return starlark.MakeUint64(uint64(val)), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case *big.Int:
		return starlark.MakeBigInt(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case time.Time:
		return startime.Time(val), nil
	case time.Duration:
		return startime.Duration(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := GoToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: nil, string, int64, *big.Int, float64, bool, time.Time, time.Duration,
// []any or map[string]any.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		if i64, ok := val.Int64(); ok {
			return i64, nil
		}
		return val.BigInt(), nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case startime.Time:
		return time.Time(val), nil

	case startime.Duration:
		return time.Duration(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return nil, fmt.Errorf("cannot convert %s to a Go value", v.Type())
	}
}

// FreeNames returns the sorted names an expression reads from its environment.
// Attribute names, keyword argument names and names bound by comprehensions or
// lambdas inside the expression are excluded, as are Starlark builtins.
func FreeNames(expr string) ([]string, error) {
	parsed, err := syntax.ParseExpr("", expr, 0)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	bound := make(map[string]bool)

	var visit func(n syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.Ident:
			used[n.Name] = true
		case *syntax.DotExpr:
			syntax.Walk(n.X, visit)
			return false
		case *syntax.CallExpr:
			syntax.Walk(n.Fn, visit)
			for _, arg := range n.Args {
				if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
					syntax.Walk(kw.Y, visit)
					continue
				}
				syntax.Walk(arg, visit)
			}
			return false
		case *syntax.ForClause:
			bindTargets(n.Vars, bound)
		case *syntax.LambdaExpr:
			for _, p := range n.Params {
				bindTargets(p, bound)
			}
		}
		return true
	}
	syntax.Walk(parsed, visit)

	var names []string
	for name := range used {
		if bound[name] {
			continue
		}
		if _, builtin := starlark.Universe[name]; builtin {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// bindTargets records identifiers introduced by a loop target or parameter.
func bindTargets(e syntax.Expr, bound map[string]bool) {
	switch e := e.(type) {
	case *syntax.Ident:
		bound[e.Name] = true
	case *syntax.TupleExpr:
		for _, x := range e.List {
			bindTargets(x, bound)
		}
	case *syntax.ParenExpr:
		bindTargets(e.X, bound)
	case *syntax.ListExpr:
		for _, x := range e.List {
			bindTargets(x, bound)
		}
	case *syntax.BinaryExpr:
		// default parameter value: lambda x=1: ...
		if id, ok := e.X.(*syntax.Ident); ok {
			bound[id.Name] = true
		}
	case *syntax.UnaryExpr:
		bindTargets(e.X, bound)
	}
}
