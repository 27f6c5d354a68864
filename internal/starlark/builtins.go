package starlark

import (
	"fmt"

	"github.com/leapstack-labs/blocksql/internal/guard"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// GuardsNamespace is the global under which the guard functions are exposed.
const GuardsNamespace = "guards"

// Guards is the "guards" module: guards.string(v), guards.integer(v), ...
// Undefined arguments render as empty text during the compile pass and fail
// with a *guard.Error otherwise.
var Guards = newGuardsModule()

func newGuardsModule() *starlarkstruct.Module {
	members := make(starlark.StringDict, len(guard.Names))
	for _, name := range guard.Names {
		if name == "case" {
			members[name] = starlark.NewBuiltin(GuardsNamespace+".case", guardCase)
			continue
		}
		fn, _ := guard.Lookup(name)
		members[name] = guardBuiltin(name, fn)
	}
	return &starlarkstruct.Module{Name: GuardsNamespace, Members: members}
}

func guardBuiltin(name string, fn guard.Func) *starlark.Builtin {
	return starlark.NewBuiltin(GuardsNamespace+"."+name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var value starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &value); err != nil {
			return nil, err
		}
		if u, ok := value.(Undefined); ok {
			return undefinedArg(thread, name, u)
		}
		goValue, err := ToGo(value)
		if err != nil {
			return nil, err
		}
		out, err := fn(goValue)
		if err != nil {
			return nil, err
		}
		return starlark.String(out), nil
	})
}

func undefinedArg(thread *starlark.Thread, name string, u Undefined) (starlark.Value, error) {
	if inCompilePass(thread) {
		return starlark.String(""), nil
	}
	return nil, guard.Undefined(name, u.Name())
}

// guardCase implements guards.case(value, choices=None).
func guardCase(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value, choices starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "choices?", &choices); err != nil {
		return nil, err
	}
	if u, ok := value.(Undefined); ok {
		return undefinedArg(thread, "case", u)
	}
	goValue, err := ToGo(value)
	if err != nil {
		return nil, err
	}

	var goChoices any
	switch c := choices.(type) {
	case nil, starlark.NoneType:
	case *starlark.List, starlark.Tuple:
		items, err := ToGo(c)
		if err != nil {
			return nil, err
		}
		list := make([]string, 0)
		for _, item := range items.([]any) {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: choices must be strings, got %T", b.Name(), item)
			}
			list = append(list, s)
		}
		goChoices = list
	case *starlark.Dict:
		mapping := make(map[string]string, c.Len())
		for _, item := range c.Items() {
			k, ok1 := starlark.AsString(item[0])
			v, ok2 := starlark.AsString(item[1])
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("%s: choices must map strings to strings", b.Name())
			}
			mapping[k] = v
		}
		goChoices = mapping
	default:
		return nil, fmt.Errorf("%s: choices must be a list or dict, got %s", b.Name(), choices.Type())
	}

	out, err := guard.Case(goValue, goChoices)
	if err != nil {
		return nil, err
	}
	return starlark.String(out), nil
}

// ReservedNames cannot be used as macro namespaces.
var ReservedNames = []string{GuardsNamespace}

// Predeclared returns all globals for template execution: the parameters,
// the macro namespaces and the guards module. Later entries win on conflict.
func Predeclared(params, macros starlark.StringDict) starlark.StringDict {
	globals := make(starlark.StringDict, len(params)+len(macros)+1)
	for name, v := range params {
		globals[name] = v
	}
	for name, v := range macros {
		globals[name] = v
	}
	globals[GuardsNamespace] = Guards
	return globals
}
