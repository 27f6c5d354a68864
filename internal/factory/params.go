package factory

import "fmt"

// ParamKind distinguishes plain values from conditional block references.
type ParamKind int

// Parameter kinds.
const (
	KindValue ParamKind = iota // plain value, converted to Starlark
	KindCond                   // one conditional block, rendered to text
	KindConds                  // several conditional blocks, rendered to a list of texts
)

func (k ParamKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindCond:
		return "cond"
	case KindConds:
		return "conds"
	default:
		return "unknown"
	}
}

// Param is a tagged parameter value.
type Param struct {
	kind  ParamKind
	value any
	conds []*Generator
}

// Value wraps a plain value: string, bool, numbers, time.Time, time.Duration,
// slices and string-keyed maps of those.
func Value(v any) Param {
	return Param{kind: KindValue, value: v}
}

// Cond references a conditional block that is resolved to its rendered text.
func Cond(g *Generator) Param {
	return Param{kind: KindCond, conds: []*Generator{g}}
}

// Conds references several conditional blocks. Empty renders are dropped.
func Conds(gs ...*Generator) Param {
	return Param{kind: KindConds, conds: gs}
}

// Kind returns the parameter kind.
func (p Param) Kind() ParamKind { return p.kind }

// Raw returns the wrapped plain value, or nil for conditional references.
func (p Param) Raw() any { return p.value }

// Generators returns the referenced conditional blocks.
func (p Param) Generators() []*Generator { return p.conds }

func (p Param) String() string {
	switch p.kind {
	case KindValue:
		return fmt.Sprintf("%v", p.value)
	default:
		names := make([]string, len(p.conds))
		for i, g := range p.conds {
			if g != nil {
				names[i] = g.Name
			}
		}
		return fmt.Sprintf("%s%v", p.kind, names)
	}
}

// Params maps parameter names to values.
type Params map[string]Param

// ParamsFrom tags a plain map: *Generator becomes Cond, []*Generator becomes
// Conds, an existing Param is kept and anything else becomes Value.
func ParamsFrom(m map[string]any) Params {
	out := make(Params, len(m))
	for name, v := range m {
		switch val := v.(type) {
		case Param:
			out[name] = val
		case *Generator:
			out[name] = Cond(val)
		case []*Generator:
			out[name] = Conds(val...)
		default:
			out[name] = Value(val)
		}
	}
	return out
}
