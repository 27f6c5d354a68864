package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/blocksql/pkg/blocksql"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// paramFlags are the flags shared by render and exec.
type paramFlags struct {
	values     []string
	conds      []string
	paramsFile string
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&p.values, "param", "p", nil, "Parameter as key=value; prefix the value with int:, float:, bool:, date:, datetime:, time: or duration: to type it")
	cmd.Flags().StringArrayVar(&p.conds, "cond", nil, "Conditional parameter as key=block[,block...]")
	cmd.Flags().StringVar(&p.paramsFile, "params-file", "", "YAML file with parameter values")
}

// empty reports whether no parameters were given.
func (p *paramFlags) empty() bool {
	return len(p.values) == 0 && len(p.conds) == 0 && p.paramsFile == ""
}

// build resolves the flags into template parameters. Conditional blocks are
// looked up in f. The plain values are also returned for display.
func (p *paramFlags) build(f *blocksql.Factory) (blocksql.Params, map[string]any, error) {
	plain := make(map[string]any)

	if p.paramsFile != "" {
		fromFile, err := readParamsFile(p.paramsFile)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range fromFile {
			plain[k] = v
		}
	}

	for _, kv := range p.values {
		key, raw, err := splitAssignment(kv, "--param")
		if err != nil {
			return nil, nil, err
		}
		v, err := parseTypedValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("--param %s: %w", key, err)
		}
		plain[key] = v
	}

	params := blocksql.ParamsFrom(plain)

	for _, kv := range p.conds {
		key, raw, err := splitAssignment(kv, "--cond")
		if err != nil {
			return nil, nil, err
		}
		var gens []*blocksql.Generator
		for _, name := range strings.Split(raw, ",") {
			g, err := f.Get(strings.TrimSpace(name))
			if err != nil {
				return nil, nil, fmt.Errorf("--cond %s: %w", key, err)
			}
			gens = append(gens, g)
		}
		if len(gens) == 1 {
			params[key] = blocksql.Cond(gens[0])
		} else {
			params[key] = blocksql.Conds(gens...)
		}
	}

	return params, plain, nil
}

func splitAssignment(kv, flag string) (string, string, error) {
	key, value, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("%s %q: expected key=value", flag, kv)
	}
	return key, value, nil
}

// parseTypedValue converts "int:5", "date:2024-01-31" and the like into Go values.
// Values without a known prefix stay strings.
func parseTypedValue(s string) (any, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok {
		return s, nil
	}

	switch prefix {
	case "int":
		return strconv.ParseInt(rest, 10, 64)
	case "float":
		return strconv.ParseFloat(rest, 64)
	case "bool":
		return strconv.ParseBool(rest)
	case "date":
		return time.Parse(time.DateOnly, rest)
	case "datetime":
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, rest); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("invalid datetime %q (expected RFC 3339 or %q)", rest, time.DateTime)
	case "time":
		t, err := time.Parse(time.TimeOnly, rest)
		if err != nil {
			return nil, err
		}
		return time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
	case "duration":
		return time.ParseDuration(rest)
	case "str":
		return rest, nil
	default:
		return s, nil
	}
}

// readParamsFile decodes a YAML mapping of parameter names to values.
// String values accept the same type prefixes as --param.
func readParamsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse params file %s: %w", path, err)
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		typed, err := typeStrings(v)
		if err != nil {
			return nil, fmt.Errorf("params file %s: %s: %w", path, k, err)
		}
		out[k] = typed
	}
	return out, nil
}

func typeStrings(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return parseTypedValue(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			typed, err := typeStrings(item)
			if err != nil {
				return nil, err
			}
			out[i] = typed
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			typed, err := typeStrings(item)
			if err != nil {
				return nil, err
			}
			out[k] = typed
		}
		return out, nil
	default:
		return v, nil
	}
}
