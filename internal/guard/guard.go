// Package guard converts typed Go values into SQL literal text.
// Every guard rejects values of the wrong type with an *Error instead of coercing them.
package guard

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Layouts accepted and produced by the temporal guards.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04:05"
)

// Error reports a value that does not match the type a guard expects.
type Error struct {
	Guard    string // guard name, e.g. "integer"
	Expected string // human readable expected type
	Value    any    // offending value
	Cause    error  // parse error for string inputs, if any
	Missing  string // parameter that was never supplied, if any
}

func (e *Error) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("guards.%s: expected %s, parameter %q is undefined", e.Guard, e.Expected, e.Missing)
	}
	msg := fmt.Sprintf("guards.%s: expected %s, got %T (%v)", e.Guard, e.Expected, e.Value, e.Value)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Func is the common shape of the single-argument guards.
type Func func(v any) (string, error)

// Names lists the guards in the order they are registered for templates.
var Names = []string{"string", "integer", "date", "datetime", "float", "timedelta", "time", "case"}

// EscapeString doubles every single quote so s can be spliced into a single-quoted literal.
// Nothing else is changed.
func EscapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func quote(s string) string {
	return "'" + EscapeString(s) + "'"
}

// String renders a text value as a quoted literal.
func String(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &Error{Guard: "string", Expected: "string", Value: v}
	}
	return quote(s), nil
}

// Integer renders any Go integer type. Booleans and numeric strings are rejected.
func Integer(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), nil
	case int8:
		return strconv.FormatInt(int64(n), 10), nil
	case int16:
		return strconv.FormatInt(int64(n), 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case *big.Int:
		if n == nil {
			break
		}
		return n.String(), nil
	}
	return "", &Error{Guard: "integer", Expected: "integer", Value: v}
}

// Float renders a finite floating point value.
func Float(v any) (string, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	default:
		return "", &Error{Guard: "float", Expected: "float", Value: v}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &Error{Guard: "float", Expected: "finite float", Value: v}
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// Date renders the calendar date of a time.Time or a validated "YYYY-MM-DD" string.
func Date(v any) (string, error) {
	t, err := temporal("date", "date", v, DateLayout)
	if err != nil {
		return "", err
	}
	return quote(t.Format(DateLayout)), nil
}

// DateTime renders a timestamp without zone as "YYYY-MM-DD HH:MM:SS".
func DateTime(v any) (string, error) {
	t, err := temporal("datetime", "datetime", v, DateTimeLayout, time.RFC3339Nano, time.RFC3339)
	if err != nil {
		return "", err
	}
	return quote(t.Format(DateTimeLayout)), nil
}

// Time renders the clock part of a time.Time or a validated "HH:MM:SS" string.
func Time(v any) (string, error) {
	t, err := temporal("time", "time", v, TimeLayout)
	if err != nil {
		return "", err
	}
	return quote(t.Format(TimeLayout)), nil
}

func temporal(name, expected string, v any, layouts ...string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		var lastErr error
		for _, layout := range layouts {
			parsed, err := time.Parse(layout, t)
			if err == nil {
				return parsed, nil
			}
			lastErr = err
		}
		return time.Time{}, &Error{Guard: name, Expected: expected + " (" + layouts[0] + ")", Value: v, Cause: lastErr}
	}
	return time.Time{}, &Error{Guard: name, Expected: expected, Value: v}
}

// Timedelta renders a duration as an interval literal counted in seconds.
func Timedelta(v any) (string, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return "", &Error{Guard: "timedelta", Expected: "duration", Value: v}
	}
	return quote(strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + " seconds"), nil
}

// Case passes a selector string through unquoted. When choices is a []string the
// value must be one of them; when it is a map[string]string the mapped text is returned.
func Case(v any, choices any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &Error{Guard: "case", Expected: "string", Value: v}
	}
	switch c := choices.(type) {
	case nil:
		return s, nil
	case []string:
		if !slices.Contains(c, s) {
			return "", &Error{Guard: "case", Expected: "one of [" + strings.Join(c, ", ") + "]", Value: v}
		}
		return s, nil
	case map[string]string:
		out, ok := c[s]
		if !ok {
			keys := make([]string, 0, len(c))
			for k := range c {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			return "", &Error{Guard: "case", Expected: "one of [" + strings.Join(keys, ", ") + "]", Value: v}
		}
		return out, nil
	}
	return "", fmt.Errorf("guards.case: unsupported choices type %T", choices)
}

// Undefined returns the error for a guard applied to a parameter that was not
// supplied.
func Undefined(name, param string) *Error {
	e := &Error{Guard: name, Expected: name, Missing: param}
	if fn, ok := Lookup(name); ok {
		var typed *Error
		if _, err := fn(nil); errors.As(err, &typed) {
			e.Expected = typed.Expected
		}
	}
	return e
}

// Lookup returns the single-argument guard registered under name.
// "case" is returned without choices.
func Lookup(name string) (Func, bool) {
	switch name {
	case "string":
		return String, true
	case "integer":
		return Integer, true
	case "float":
		return Float, true
	case "date":
		return Date, true
	case "datetime":
		return DateTime, true
	case "time":
		return Time, true
	case "timedelta":
		return Timedelta, true
	case "case":
		return func(v any) (string, error) { return Case(v, nil) }, true
	}
	return nil, false
}
