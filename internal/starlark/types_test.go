package starlark

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

func TestGoToStarlark(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantStr string
		wantErr bool
	}{
		{
			name:    "string",
			input:   "hello",
			wantStr: `"hello"`,
		},
		{
			name:    "int",
			input:   42,
			wantStr: "42",
		},
		{
			name:    "int64",
			input:   int64(123456789),
			wantStr: "123456789",
		},
		{
			name:    "uint8",
			input:   uint8(7),
			wantStr: "7",
		},
		{
			name:    "big int",
			input:   new(big.Int).Lsh(big.NewInt(1), 70),
			wantStr: "1180591620717411303424",
		},
		{
			name:    "float64",
			input:   3.14,
			wantStr: "3.14",
		},
		{
			name:    "bool true",
			input:   true,
			wantStr: "True",
		},
		{
			name:    "nil",
			input:   nil,
			wantStr: "None",
		},
		{
			name:    "duration",
			input:   90 * time.Second,
			wantStr: "1m30s",
		},
		{
			name:    "string slice",
			input:   []string{"a", "b", "c"},
			wantStr: `["a", "b", "c"]`,
		},
		{
			name:    "any slice",
			input:   []any{"x", 1, true},
			wantStr: `["x", 1, True]`,
		},
		{
			name:    "map",
			input:   map[string]any{"key": "value"},
			wantStr: `{"key": "value"}`,
		},
		{
			name:    "starlark value",
			input:   starlark.String("raw"),
			wantStr: `"raw"`,
		},
		{
			name:    "unsupported",
			input:   struct{}{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GoToStarlark(tt.input)
			if tt.wantErr {
				assert.Error(t, err, "expected error")
				return
			}
			require.NoError(t, err, "unexpected error")
			assert.Equal(t, tt.wantStr, got.String(), "GoToStarlark()")
		})
	}
}

func TestGoToStarlark_Time(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	got, err := GoToStarlark(ts)
	require.NoError(t, err)

	v, ok := got.(startime.Time)
	require.True(t, ok, "expected time.Time value, got %T", got)
	assert.True(t, ts.Equal(time.Time(v)))
}

func TestToGo(t *testing.T) {
	ts := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	huge := new(big.Int).Lsh(big.NewInt(1), 80)

	tests := []struct {
		name    string
		input   starlark.Value
		want    any
		wantErr bool
	}{
		{
			name:  "string",
			input: starlark.String("hello"),
			want:  "hello",
		},
		{
			name:  "int",
			input: starlark.MakeInt(42),
			want:  int64(42),
		},
		{
			name:  "big int",
			input: starlark.MakeBigInt(huge),
			want:  huge,
		},
		{
			name:  "float",
			input: starlark.Float(3.14),
			want:  3.14,
		},
		{
			name:  "bool",
			input: starlark.Bool(true),
			want:  true,
		},
		{
			name:  "none",
			input: starlark.None,
			want:  nil,
		},
		{
			name:  "time",
			input: startime.Time(ts),
			want:  ts,
		},
		{
			name:  "duration",
			input: startime.Duration(time.Minute),
			want:  time.Minute,
		},
		{
			name:  "list",
			input: starlark.NewList([]starlark.Value{starlark.String("a"), starlark.MakeInt(1)}),
			want:  []any{"a", int64(1)},
		},
		{
			name:  "tuple",
			input: starlark.Tuple{starlark.String("b")},
			want:  []any{"b"},
		},
		{
			name:    "function",
			input:   starlark.NewBuiltin("f", nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGo(tt.input)
			if tt.wantErr {
				assert.Error(t, err, "expected error")
				return
			}
			require.NoError(t, err, "unexpected error")
			assert.Equal(t, tt.want, got, "ToGo()")
		})
	}
}

func TestFreeNames(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{`user_id`, []string{"user_id"}},
		{`guards.integer(user_id)`, []string{"guards", "user_id"}},
		{`a + b * a`, []string{"a", "b"}},
		{`"literal"`, nil},
		{`len(items)`, []string{"items"}},
		{`row.name`, []string{"row"}},
		{`f(x, sep = y)`, []string{"f", "x", "y"}},
		{`[c for c in cols if c != skip]`, []string{"cols", "skip"}},
		{`[k + v for k, v in pairs]`, []string{"pairs"}},
		{`(lambda x: x + offset)(1)`, []string{"offset"}},
		{`None if flag else True`, []string{"flag"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := FreeNames(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFreeNames_SyntaxError(t *testing.T) {
	_, err := FreeNames(`if`)
	assert.Error(t, err)
}

func TestUndefined(t *testing.T) {
	u := Undefined{name: "missing"}

	assert.Equal(t, "", u.String())
	assert.Equal(t, "undefined", u.Type())
	assert.Equal(t, starlark.False, u.Truth())
	assert.Equal(t, "missing", u.Name())
	assert.True(t, IsUndefined(u))
	assert.False(t, IsUndefined(starlark.None))

	_, err := u.Hash()
	assert.Error(t, err)

	attr, err := u.Attr("field")
	require.NoError(t, err)
	assert.Equal(t, "missing.field", attr.(Undefined).Name())

	var x starlark.Value
	it := u.Iterate()
	defer it.Done()
	assert.False(t, it.Next(&x))
}
