package starlark

import (
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/blocksql/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestPredeclared(t *testing.T) {
	params := starlark.StringDict{"user_id": starlark.MakeInt(7)}
	macros := starlark.StringDict{"utils": starlark.String("utils_module")}

	globals := Predeclared(params, macros)

	for _, key := range []string{"user_id", "utils", GuardsNamespace} {
		_, ok := globals[key]
		assert.True(t, ok, "global %q not found", key)
	}
}

func TestPredeclared_GuardsWin(t *testing.T) {
	params := starlark.StringDict{GuardsNamespace: starlark.String("shadow")}

	globals := Predeclared(params, nil)

	assert.Equal(t, Guards, globals[GuardsNamespace])
}

func TestGuardsModule(t *testing.T) {
	params, err := ParamsToStarlark(map[string]any{
		"name":  "O'Brien",
		"id":    42,
		"ratio": 0.5,
		"day":   time.Date(2024, 3, 1, 13, 14, 15, 0, time.UTC),
		"span":  90 * time.Second,
		"dir":   "desc",
	})
	require.NoError(t, err)
	ctx := NewExecutionContext(params)

	tests := []struct {
		expr string
		want string
	}{
		{`guards.string(name)`, `'O''Brien'`},
		{`guards.integer(id)`, `42`},
		{`guards.float(ratio)`, `0.5`},
		{`guards.date(day)`, `'2024-03-01'`},
		{`guards.datetime(day)`, `'2024-03-01 13:14:15'`},
		{`guards.time(day)`, `'13:14:15'`},
		{`guards.timedelta(span)`, `'90 seconds'`},
		{`guards.case(dir)`, `desc`},
		{`guards.case(dir, ["asc", "desc"])`, `desc`},
		{`guards.case(dir, {"desc": "DESC", "asc": "ASC"})`, `DESC`},
		{`guards.date("2024-01-31")`, `'2024-01-31'`},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ctx.EvalExprString(tt.expr, "guards.sql", 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuardsModule_Rejects(t *testing.T) {
	ctx := NewExecutionContext(starlark.StringDict{
		"id":   starlark.String("42"),
		"flag": starlark.True,
		"dir":  starlark.String("sideways"),
	})

	tests := []struct {
		expr  string
		guard string
	}{
		{`guards.integer(id)`, "integer"},
		{`guards.integer(flag)`, "integer"},
		{`guards.string(1)`, "string"},
		{`guards.float(1)`, "float"},
		{`guards.date("01/02/2024")`, "date"},
		{`guards.case(dir, ["asc", "desc"])`, "case"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ctx.EvalExpr(tt.expr, "guards.sql", 3)
			require.Error(t, err)

			var guardErr *guard.Error
			require.True(t, errors.As(err, &guardErr), "expected *guard.Error in chain, got %v", err)
			assert.Equal(t, tt.guard, guardErr.Guard)
		})
	}
}

func TestGuardsModule_CaseBadChoices(t *testing.T) {
	ctx := NewExecutionContext(starlark.StringDict{"dir": starlark.String("asc")})

	_, err := ctx.EvalExpr(`guards.case(dir, 3)`, "guards.sql", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choices must be a list or dict")
}

func TestGuardsModule_UndefinedInCompilePass(t *testing.T) {
	ctx := NewExecutionContext(nil, WithCompilePass())

	for _, name := range guard.Names {
		t.Run(name, func(t *testing.T) {
			got, err := ctx.EvalExprString("guards."+name+"(missing)", "lenient.sql", 1)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestGuardsModule_UndefinedAtCallTime(t *testing.T) {
	ctx := NewExecutionContext(nil, WithLenient())

	for _, name := range guard.Names {
		t.Run(name, func(t *testing.T) {
			_, err := ctx.EvalExprString("guards."+name+"(missing)", "q.sql", 1)
			require.Error(t, err)

			var guardErr *guard.Error
			require.True(t, errors.As(err, &guardErr), "expected *guard.Error in chain, got %v", err)
			assert.Equal(t, name, guardErr.Guard)
			assert.Equal(t, "missing", guardErr.Missing)
		})
	}

	// the pooled thread must not keep the compile pass flag
	pool := NewThreadPool(1)
	compile := NewExecutionContext(nil, WithCompilePass(), WithThreadPool(pool))
	call := NewExecutionContext(nil, WithLenient(), WithThreadPool(pool))

	_, err := compile.EvalExpr("guards.integer(id)", "q.sql", 1)
	require.NoError(t, err)
	_, err = call.EvalExpr("guards.integer(id)", "q.sql", 1)
	require.Error(t, err)
}
