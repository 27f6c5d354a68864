package starlark

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leapstack-labs/blocksql/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_Reuse(t *testing.T) {
	pool := NewThreadPool(2)

	first := pool.Get("users.sql")
	assert.Equal(t, "users.sql", first.Name)
	assert.Equal(t, 0, pool.Size())

	pool.Put(first)
	assert.Equal(t, 1, pool.Size())
	assert.Empty(t, first.Name, "name is cleared on put")

	second := pool.Get("orders.sql")
	assert.Same(t, first, second)
	assert.Equal(t, "orders.sql", second.Name)
}

func TestThreadPool_Capacity(t *testing.T) {
	tests := []struct {
		name string
		size int
		puts int
		want int
	}{
		{"below capacity", 3, 2, 2},
		{"overflow dropped", 2, 5, 2},
		{"default size", 0, DefaultPoolSize + 3, DefaultPoolSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewThreadPool(tt.size)
			threads := make([]*starlark.Thread, tt.puts)
			for i := range threads {
				threads[i] = pool.Get("t.sql")
			}
			for _, th := range threads {
				pool.Put(th)
			}
			assert.Equal(t, tt.want, pool.Size())
		})
	}
}

func TestThreadPool_PrintGoesToLogger(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	pool := NewThreadPool(1, WithPrintLogger(logger))

	ctx := NewExecutionContext(nil, WithThreadPool(pool))
	_, err := ctx.EvalExpr(`print("hello from macro")`, "debug.sql", 3)
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `msg="template print"`)
	assert.Contains(t, logs.String(), "file=debug.sql")
	assert.Contains(t, logs.String(), `"hello from macro"`)
}

func TestThreadPool_SharedAcrossContexts(t *testing.T) {
	pool := NewThreadPool(4)
	var wg sync.WaitGroup
	results := make([]string, 20)

	for i := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx := NewExecutionContext(starlark.StringDict{"n": starlark.MakeInt(n)}, WithThreadPool(pool))
			out, err := ctx.EvalExprString("str(n * 2)", "shared.sql", 1)
			if err == nil {
				results[n] = out
			}
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		require.Equal(t, fmt.Sprint(i*2), got, "render %d", i)
	}
	assert.LessOrEqual(t, pool.Size(), 4)
}
