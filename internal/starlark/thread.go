package starlark

import (
	"log/slog"

	"go.starlark.net/starlark"
)

// DefaultPoolSize is the number of idle threads kept when none is given.
const DefaultPoolSize = 10

// ThreadPool recycles Starlark threads between renders. Idle threads are
// held in a buffered channel; threads beyond its capacity are dropped.
type ThreadPool struct {
	idle   chan *starlark.Thread
	logger *slog.Logger
}

// PoolOption configures a ThreadPool.
type PoolOption func(*ThreadPool)

// WithPrintLogger routes print() calls made by macros to logger at debug level.
func WithPrintLogger(logger *slog.Logger) PoolOption {
	return func(p *ThreadPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewThreadPool creates a pool keeping at most size idle threads.
func NewThreadPool(size int, opts ...PoolOption) *ThreadPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &ThreadPool{
		idle:   make(chan *starlark.Thread, size),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns an idle thread or a new one, named after the template file
// so evaluation errors point at it.
func (p *ThreadPool) Get(file string) *starlark.Thread {
	select {
	case thread := <-p.idle:
		thread.Name = file
		return thread
	default:
	}
	return &starlark.Thread{Name: file, Print: p.print}
}

// Put hands a thread back. The thread must not be used afterwards.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	thread.Name = ""
	select {
	case p.idle <- thread:
	default:
	}
}

// Size returns the number of idle threads.
func (p *ThreadPool) Size() int {
	return len(p.idle)
}

func (p *ThreadPool) print(thread *starlark.Thread, msg string) {
	p.logger.Debug("template print", "file", thread.Name, "output", msg)
}
