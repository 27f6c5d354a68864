// Package blocksql compiles SQL template files into named query generators.
//
// A template file holds named blocks:
//
//	{* sql list_users, note = "all users" *}
//	SELECT * FROM users {* if active_cond: *} WHERE {{ active_cond }} {* endif *}
//	{* endsql *}
//
//	{* sql active_cond, cond_for = list_users *}
//	AND active = {{ guards.integer(active) }}
//	{* endsql *}
//
// LoadQueries returns a Factory with one Generator per block:
//
//	s, _ := blocksql.New("queries", "users")
//	f, _ := s.LoadQueries("users.sql")
//	sql, _ := f.Render("list_users", blocksql.Params{
//		"active_cond": blocksql.Cond(f.MustGet("active_cond")),
//		"active":      blocksql.Value(1),
//	})
package blocksql

import (
	"fmt"
	"log/slog"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/leapstack-labs/blocksql/internal/compiler"
	"github.com/leapstack-labs/blocksql/internal/factory"
	"github.com/leapstack-labs/blocksql/internal/guard"
	"github.com/leapstack-labs/blocksql/internal/loader"
	"github.com/leapstack-labs/blocksql/internal/macro"
	"github.com/leapstack-labs/blocksql/internal/registry"
	starctx "github.com/leapstack-labs/blocksql/internal/starlark"
	"github.com/leapstack-labs/blocksql/internal/template"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of compiled templates kept by default.
const DefaultCacheSize = 128

// Types and errors of the compiled factory, re-exported for callers.
type (
	Factory   = factory.Factory
	Generator = factory.Generator
	Param     = factory.Param
	Params    = factory.Params
	Block     = registry.Block
	Source    = loader.Source
	Header    = loader.Header
	Provider  = loader.Provider
	MapLoader = loader.MapLoader

	ScopeError             = factory.ScopeError
	ConditionMismatchError = factory.ConditionMismatchError
	ParamError             = factory.ParamError
	UnknownBlockError      = registry.UnknownBlockError
	DuplicateBlockError    = registry.DuplicateBlockError
	GuardError             = guard.Error
	NotFoundError          = loader.NotFoundError
	ParseError             = template.ParseError
	UnmatchedBlockError    = template.UnmatchedBlockError
)

// Parameter constructors.
var (
	Value      = factory.Value
	Cond       = factory.Cond
	Conds      = factory.Conds
	ParamsFrom = factory.ParamsFrom
)

// Option configures a Snaql.
type Option func(*Snaql)

// WithResultEscaping turns the final quote doubling of parametrized renders
// on or off. A template header's escape_rendered overrides it per file.
func WithResultEscaping(enabled bool) Option {
	return func(s *Snaql) {
		s.escape = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Snaql) {
		s.logger = logger
	}
}

// WithMacrosDir loads .star macro files from dir.
func WithMacrosDir(dir string) Option {
	return func(s *Snaql) {
		s.macrosDir = dir
	}
}

// WithCacheSize sets how many compiled templates are cached. Zero disables
// caching; every LoadQueries call then recompiles.
func WithCacheSize(n int) Option {
	return func(s *Snaql) {
		s.cacheSize = n
	}
}

// WithProvider replaces the file system loader, e.g. with a loader.MapLoader.
func WithProvider(p loader.Provider) Option {
	return func(s *Snaql) {
		s.provider = p
	}
}

// Snaql loads and caches compiled templates from <root>/<namespace>.
// It is safe for concurrent use.
type Snaql struct {
	dir       string
	provider  loader.Provider
	fs        *loader.FileSystemLoader
	macrosDir string
	macros    *macro.Registry
	escape    bool
	cacheSize int
	cache     *lru.Cache[string, *entry]
	group     singleflight.Group
	pool      *starctx.ThreadPool
	logger    *slog.Logger
}

type entry struct {
	src     *loader.Source
	factory *Factory
}

// New creates a Snaql reading templates from filepath.Join(root, namespace).
func New(root, namespace string, opts ...Option) (*Snaql, error) {
	s := &Snaql{
		dir:       filepath.Join(root, namespace),
		escape:    true,
		cacheSize: DefaultCacheSize,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = starctx.NewThreadPool(0, starctx.WithPrintLogger(s.logger))

	if s.provider == nil {
		s.fs = loader.NewFileSystemLoader([]string{s.dir}, loader.WithLogger(s.logger))
		s.provider = s.fs
	}

	if s.cacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative, got %d", s.cacheSize)
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[string, *entry](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create template cache: %w", err)
		}
		s.cache = cache
	}

	if s.macrosDir != "" {
		macros, err := macro.LoadAndRegister(s.macrosDir, macro.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("load macros: %w", err)
		}
		s.macros = macros
		s.logger.Debug("loaded macros", "dir", s.macrosDir, "macros", macros)
	}

	return s, nil
}

// CompileString compiles template text without touching the file system.
func CompileString(name, text string, opts ...Option) (*Factory, error) {
	opts = append(opts, WithProvider(loader.MapLoader{name: text}))
	s, err := New("", "", opts...)
	if err != nil {
		return nil, err
	}
	return s.LoadQueries(name)
}

// Dir returns the directory templates are read from.
func (s *Snaql) Dir() string {
	return s.dir
}

// LoadQueries returns the factory for the template at path, relative to Dir.
// A cached factory is reused while its file is unchanged.
func (s *Snaql) LoadQueries(path string) (*Factory, error) {
	e, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return e.factory, nil
}

// Source returns the loaded source of the template at path.
func (s *Snaql) Source(path string) (*Source, error) {
	e, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return e.src, nil
}

// List returns the template names under Dir. It is empty for custom providers
// other than the file system loader.
func (s *Snaql) List() ([]string, error) {
	if s.fs == nil {
		return nil, nil
	}
	return s.fs.List()
}

// Invalidate drops the cached factory for path.
func (s *Snaql) Invalidate(path string) {
	if s.cache != nil {
		s.cache.Remove(path)
	}
}

// Purge drops all cached factories.
func (s *Snaql) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// Cached reports whether path has a cached factory, up to date or not.
func (s *Snaql) Cached(path string) bool {
	return s.cache != nil && s.cache.Contains(path)
}

func (s *Snaql) load(path string) (*entry, error) {
	if s.cache == nil {
		v, err, _ := s.group.Do(path, func() (any, error) { return s.compile(path) })
		if err != nil {
			return nil, err
		}
		return v.(*entry), nil
	}

	if e, ok := s.cache.Get(path); ok {
		if e.src.Uptodate() {
			return e, nil
		}
		s.logger.Debug("template changed, recompiling", "template", path)
	}

	v, err, _ := s.group.Do(path, func() (any, error) {
		e, err := s.compile(path)
		if err != nil {
			return nil, err
		}
		s.cache.Add(path, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (s *Snaql) compile(path string) (*entry, error) {
	src, err := s.provider.Get(path)
	if err != nil {
		return nil, err
	}

	file := src.Path
	if file == "" {
		file = src.Name
	}

	snap, err := compiler.Compile(file, src.Text,
		compiler.WithLogger(s.logger),
		compiler.WithMacroRegistry(s.macros),
		compiler.WithThreadPool(s.pool),
	)
	if err != nil {
		return nil, err
	}

	escape := s.escape
	if src.Header != nil && src.Header.Escape != nil {
		escape = *src.Header.Escape
	}

	f, err := factory.New(snap,
		factory.WithFile(file),
		factory.WithResultEscaping(escape),
		factory.WithMacroRegistry(s.macros),
		factory.WithThreadPool(s.pool),
		factory.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("compiled template", "template", path, "blocks", f.Len())
	return &entry{src: src, factory: f}, nil
}
