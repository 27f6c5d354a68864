// Package macro loads Starlark helper files that templates can call.
// Each .star file in the macros directory becomes a namespace named after the file,
// so macros/fmt.star is reachable from a template as {{ fmt.upper(x) }}.
package macro

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Ext is the file extension of macro files.
const Ext = ".star"

// Loader scans a directory for macro files.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger for load diagnostics.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadedModule is one executed macro file.
type LoadedModule struct {
	// Namespace is the file name without extension.
	Namespace string

	// Path is the file the module was loaded from.
	Path string

	// Exports holds the top-level names that do not start with "_".
	Exports starlark.StringDict
}

// Load executes every macro file in the directory, in file name order.
// A missing directory yields no modules and no error.
func (l *Loader) Load() ([]*LoadedModule, error) {
	info, err := os.Stat(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug("macros directory not found, skipping", "dir", l.dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("macros path is not a directory: %s", l.dir)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}

	modules := make([]*LoadedModule, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		module, err := l.loadFile(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded macro namespace", "namespace", module.Namespace, "exports", len(module.Exports))
		modules = append(modules, module)
	}

	slices.SortFunc(modules, func(a, b *LoadedModule) int {
		return strings.Compare(a.Namespace, b.Namespace)
	})
	return modules, nil
}

// libraries are the Starlark standard modules visible inside macro files.
func libraries() starlark.StringDict {
	return starlark.StringDict{
		"time": startime.Module,
		"json": starjson.Module,
		"math": starmath.Module,
	}
}

func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the macros directory listing
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), Ext)
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name: "load:" + namespace,
		Print: func(_ *starlark.Thread, msg string) {
			l.logger.Debug("macro print", "namespace", namespace, "msg", msg)
		},
	}

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, path, content, libraries())
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	exports := make(starlark.StringDict, len(globals))
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}

	return &LoadedModule{Namespace: namespace, Path: path, Exports: exports}, nil
}

// validateNamespace checks that name is usable as a Starlark identifier.
func validateNamespace(name string) error {
	if name == "" {
		return errors.New("namespace cannot be empty")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case i == 0 && r >= '0' && r <= '9':
			return fmt.Errorf("namespace must start with letter or underscore: %s", name)
		default:
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}
	return nil
}

// LoadError reports a macro file that could not be read or executed.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}
