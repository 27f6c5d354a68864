// Package loader reads template sources from the file system.
//
// Templates are addressed by slash separated names relative to a list of
// search paths; the first path containing the file wins.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Ext is the extension of template files returned by List.
const Ext = ".sql"

// Source is one loaded template.
type Source struct {
	Name    string    // requested name, slash separated
	Path    string    // file the text was read from, "" for in-memory sources
	Text    string    // template text, header blanked out
	ModTime time.Time // modification time when read
	Header  *Header   // nil when the file has no header
}

// Uptodate reports whether the file still has the modification time it had
// when it was read. A missing file is never up to date; in-memory sources always are.
func (s *Source) Uptodate() bool {
	if s.Path == "" {
		return true
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return false
	}
	return info.ModTime().Equal(s.ModTime)
}

// Line returns the 1-based line n of the template text.
func (s *Source) Line(n int) (string, bool) {
	lines := strings.Split(s.Text, "\n")
	if n < 1 || n > len(lines) {
		return "", false
	}
	return lines[n-1], true
}

// Provider returns template sources by name.
type Provider interface {
	Get(name string) (*Source, error)
}

// NotFoundError is returned when no search path holds the requested template.
type NotFoundError struct {
	Name  string
	Paths []string
}

func (e *NotFoundError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("template %q not found", e.Name)
	}
	return fmt.Sprintf("template %q not found in %s", e.Name, strings.Join(e.Paths, ", "))
}

// Option configures a FileSystemLoader.
type Option func(*FileSystemLoader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileSystemLoader) {
		l.logger = logger
	}
}

// FileSystemLoader loads templates from one or more directories.
type FileSystemLoader struct {
	paths  []string
	logger *slog.Logger
}

// NewFileSystemLoader creates a loader over the given search paths.
func NewFileSystemLoader(paths []string, opts ...Option) *FileSystemLoader {
	l := &FileSystemLoader{
		paths:  slices.Clone(paths),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SearchPaths returns the directories searched, in order.
func (l *FileSystemLoader) SearchPaths() []string {
	return slices.Clone(l.paths)
}

// Get reads the template name from the first search path that has it.
func (l *FileSystemLoader) Get(name string) (*Source, error) {
	pieces, err := SplitName(name)
	if err != nil {
		return nil, err
	}

	for _, dir := range l.paths {
		filename := filepath.Join(append([]string{dir}, pieces...)...)
		info, err := os.Stat(filename)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat template %q: %w", name, err)
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %q: %w", name, err)
		}

		header, text, err := ExtractHeader(filename, string(data))
		if err != nil {
			return nil, err
		}

		l.logger.Debug("loaded template", "name", name, "path", filename, "bytes", len(data))
		return &Source{
			Name:    name,
			Path:    filename,
			Text:    text,
			ModTime: info.ModTime(),
			Header:  header,
		}, nil
	}

	return nil, &NotFoundError{Name: name, Paths: l.SearchPaths()}
}

// List returns the names of all template files under the search paths, sorted.
// Hidden files and directories are skipped. A name found in several paths is listed once.
func (l *FileSystemLoader) List() ([]string, error) {
	seen := make(map[string]bool)
	for _, dir := range l.paths {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == dir && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || filepath.Ext(p) != Ext {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			seen[filepath.ToSlash(rel)] = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list templates in %s: %w", dir, err)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// SplitName splits a template name into path pieces. Names that would escape
// the search path are reported as not found.
func SplitName(name string) ([]string, error) {
	var pieces []string
	for _, piece := range strings.Split(name, "/") {
		if strings.ContainsRune(piece, filepath.Separator) || piece == ".." {
			return nil, &NotFoundError{Name: name}
		}
		if piece != "" && piece != "." {
			pieces = append(pieces, piece)
		}
	}
	if len(pieces) == 0 {
		return nil, &NotFoundError{Name: name}
	}
	return pieces, nil
}

// MapLoader serves templates from memory, keyed by name.
type MapLoader map[string]string

// Get returns the template name.
func (m MapLoader) Get(name string) (*Source, error) {
	text, ok := m[path.Clean(name)]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	header, text, err := ExtractHeader(name, text)
	if err != nil {
		return nil, err
	}
	return &Source{Name: name, Text: text, Header: header}, nil
}
