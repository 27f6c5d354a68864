// Package registry records the sql blocks declared by one compiled template.
// A Registry is written while the template is parsed and rendered once,
// then frozen into a Snapshot that generators read from.
package registry

import (
	"errors"
	"slices"
	"sync"
)

// Block is the metadata of one named sql block.
type Block struct {
	Name    string
	RawSQL  string   // body source, each line trimmed, joined by single spaces
	SQL     string   // body rendered without parameters, whitespace collapsed
	Note    string   // evaluated note, "" when absent
	IsCond  bool     // declared with cond_for
	CondFor string   // owner block name when IsCond
	Conds   []string // conditional blocks owned by this one, in declaration order

	OpenLine  int
	CloseLine int
	Params    []string // free parameter names referenced by the body, sorted

	declared bool
}

// Declared reports whether the block's own tag has been registered.
// Blocks created only by a forward cond_for reference are not declared.
func (b *Block) Declared() bool { return b.declared }

func (b *Block) clone() Block {
	c := *b
	c.Conds = slices.Clone(b.Conds)
	c.Params = slices.Clone(b.Params)
	return c
}

// Registry holds blocks for a single compilation.
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]*Block
	order  []string // declaration order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{blocks: make(map[string]*Block)}
}

// Register declares a block and stores its raw source.
// Declaring the same name twice returns a *DuplicateBlockError.
func (r *Registry) Register(name, raw string, openLine, closeLine int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[name]
	if ok && b.declared {
		return &DuplicateBlockError{Name: name, FirstLine: b.OpenLine, Line: openLine}
	}
	if !ok {
		b = &Block{Name: name}
		r.blocks[name] = b
	}
	b.RawSQL = raw
	b.OpenLine = openLine
	b.CloseLine = closeLine
	b.declared = true
	r.order = append(r.order, name)
	return nil
}

// Get returns the live block for name.
func (r *Registry) Get(name string) (*Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[name]
	if !ok {
		return nil, &UnknownBlockError{Name: name}
	}
	return b, nil
}

// SetOrMerge applies fn to the block for name, creating an undeclared
// placeholder first if the name is not known yet.
func (r *Registry) SetOrMerge(name string, fn func(b *Block)) *Block {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[name]
	if !ok {
		b = &Block{Name: name}
		r.blocks[name] = b
	}
	if fn != nil {
		fn(b)
	}
	return b
}

// LinkCondition records cond as a conditional block of owner.
// The owner may be declared later in the same template.
func (r *Registry) LinkCondition(owner, cond string) {
	r.SetOrMerge(owner, func(b *Block) {
		if !slices.Contains(b.Conds, cond) {
			b.Conds = append(b.Conds, cond)
		}
	})
}

// Len returns the number of known names, placeholders included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

// Snapshot returns a deep copy of the registry.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &Snapshot{
		blocks: make(map[string]Block, len(r.blocks)),
		order:  slices.Clone(r.order),
	}
	for name, b := range r.blocks {
		s.blocks[name] = b.clone()
	}
	return s
}

// Snapshot is an immutable view of a registry. It is safe for concurrent use.
type Snapshot struct {
	blocks map[string]Block
	order  []string
}

// Get returns a copy of the block for name.
func (s *Snapshot) Get(name string) (Block, error) {
	b, ok := s.blocks[name]
	if !ok {
		return Block{}, &UnknownBlockError{Name: name}
	}
	return b.clone(), nil
}

// Names returns all block names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.blocks))
	for name := range s.blocks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Blocks returns copies of the declared blocks in declaration order.
func (s *Snapshot) Blocks() []Block {
	out := make([]Block, 0, len(s.order))
	for _, name := range s.order {
		b := s.blocks[name]
		out = append(out, b.clone())
	}
	return out
}

// Len returns the number of blocks.
func (s *Snapshot) Len() int {
	return len(s.blocks)
}

// Validate checks that every conditional block names a declared owner
// and that every name referenced by cond_for was declared.
func (s *Snapshot) Validate() error {
	var errs []error
	for _, name := range s.Names() {
		b := s.blocks[name]
		if !b.declared {
			ref := ""
			if len(b.Conds) > 0 {
				ref = b.Conds[0]
			}
			errs = append(errs, &UnknownBlockError{Name: name, ReferencedBy: ref})
			continue
		}
		if _, ok := s.blocks[b.CondFor]; b.IsCond && !ok {
			errs = append(errs, &UnknownBlockError{Name: b.CondFor, ReferencedBy: name})
		}
	}
	return errors.Join(errs...)
}
