package registry

import "fmt"

// UnknownBlockError reports a block name that is not in the registry.
type UnknownBlockError struct {
	Name         string
	ReferencedBy string // conditional block whose cond_for names Name, if any
}

func (e *UnknownBlockError) Error() string {
	if e.ReferencedBy != "" {
		return fmt.Sprintf("unknown block %q (cond_for of %q)", e.Name, e.ReferencedBy)
	}
	return fmt.Sprintf("unknown block %q", e.Name)
}

// DuplicateBlockError reports a second declaration of a block name.
type DuplicateBlockError struct {
	Name      string
	FirstLine int
	Line      int
}

func (e *DuplicateBlockError) Error() string {
	return fmt.Sprintf("sql block %q declared twice (lines %d and %d)", e.Name, e.FirstLine, e.Line)
}
