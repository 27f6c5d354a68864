package factory

import "fmt"

// ScopeError reports a direct call on a conditional block.
type ScopeError struct {
	Name  string
	Owner string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("block %q is a condition for %q and cannot be rendered outside that scope", e.Name, e.Owner)
}

// ConditionMismatchError reports a conditional block passed to a block that does not own it.
type ConditionMismatchError struct {
	Cond     string // conditional block passed as a parameter
	Owner    string // its declared owner ("" when the block is not conditional)
	Expected string // the block being rendered
}

func (e *ConditionMismatchError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("%q is not a conditional block and cannot be passed to %q", e.Cond, e.Expected)
	}
	return fmt.Sprintf("%q is not a proper condition for %q (it belongs to %q)", e.Cond, e.Expected, e.Owner)
}

// ParamError reports a parameter value that cannot be used in a template.
type ParamError struct {
	Block string
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("block %q: parameter %q: %v", e.Block, e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }
