package config

import (
	"strings"

	"github.com/leapstack-labs/blocksql/internal/executor"
)

// Default configuration values.
const (
	DefaultSQLRoot    = "queries"
	DefaultMacrosDir  = "macros"
	DefaultCacheSize  = 128
	DefaultTargetType = "sqlite"
)

// Target is the database target used by the exec command.
type Target = executor.Target

// ApplyTargetDefaults fills in the target type and lowercases it.
func ApplyTargetDefaults(t *Target) {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	t.Type = strings.ToLower(t.Type)
}
