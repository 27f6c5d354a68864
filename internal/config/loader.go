// Package config holds project-level configuration shared by the CLI and
// the library: default paths, config file discovery and target validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leapstack-labs/blocksql/internal/executor"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "blocksql.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "blocksql.yml"

// FindConfigFile returns the config file in dir, or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory containing
// blocksql.yaml or blocksql.yml. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ValidateTarget checks that the target type has a registered driver.
func ValidateTarget(t *Target) error {
	if t == nil {
		return nil
	}
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	available := executor.Types()
	if !slices.Contains(available, strings.ToLower(t.Type)) {
		return fmt.Errorf("unknown target type %q (available: %s)\nHint: set target.type in %s",
			t.Type, strings.Join(available, ", "), ConfigFileName)
	}
	return nil
}
