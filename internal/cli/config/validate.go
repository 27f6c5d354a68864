package config

import (
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SQLRoot == "" {
		return fmt.Errorf("sql_root is required")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

// ValidateDirectories checks that the template root exists.
// The macros directory is optional.
func (c *Config) ValidateDirectories() error {
	info, err := os.Stat(c.SQLRoot)
	if os.IsNotExist(err) {
		return fmt.Errorf("sql root does not exist: %s\nHint: Create the directory or use --sql-root to specify a different path", c.SQLRoot)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("sql root is not a directory: %s", c.SQLRoot)
	}
	return nil
}

// MacrosDirIfExists returns the macros directory, or "" when it is absent.
func (c *Config) MacrosDirIfExists() string {
	if c.MacrosDir == "" {
		return ""
	}
	if info, err := os.Stat(c.MacrosDir); err != nil || !info.IsDir() {
		return ""
	}
	return c.MacrosDir
}
