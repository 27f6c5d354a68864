// Package config provides configuration management for the blocksql CLI.
//
// Values come from defaults, blocksql.yaml, BLOCKSQL_ environment variables
// and command-line flags, in increasing order of precedence.
package config

import (
	sharedcfg "github.com/leapstack-labs/blocksql/internal/config"
)

// Target is an alias for the shared target configuration.
type Target = sharedcfg.Target

// Config holds all CLI configuration options.
type Config struct {
	SQLRoot        string               `koanf:"sql_root"`
	Namespace      string               `koanf:"namespace"`
	MacrosDir      string               `koanf:"macros_dir"`
	EscapeRendered bool                 `koanf:"escape_rendered"`
	CacheSize      int                  `koanf:"cache_size"`
	Environment    string               `koanf:"environment"`
	Verbose        bool                 `koanf:"verbose"`
	OutputFormat   string               `koanf:"output"`
	Target         *Target              `koanf:"target"`
	Environments   map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	SQLRoot   string  `koanf:"sql_root"`
	MacrosDir string  `koanf:"macros_dir"`
	Target    *Target `koanf:"target"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultSQLRoot   = sharedcfg.DefaultSQLRoot
	DefaultMacrosDir = sharedcfg.DefaultMacrosDir
	DefaultCacheSize = sharedcfg.DefaultCacheSize
	DefaultEnv       = "dev"
	DefaultOutput    = "auto" // TTY=text, non-TTY=markdown
)
