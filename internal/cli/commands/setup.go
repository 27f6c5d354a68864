package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/blocksql/internal/cli/config"
	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/leapstack-labs/blocksql/pkg/blocksql"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Snaql    *blocksql.Snaql
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with a template loader and renderer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cmdCtx := NewCommandContextWithoutLoader(cmd)
	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return nil, err
	}

	s, err := newSnaql(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, err
	}
	cmdCtx.Snaql = s
	return cmdCtx, nil
}

// NewCommandContextWithoutLoader creates a CommandContext without a template loader.
func NewCommandContextWithoutLoader(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

func newSnaql(cfg *config.Config, logger *slog.Logger) (*blocksql.Snaql, error) {
	opts := []blocksql.Option{
		blocksql.WithLogger(logger),
		blocksql.WithResultEscaping(cfg.EscapeRendered),
		blocksql.WithCacheSize(cfg.CacheSize),
	}
	if dir := cfg.MacrosDirIfExists(); dir != "" {
		opts = append(opts, blocksql.WithMacrosDir(dir))
	}

	s, err := blocksql.New(cfg.SQLRoot, cfg.Namespace, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create template loader: %w", err)
	}
	return s, nil
}

// loadFactory compiles a template and looks up one of its blocks.
func (c *CommandContext) loadFactory(template, block string) (*blocksql.Factory, *blocksql.Generator, error) {
	f, err := c.Snaql.LoadQueries(template)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", template, err)
	}
	g, err := f.Get(block)
	if err != nil {
		return nil, nil, err
	}
	return f, g, nil
}
