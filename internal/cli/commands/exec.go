package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/leapstack-labs/blocksql/internal/executor"
	"github.com/spf13/cobra"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	params  paramFlags
	Binds   []string
	DryRun  bool
	Timeout time.Duration
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec <template> <block>",
		Short: "Render a block and run it against the target database",
		Long: `Render one sql block and execute it against the configured target.

The target comes from the target section of blocksql.yaml, BLOCKSQL_TARGET_TYPE
and BLOCKSQL_TARGET_DSN, or --target-type and --dsn. Supported types are
sqlite, postgres and duckdb.

Placeholders left in the rendered SQL, such as :active, are bound with --bind.
Statements that return rows are printed as a table; others report the number
of affected rows.`,
		Example: `  # Run a query on an in-memory sqlite database
  blocksql exec users.sql list_users

  # Render with a condition and bind its placeholder
  blocksql exec users.sql list_users --cond active_cond=active_cond --bind active=int:1

  # Against postgres, as CSV
  blocksql exec reports.sql revenue --target-type postgres --dsn "$DATABASE_URL" -o csv

  # Print the SQL without running it
  blocksql exec users.sql list_users --dry-run`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeTemplateBlocks,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args[0], args[1], opts)
		},
	}

	opts.params.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Binds, "bind", nil, "Named argument as key=value, accepts the same type prefixes as --param")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Render the SQL and print it without executing")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Statement timeout")

	return cmd
}

func runExec(cmd *cobra.Command, template, block string, opts *ExecOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	f, g, err := cmdCtx.loadFactory(template, block)
	if err != nil {
		return err
	}
	params, _, err := opts.params.build(f)
	if err != nil {
		return err
	}
	stmt, err := g.Render(params)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", block, err)
	}

	args, err := namedArgs(opts.Binds)
	if err != nil {
		return err
	}

	if opts.DryRun {
		r.Println(stmt)
		return nil
	}

	target := *cmdCtx.Cfg.Target
	if src, err := cmdCtx.Snaql.Source(template); err == nil && src.Header != nil && src.Header.Target != "" {
		if !strings.EqualFold(src.Header.Target, target.Type) {
			r.Warning(fmt.Sprintf("%s is written for %s, running on %s", template, src.Header.Target, target.Type))
		}
	}

	ctx := cmd.Context()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	db, err := executor.Open(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to open %s target: %w", target.Type, err)
	}
	runner := executor.NewRunner(db, cmdCtx.Logger)
	defer func() { _ = runner.Close() }()

	if executor.IsQuery(stmt) {
		res, err := runner.Query(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", block, err)
		}
		return r.Table(output.ResultSet{Columns: res.Columns, Rows: res.Rows})
	}

	res, err := runner.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", block, err)
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.ExecOutput{SQL: stmt, RowsAffected: res.RowsAffected})
	}
	if res.RowsAffected >= 0 {
		r.Success(fmt.Sprintf("%s affected", output.Count(int(res.RowsAffected), "row")))
	} else {
		r.Success("statement executed")
	}
	return nil
}

// namedArgs converts --bind values into sql.NamedArg values.
func namedArgs(binds []string) ([]any, error) {
	args := make([]any, 0, len(binds))
	for _, kv := range binds {
		key, raw, err := splitAssignment(kv, "--bind")
		if err != nil {
			return nil, err
		}
		v, err := parseTypedValue(raw)
		if err != nil {
			return nil, fmt.Errorf("--bind %s: %w", key, err)
		}
		args = append(args, sql.Named(key, v))
	}
	return args, nil
}
