package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/leapstack-labs/blocksql/pkg/blocksql"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompile templates as they change",
		Long: `Compile every template under the sql root, then watch the directory and
recompile each template when it is written. Errors are reported as they
happen; the command keeps running until interrupted.`,
		Example: `  # Watch the configured sql root
  blocksql watch

  # Watch another directory with debug logging
  blocksql watch --sql-root ./sql -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd)
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	names, err := cmdCtx.Snaql.List()
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	for _, res := range checkTemplates(ctx, cmdCtx, names, len(names)) {
		reportCheck(r, res)
	}

	var mu sync.Mutex
	if err := cmdCtx.Snaql.Watch(ctx, func(name string) {
		res := recompile(cmdCtx.Snaql, name)
		mu.Lock()
		defer mu.Unlock()
		reportCheck(r, res)
	}); err != nil {
		return err
	}

	r.Muted(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", cmdCtx.Snaql.Dir()))
	<-ctx.Done()
	return nil
}

// recompile loads name again. A removed template is reported as skipped.
func recompile(s *blocksql.Snaql, name string) output.CheckResult {
	res := output.CheckResult{Name: name}
	f, err := s.LoadQueries(name)
	var notFound *blocksql.NotFoundError
	switch {
	case errors.As(err, &notFound):
		res.Blocks = -1
	case err != nil:
		res.Error = err.Error()
	default:
		res.Blocks = f.Len()
	}
	return res
}

func reportCheck(r *output.Renderer, res output.CheckResult) {
	switch {
	case res.Error != "":
		r.StatusLine(res.Name, "failed", res.Error)
	case res.Blocks < 0:
		r.StatusLine(res.Name, "skipped", "removed")
	default:
		r.StatusLine(res.Name, "success", output.Count(res.Blocks, "block"))
	}
}
