package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "check [template...]",
		Short: "Compile templates and report errors",
		Long: `Compile every template under the sql root, or only the given ones, and
report parse errors, duplicate blocks, unknown cond_for owners and failed
parameterless renders. Exits non-zero when any template fails.`,
		Example: `  # Check the whole sql root
  blocksql check

  # Check two templates with JSON output
  blocksql check users.sql orders.sql --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, jobs)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "Number of templates compiled concurrently")

	return cmd
}

// CheckFailedError is returned when at least one template fails to compile.
type CheckFailedError struct {
	Failed int
	Total  int
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("%d of %d templates failed to compile", e.Failed, e.Total)
}

func runCheck(cmd *cobra.Command, names []string, jobs int) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	if len(names) == 0 {
		names, err = cmdCtx.Snaql.List()
		if err != nil {
			return fmt.Errorf("failed to list templates: %w", err)
		}
	}

	results := checkTemplates(cmd.Context(), cmdCtx, names, jobs)

	out := output.CheckOutput{Results: results}
	for _, res := range results {
		if res.Error != "" {
			out.Failed++
		} else {
			out.Passed++
		}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(out); err != nil {
			return err
		}
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Template Check"))
		for _, res := range results {
			if res.Error != "" {
				r.Printf("- [ ] `%s`: %s\n", res.Name, res.Error)
			} else {
				r.Printf("- [x] `%s` (%s)\n", res.Name, output.Count(res.Blocks, "block"))
			}
		}
		r.Println("")
		r.Println(output.FormatKeyValue("Passed", fmt.Sprint(out.Passed)))
		r.Println(output.FormatKeyValue("Failed", fmt.Sprint(out.Failed)))
	default:
		for _, res := range results {
			if res.Error != "" {
				r.StatusLine(res.Name, "failed", res.Error)
			} else {
				r.StatusLine(res.Name, "success", output.Count(res.Blocks, "block"))
			}
		}
		if out.Failed == 0 {
			r.Success(fmt.Sprintf("%s compiled", output.Count(out.Passed, "template")))
		}
	}

	if out.Failed > 0 {
		return &CheckFailedError{Failed: out.Failed, Total: len(results)}
	}
	return nil
}

// checkTemplates compiles names concurrently. Results keep the order of names.
func checkTemplates(ctx context.Context, cmdCtx *CommandContext, names []string, jobs int) []output.CheckResult {
	results := make([]output.CheckResult, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i, name := range names {
		g.Go(func() error {
			results[i] = output.CheckResult{Name: name}
			if err := ctx.Err(); err != nil {
				results[i].Error = err.Error()
				return nil
			}
			f, err := cmdCtx.Snaql.LoadQueries(name)
			if err != nil {
				cmdCtx.Logger.Debug("template failed to compile", "template", name, "error", err)
				results[i].Error = err.Error()
				return nil
			}
			results[i].Blocks = f.Len()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
