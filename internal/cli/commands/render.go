package commands

import (
	"fmt"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	var (
		pf  paramFlags
		raw bool
	)

	cmd := &cobra.Command{
		Use:   "render <template> <block>",
		Short: "Render the SQL of a block",
		Long: `Render one sql block of a template with the given parameters.

Without parameters the SQL captured at compile time is printed. Conditional
blocks are passed by name with --cond and rendered before their owner.

Output adapts to environment:
  - Terminal: Plain SQL
  - Piped/Scripted: Markdown with code block`,
		Example: `  # Render a block without parameters
  blocksql render users.sql list_users

  # Typed parameters and a conditional block
  blocksql render users.sql list_users --cond active_cond=active_cond -p active=int:1

  # Several conditions for one parameter
  blocksql render users.sql search --cond filters=by_name,by_age -p name=ada -p age=int:36

  # Parameters from a file, as JSON
  blocksql render users.sql by_id --params-file params.yaml --output json

  # Show the block source instead
  blocksql render users.sql by_id --raw`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeTemplateBlocks,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], args[1], &pf, raw)
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the block source without rendering")

	return cmd
}

func runRender(cmd *cobra.Command, template, block string, pf *paramFlags, raw bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	f, g, err := cmdCtx.loadFactory(template, block)
	if err != nil {
		return err
	}

	var (
		sql   string
		plain map[string]any
	)
	if raw {
		sql = g.RawSQL()
	} else {
		params, values, err := pf.build(f)
		if err != nil {
			return err
		}
		plain = values
		sql, err = g.Render(params)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", block, err)
		}
	}
	cmdCtx.Logger.Debug("rendered block", "template", template, "block", block, "length", len(sql))

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.RenderOutput{
			Template: template,
			Block:    block,
			SQL:      sql,
			Params:   plain,
		})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Rendered SQL: %s %s", template, block)))
		if g.Note != "" {
			r.Println(g.Note)
			r.Println("")
		}
		r.Println(output.FormatCode("sql", sql))
	default:
		r.Println(sql)
	}
	return nil
}
