package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [template...]",
		Short: "List templates and their sql blocks",
		Long: `List the templates under the sql root with their blocks, notes,
conditional blocks and referenced parameters.

Output adapts to environment:
  - Terminal: Styled tables
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List every template
  blocksql list

  # List one template as JSON
  blocksql list users.sql --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, args)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command, names []string) error {
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

	templates, err := collectTemplates(cmdCtx, names)
	if err != nil {
		return err
	}

	summary := output.ListSummary{Templates: len(templates)}
	for _, t := range templates {
		for _, b := range t.Blocks {
			summary.Blocks++
			if b.CondFor != "" {
				summary.Conditions++
			}
		}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.ListOutput{Templates: templates, Summary: summary})
	case output.ModeMarkdown:
		return listMarkdown(r, templates, summary)
	default:
		return listText(r, templates, summary)
	}
}

func collectTemplates(cmdCtx *CommandContext, names []string) ([]output.TemplateInfo, error) {
	templates := make([]output.TemplateInfo, 0, len(names))
	for _, name := range names {
		f, err := cmdCtx.Snaql.LoadQueries(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		src, err := cmdCtx.Snaql.Source(name)
		if err != nil {
			return nil, err
		}

		info := output.TemplateInfo{Name: name, Blocks: []output.BlockInfo{}}
		if h := src.Header; h != nil {
			info.Description = h.Description
			info.Owner = h.Owner
			info.Tags = h.Tags
		}
		for _, b := range f.Blocks() {
			info.Blocks = append(info.Blocks, output.BlockInfo{
				File:    name,
				Name:    b.Name,
				Line:    b.OpenLine,
				CondFor: b.CondFor,
				Note:    b.Note,
				Params:  b.Params,
			})
		}
		templates = append(templates, info)
	}
	return templates, nil
}

func blockRows(t output.TemplateInfo) output.ResultSet {
	rs := output.ResultSet{Columns: []string{"block", "line", "cond_for", "params", "note"}}
	for _, b := range t.Blocks {
		rs.Rows = append(rs.Rows, map[string]any{
			"block":    b.Name,
			"line":     strconv.Itoa(b.Line),
			"cond_for": b.CondFor,
			"params":   strings.Join(b.Params, ", "),
			"note":     b.Note,
		})
	}
	return rs
}

func listText(r *output.Renderer, templates []output.TemplateInfo, summary output.ListSummary) error {
	if len(templates) == 0 {
		r.Warning("No templates found")
		return nil
	}

	styles := r.Styles()
	r.Header(1, fmt.Sprintf("Templates (%d total)", summary.Templates))
	for _, t := range templates {
		line := styles.Name.Render(t.Name)
		if t.Description != "" {
			line += " " + styles.Muted.Render(t.Description)
		}
		r.Println(line)
		if err := r.Table(blockRows(t)); err != nil {
			return err
		}
		r.Println("")
	}
	r.Muted(fmt.Sprintf("Total: %s, %s", output.Count(summary.Blocks, "block"), output.Count(summary.Conditions, "condition")))
	return nil
}

func listMarkdown(r *output.Renderer, templates []output.TemplateInfo, summary output.ListSummary) error {
	r.Println(output.FormatHeader(1, "Templates"))
	for _, t := range templates {
		r.Println(output.FormatHeader(2, t.Name))
		if t.Description != "" {
			r.Println(output.FormatKeyValue("Description", t.Description))
		}
		if t.Owner != "" {
			r.Println(output.FormatKeyValue("Owner", t.Owner))
		}
		if len(t.Tags) > 0 {
			r.Println(output.FormatKeyValue("Tags", strings.Join(t.Tags, ", ")))
		}
		r.Println("")
		if err := r.Table(blockRows(t)); err != nil {
			return err
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Templates", strconv.Itoa(summary.Templates)))
	r.Println(output.FormatKeyValue("Blocks", strconv.Itoa(summary.Blocks)))
	r.Println(output.FormatKeyValue("Conditions", strconv.Itoa(summary.Conditions)))
	return nil
}
