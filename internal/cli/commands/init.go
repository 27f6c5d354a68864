package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/leapstack-labs/blocksql/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new blocksql project",
		Long: `Initialize a new blocksql project with the default layout.

This creates:
  - queries/ directory for SQL templates
  - macros/ directory for Starlark macros
  - blocksql.yaml configuration file

Use --example to add sample templates that show sql blocks, conditional
blocks, guards and a macro namespace.`,
		Example: `  # Initialize in current directory
  blocksql init

  # Initialize a new directory with example templates
  blocksql init my-project --example

  # Overwrite an existing config
  blocksql init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			name := "minimal"
			if example {
				name = "example"
			}
			return runInit(NewCommandContextWithoutLoader(cmd).Renderer, dir, name, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&example, "example", false, "Add example templates and macros")

	return cmd
}

func runInit(r *output.Renderer, dir, templateName string, force bool) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	if err := copyTemplate(templateName, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, err := listTemplateFiles(templateName)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.InitOutput{Dir: dir, Template: templateName, Files: files})
	}

	groups := groupTemplateFiles(files)
	for _, section := range []struct{ key, title string }{
		{"config", "Configuration"},
		{"queries", "Queries"},
		{"macros", "Macros"},
	} {
		r.Header(2, section.title)
		for _, f := range groups[section.key] {
			r.StatusLine(f, "success", "")
		}
		r.Println("")
	}

	r.Success("blocksql project initialized in " + dir)
	r.Println("")
	r.Println("Next steps:")
	if templateName == "example" {
		r.Println("  blocksql check                                  Compile every template")
		r.Println("  blocksql exec users.sql create_users            Create the users table")
		r.Println("  blocksql render users.sql by_id -p id=int:1     Render a block")
	} else {
		r.Println("  1. Add SQL templates to queries/")
		r.Println("  2. Run 'blocksql check' to compile them")
		r.Println("  3. Run 'blocksql list' to see all blocks")
	}

	return nil
}
