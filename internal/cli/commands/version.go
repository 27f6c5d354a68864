package commands

import (
	"runtime"
	"strings"

	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/leapstack-labs/blocksql/internal/executor"
	"github.com/leapstack-labs/blocksql/internal/guard"
	"github.com/spf13/cobra"
)

// BuildInfo is the version metadata stamped into the binary.
type BuildInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Targets   []string `json:"targets"`
	Guards    []string `json:"guards"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the blocksql version, build metadata, supported targets and guards.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := BuildInfo{
				Version:   version,
				Commit:    commit,
				BuildDate: buildDate,
				GoVersion: runtime.Version(),
				Targets:   executor.Types(),
				Guards:    guard.Names,
			}

			r := NewCommandContextWithoutLoader(cmd).Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(info)
			}

			r.Printf("blocksql v%s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.BuildDate, info.GoVersion)
			r.Println("SQL block templates with Starlark expressions")
			r.Println("targets: " + strings.Join(info.Targets, ", "))
			r.Println("guards:  " + strings.Join(info.Guards, ", "))
			return nil
		},
	}
}
