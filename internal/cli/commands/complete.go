package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

// completeTemplateBlocks completes "<template> <block>" arguments from the
// configured sql root.
func completeTemplateBlocks(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var candidates []string
	switch len(args) {
	case 0:
		candidates, err = cmdCtx.Snaql.List()
	case 1:
		f, ferr := cmdCtx.Snaql.LoadQueries(args[0])
		if ferr == nil {
			for _, b := range f.Blocks() {
				if !b.IsCond {
					candidates = append(candidates, b.Name)
				}
			}
		}
		err = ferr
	}
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	matches := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.HasPrefix(c, toComplete) {
			matches = append(matches, c)
		}
	}
	return matches, cobra.ShellCompDirectiveNoFileComp
}
