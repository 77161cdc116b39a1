package utils

import "github.com/spf13/cobra"

// DefaultPersistentPreRun chains a subcommand's PersistentPreRun into its
// parent's, so the root command's config options are always resolved first.
var DefaultPersistentPreRun = func(cmd *cobra.Command, args []string) {
	if cmd.Parent().PersistentPreRun != nil {
		cmd.Parent().PersistentPreRun(cmd.Parent(), args)
	}
}
