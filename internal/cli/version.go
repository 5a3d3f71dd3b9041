package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisperd/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "whisperd v%s (commit %s, built %s)\n", version.Resolve(), version.Commit, version.Date)
		},
	}
}
