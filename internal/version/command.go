package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand registers a `version` subcommand on root.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: "Print the release version of repoupdate together with the commit it was built from\n" +
			"and the build time. All three are injected at link time with -ldflags.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	})
}
