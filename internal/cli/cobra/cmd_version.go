package cobra

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/conductor/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the conductor version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "conductor "+version.FullVersion())
			return nil
		},
	}
}
