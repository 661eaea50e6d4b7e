package cmd

import (
	"fmt"

	"github.com/nfrund/hostscript/internal/telemetry"
	"github.com/spf13/cobra"
)

var version = "0.1.0" // This should be set at build time using -ldflags

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hostscript",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hostscript v%s (telemetry schema %s)\n", version, telemetry.SchemaVersion)
		},
	}
}
