package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/cobra"
)

func newResolveCmd(factory AppFactory) *cobra.Command {
	var bundle string
	cmd := &cobra.Command{
		Use:   "resolve <script>",
		Short: "Show which engine would run a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := factory(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			executor, err := a.Executor()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			tag := script.ResolveEngineType(a.Fs(), path, script.BundleType(bundle))
			if tag == script.EngineUnknown {
				return fmt.Errorf("no engine handles %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tag, executor.Registry().Version(tag))
			return nil
		},
	}
	cmd.Flags().StringVar(&bundle, "bundle", "", "Bundle type used when the file type is not enough")
	return cmd
}
