// Package cmd implements the hostscript command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nfrund/hostscript/internal/app"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// AppFactory builds the runtime for one command.
type AppFactory func(cmd *cobra.Command) (*app.App, error)

// NewRootCmd returns the root command. A nil factory builds the runtime from
// the environment and the real filesystem.
func NewRootCmd(factory AppFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "hostscript",
		Short: "Run host automation scripts",
		Long: `hostscript runs command scripts the way the host does: it picks the engine
for the script, reuses cached engines between runs and reports telemetry.

Use "hostscript [command] --help" for more information about a command.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "Log format (text, json)")

	if factory == nil {
		factory = defaultFactory
	}
	root.AddCommand(
		newRunCmd(factory),
		newResolveCmd(factory),
		newEnginesCmd(factory),
		newHooksCmd(factory),
		newCollectorCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute executes the root command
func Execute() {
	if err := NewRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultFactory(cmd *cobra.Command) (*app.App, error) {
	loader := config.New()
	v := loader.Viper()
	if err := v.BindPFlag("log_level", cmd.Flags().Lookup("log-level")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_format", cmd.Flags().Lookup("log-format")); err != nil {
		return nil, err
	}

	// Logs go to stderr so script output on stdout stays clean.
	opts := logging.FromEnvironment(loader.Snapshot())
	opts.Stdout = cmd.ErrOrStderr()
	logger, closer := logging.New(opts)
	cobra.OnFinalize(func() { _ = closer.Close() })

	return app.New(app.Options{
		Config: loader,
		Fs:     afero.NewOsFs(),
		Host:   cliHost(cmd.OutOrStdout()),
		Logger: logger,
	}), nil
}

// browser prints links instead of opening them.
type browser struct {
	out io.Writer
}

func (b browser) OpenURL(_ context.Context, url string) error {
	_, err := fmt.Fprintf(b.out, "open: %s\n", url)
	return err
}
