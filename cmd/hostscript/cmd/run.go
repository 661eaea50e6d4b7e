package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/cobra"
)

type runOptions struct {
	extension    string
	name         string
	bundle       string
	helpURL      string
	searchPaths  []string
	engineConfig string
	debug        bool
	configMode   bool
	refresh      bool
}

func newRunCmd(factory AppFactory) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <script> [-- args...]",
		Short: "Run a command script",
		Long: `Run a command script through the engine its file type selects.

Examples:
  hostscript run tools/Renumber.py
  hostscript run --extension tools --search-path lib tools/Renumber.py -- --all
  hostscript run --engine-config '{"persistent": true}' counter.tengo`,
		Args: cobra.MinimumNArgs(1),
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

			desc, err := opts.descriptor(args[0])
			if err != nil {
				return err
			}
			rc := &script.RuntimeConfig{
				SearchPaths:   opts.searchPaths,
				Arguments:     args[1:],
				EngineConfigs: opts.engineConfig,
				RefreshEngine: opts.refresh,
				ConfigMode:    opts.configMode,
				DebugMode:     opts.debug,
			}

			code := executor.ExecuteWith(cmd.Context(), script.Invocation{
				Descriptor: desc,
				Config:     rc,
				Output:     cmd.OutOrStdout(),
			})
			if code.Failed() {
				return fmt.Errorf("%s finished with %s (%d)", desc.Name, code, int(code))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.extension, "extension", "e", "cli", "Name of the extension that owns the command")
	f.StringVarP(&opts.name, "name", "n", "", "Command name (default: script file name)")
	f.StringVar(&opts.bundle, "bundle", "", "Bundle type (pushbutton, urlbutton, contentbutton, ...)")
	f.StringVar(&opts.helpURL, "help-url", "", "Help URL of the command")
	f.StringArrayVarP(&opts.searchPaths, "search-path", "p", nil, "Additional module search path (repeatable)")
	f.StringVar(&opts.engineConfig, "engine-config", "", "Engine configuration as JSON")
	f.BoolVar(&opts.debug, "debug", false, "Run in debug mode")
	f.BoolVar(&opts.configMode, "config", false, "Run the config script of the command")
	f.BoolVar(&opts.refresh, "refresh", false, "Start from a fresh engine")
	return cmd
}

func (o *runOptions) descriptor(path string) (script.ScriptDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return script.ScriptDescriptor{}, err
	}
	name := o.name
	if name == "" {
		base := filepath.Base(abs)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return script.ScriptDescriptor{
		ScriptPath:    abs,
		UniqueID:      strings.ToLower(o.extension + "-" + name),
		Name:          name,
		BundleName:    name,
		BundleType:    script.BundleType(o.bundle),
		ExtensionName: o.extension,
		HelpURL:       o.helpURL,
	}, nil
}
