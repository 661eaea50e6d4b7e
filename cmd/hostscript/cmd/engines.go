package cmd

import (
	"github.com/nfrund/hostscript/cmd/hostscript/internal/format"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func newEnginesCmd(factory AppFactory) *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List the registered script engines",
		Args:  cobra.NoArgs,
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
			registry := executor.Registry()
			title := cases.Title(language.English)

			var rows []format.EngineDisplay
			for _, tag := range registry.Types() {
				rows = append(rows, format.EngineDisplay{
					Tag:       string(tag),
					Name:      title.String(string(tag)),
					Version:   registry.Version(tag),
					Extension: script.ExtensionFor(tag),
				})
			}
			return format.Engines(cmd.OutOrStdout(), outputFormat, rows)
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "format", "f", format.Table, "Output format (table, json)")
	return cmd
}
