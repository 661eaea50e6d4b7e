package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/nfrund/hostscript/cmd/hostscript/internal/format"
	"github.com/nfrund/hostscript/internal/hooks"
	"github.com/spf13/cobra"
)

func newHooksCmd(factory AppFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage scripts bound to host events",
	}
	cmd.AddCommand(
		newHooksListCmd(factory),
		newHooksAddCmd(factory),
		newHooksRemoveCmd(factory),
		newHooksClearCmd(factory),
		newHooksRaiseCmd(factory),
	)
	return cmd
}

func withHooks(factory AppFactory, cmd *cobra.Command, fn func(*hooks.Registry) error) error {
	a, err := factory(cmd)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	registry, err := a.Hooks()
	if err != nil {
		return err
	}
	return fn(registry)
}

func newHooksListCmd(factory AppFactory) *cobra.Command {
	var outputFormat, event string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHooks(factory, cmd, func(r *hooks.Registry) error {
				list := r.Hooks()
				if event != "" {
					list = r.ForEvent(event)
				}
				return format.Hooks(cmd.OutOrStdout(), outputFormat, list)
			})
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "format", "f", format.Table, "Output format (table, json)")
	cmd.Flags().StringVar(&event, "event", "", "Only show hooks for this event")
	return cmd
}

func newHooksAddCmd(factory AppFactory) *cobra.Command {
	var extension string
	var searchPaths []string
	cmd := &cobra.Command{
		Use:   "add <id> <event> <script>",
		Short: "Register a script for a host event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[2])
			if err != nil {
				return err
			}
			return withHooks(factory, cmd, func(r *hooks.Registry) error {
				if err := r.RegisterHook(cmd.Context(), args[0], args[1], path, searchPaths, extension); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s for %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&extension, "extension", "e", "cli", "Name of the extension that owns the hook")
	cmd.Flags().StringArrayVarP(&searchPaths, "search-path", "p", nil, "Additional module search path (repeatable)")
	return cmd
}

func newHooksRemoveCmd(factory AppFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unregister a hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHooks(factory, cmd, func(r *hooks.Registry) error {
				return r.UnRegisterHook(cmd.Context(), args[0])
			})
		},
	}
}

func newHooksClearCmd(factory AppFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Unregister every hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHooks(factory, cmd, func(r *hooks.Registry) error {
				return r.UnRegisterAllHooks(cmd.Context())
			})
		},
	}
}

func newHooksRaiseCmd(factory AppFactory) *cobra.Command {
	var sender, eventArgs string
	cmd := &cobra.Command{
		Use:   "raise <event>",
		Short: "Run the hooks of an event as if the host raised it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := factory(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			dispatcher, err := a.Dispatcher()
			if err != nil {
				return err
			}
			outcomes := dispatcher.Raise(cmd.Context(), hooks.Event{
				Name:   args[0],
				Sender: sender,
				Args:   eventArgs,
				Output: cmd.OutOrStdout(),
			})

			failed := 0
			for _, o := range outcomes {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", o.HookID, o.Code)
				if o.Code.Failed() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d hooks failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "cli", "Event sender passed to the hooks")
	cmd.Flags().StringVar(&eventArgs, "args", "", "Event arguments passed to the hooks")
	return cmd
}
