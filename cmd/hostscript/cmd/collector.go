package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nfrund/hostscript/internal/collector"
	"github.com/nfrund/hostscript/internal/logging"
	"github.com/nfrund/hostscript/internal/telemetry"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newCollectorCmd() *cobra.Command {
	var addr, out string
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run a telemetry collector that stores records in a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closer := logging.New(logging.Options{
				Format: cmd.Flag("log-format").Value.String(),
				Level:  cmd.Flag("log-level").Value.String(),
				Stdout: cmd.ErrOrStderr(),
			})
			defer closer.Close()

			sink := telemetry.NewFileSink(afero.NewOsFs(), out)
			srv := collector.New(sink, logger)

			errs := make(chan error, 1)
			go func() {
				errs <- srv.Start(addr)
			}()

			// Wait for interrupt signal to gracefully shut down the server with a timeout.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errs:
				return err
			case <-quit:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8089", "Listen address")
	cmd.Flags().StringVarP(&out, "out", "o", "telemetry.json", "File that collects the records")
	return cmd
}
