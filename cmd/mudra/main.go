// Command mudra controls the desktop pointer and keyboard with two-hand
// gestures seen by a webcam.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/config"
)

// Version is the application version.
const Version = "0.1.0"

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "mudra",
		Short:         "Two-hand gesture control for the desktop",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.mudra/config.yaml)")

	cmd.AddCommand(
		newRunCmd(opts),
		newConfigCmd(opts),
		newEventsCmd(opts),
		newSessionsCmd(opts),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
