package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkhoanguyen/playground/cmd/compose"
	"github.com/dkhoanguyen/playground/internal/env"
	"github.com/dkhoanguyen/playground/internal/logging"
	"github.com/dkhoanguyen/playground/pkg/docker"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *compose.Runtime) {
	rt := &compose.Runtime{
		NewEngine: func() (docker.Engine, error) {
			return docker.NewClient()
		},
	}
	var logLevel string

	root := &cobra.Command{
		Use:          "playground",
		Short:        "Postgres playground: compose stack tooling and a small query API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := env.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if logLevel != "" {
				config.LogLevel = logLevel
			}
			logger, closeLog, err := logging.Make(config)
			if err != nil {
				return err
			}
			rt.Config = config
			rt.Logger = logger
			rt.CloseLog = closeLog
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error, critical)")

	root.AddCommand(newServeCmd(rt), compose.NewCommand(rt))
	return root, rt
}

// Execute runs the CLI until it finishes or the process receives SIGINT or
// SIGTERM. The log files are closed whether or not the command failed.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, rt := newRoot()
	defer rt.Shutdown()
	return root.ExecuteContext(ctx)
}
