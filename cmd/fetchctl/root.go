package main

import (
	"github.com/spf13/cobra"

	"github.com/edvin/fetchctl/internal/cmdexec"
	"github.com/edvin/fetchctl/internal/config"
	"github.com/edvin/fetchctl/internal/logging"
)

func newRootCmd() *cobra.Command {
	var debug bool
	a := &app{}

	root := &cobra.Command{
		Use:           "fetchctl",
		Short:         "Manage the fetch-service proxy and build sessions",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if debug {
				cfg.LogLevel = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.init(cfg, logging.NewLogger(cfg), cmdexec.Exec{})
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(statusCmd(a))
	root.AddCommand(certCmd(a))
	root.AddCommand(serveCmd(a))
	root.AddCommand(sessionCmd(a))
	root.AddCommand(configureCmd(a))
	root.AddCommand(runCmd(a))
	return root
}
