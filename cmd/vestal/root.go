package main

import (
	"github.com/spf13/cobra"

	"github.com/vestalhq/vestal/internal/application"
)

type globalOptions struct {
	dbPath    string
	configDir string
	logLevel  string
}

func (o *globalOptions) open() (*application.App, error) {
	return application.Open(application.Options{
		DBPath:    o.dbPath,
		ConfigDir: o.configDir,
		LogLevel:  o.logLevel,
	})
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "vestal",
		Short:        "vestal - change history for records",
		Long:         "vestal keeps a numbered history of every change to configured record kinds and reverts records to any point in it.",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Record database path (default: <data dir>/index.db)")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "", "Directory searched first for vestal.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error or disabled")

	cmd.AddCommand(newSetCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newRevertCmd(opts))
	cmd.AddCommand(newLinkCmd(opts))
	cmd.AddCommand(newUnlinkCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))

	return cmd
}
