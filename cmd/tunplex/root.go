package main

import (
	"fmt"

	"github.com/danmuck/tunplex/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/tunplex/tunplex.toml"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "tunplex",
		Short: "Bridge a TUN interface to serial, MIDI and TCP peers",
		Long: `tunplex frames IP packets read from a TUN interface and fans them out to every
configured peer, and writes packets received from any peer back into the interface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if opts.logLevel == "" {
				return nil
			}
			level, ok := logging.ParseLevel(opts.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the tunplex TOML config")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override TUNPLEX_LOG_LEVEL")

	root.AddCommand(newUpCmd(opts), newCheckCmd(opts))
	return root
}
