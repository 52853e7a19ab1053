package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/tunplex/internal/config"
	"github.com/danmuck/tunplex/internal/peer"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and list the peers it defines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			i := cfg.Interface
			fmt.Fprintf(out, "interface %s address=%s mtu=%d buffer=%d ip-filtering=%t\n",
				i.Name, i.Address, i.MTU, i.Buffer, i.IPFiltering)
			for _, d := range cfg.Peers {
				fmt.Fprintln(out, describePeer(d))
			}
			return nil
		},
	}
}

func describePeer(d peer.Descriptor) string {
	allowed := make([]string, 0, len(d.AllowedIPs()))
	for _, p := range d.AllowedIPs() {
		allowed = append(allowed, p.String())
	}
	line := fmt.Sprintf("peer %s allowedips=%s compression=%s encryption=%s",
		d.Name(), strings.Join(allowed, ","), d.Compression(), d.Encryption())
	if d.Speed() != 0 {
		line += fmt.Sprintf(" speed=%d", d.Speed())
	}
	if d.Reconnect().Enabled {
		line += " reconnect"
	}
	return line
}
