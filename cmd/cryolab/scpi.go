package main

import (
	"github.com/gotmc/cryolab/lib/cmdlog"
	"github.com/gotmc/cryolab/lib/connutil"
	"github.com/spf13/cobra"
)

var scpiCmd = &cobra.Command{
	Use:   "scpi <address|vna|bias|switch>",
	Short: "Interactive SCPI console",
	Long: `Opens an instrument by address URL or by its name in the configuration and
sends each typed line to it. Lines containing '?' are queries, lines starting
with ++ go to a Prologix adapter (++ver? reads the reply).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		addr := args[0]
		switch addr {
		case "vna":
			addr = cfg.VNA.Address
		case "bias":
			addr = cfg.Bias.Address
		case "switch":
			addr = cfg.Switch.Address
		}
		conn := &connutil.Conn{
			Delay:   cfg.Connection.WriteDelay,
			Timeout: cfg.Connection.Timeout,
			Debug:   cfg.Connection.Trace,
			Log:     logger,
		}
		s, err := conn.Open(addr)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); err == nil {
				err = cerr
			}
		}()
		return cmdlog.New(s, cmd.OutOrStdout(), logger).Run(cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(scpiCmd)
}
