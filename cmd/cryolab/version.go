package main

import (
	"fmt"

	"github.com/gotmc/cryolab"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:              "version",
	Short:            "Print the version number of cryolab",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cryolab version %s\n", cryolab.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
