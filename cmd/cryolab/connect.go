package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/cryoswitch"
	"github.com/gotmc/cryolab/lib/lab"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <channel|alias>",
	Short: "Route the cryogenic switch to a channel",
	Long: `Ramps the HEMT bias down, moves both sides of the cryogenic switch to the
channel (1-6 or an alias from switch.aliases) and ramps the bias back up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if cmd.Flags().Changed("safe") {
			cfg.Switch.Safe, _ = cmd.Flags().GetBool("safe")
		}
		l, err := openLab(cmd, lab.PartSwitch)
		if err != nil {
			return err
		}
		defer closeLab(l, &err)

		res, err := l.Connect(args[0])
		if errors.Is(err, cryolab.ErrUserAbortedSafety) {
			return fmt.Errorf("%w; switch not moved", err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res)
		return nil
	},
}

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "List the configured switch channel aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cryoswitch.NewAliases(cfg.Switch.Aliases)
		if err != nil {
			return err
		}
		names := a.Names()
		sort.Slice(names, func(i, j int) bool {
			ci, _ := a.Lookup(names[i])
			cj, _ := a.Lookup(names[j])
			return ci < cj || ci == cj && names[i] < names[j]
		})
		for _, name := range names {
			ch, _ := a.Lookup(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", ch, name)
		}
		return nil
	},
}

func init() {
	connectCmd.Flags().Bool("safe", true, "ask for confirmation that the HEMTs are off before switching")
	rootCmd.AddCommand(connectCmd, aliasesCmd)
}
