package main

import (
	"errors"
	"fmt"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/lab"
	"github.com/spf13/cobra"
)

var biasCmd = &cobra.Command{
	Use:   "bias",
	Short: "Ramp the HEMT gate and drain bias",
}

var biasOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Ramp the bias up to its operating point",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openLab(cmd, lab.PartBias)
		if err != nil {
			return err
		}
		defer closeLab(l, &err)

		set := l.Bias.Setpoints()
		f := cmd.Flags()
		if f.Changed("gate") {
			set.Gate, _ = f.GetFloat64("gate")
		}
		if f.Changed("drain") {
			set.Drain, _ = f.GetFloat64("drain")
		}
		if f.Changed("step") {
			set.Step, _ = f.GetFloat64("step")
		}
		if err := l.Bias.RampUp(set.Gate, set.Drain, set.Step, set.Delay); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "HEMTs biased: gate %g V, drain %g V\n", set.Gate, set.Drain)
		return nil
	},
}

var biasOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Ramp the bias down to zero and disable the outputs",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openLab(cmd, lab.PartBias)
		if err != nil {
			return err
		}
		defer closeLab(l, &err)

		err = l.Bias.Off()
		if errors.Is(err, cryolab.ErrBiasAlreadyOff) {
			fmt.Fprintln(cmd.OutOrStdout(), "HEMTs are already off")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "HEMTs off")
		return nil
	},
}

var biasStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the gate and drain outputs are on",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openLab(cmd, lab.PartBias)
		if err != nil {
			return err
		}
		defer closeLab(l, &err)

		st, err := l.Bias.State()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "HEMT bias: %s\n", st)
		return nil
	},
}

func init() {
	f := biasOnCmd.Flags()
	f.Float64("gate", 0, "gate voltage (default bias.gate)")
	f.Float64("drain", 0, "drain voltage (default bias.drain)")
	f.Float64("step", 0, "ramp step in volts (default bias.step)")
	biasCmd.AddCommand(biasOnCmd, biasOffCmd, biasStatusCmd)
	rootCmd.AddCommand(biasCmd)
}
