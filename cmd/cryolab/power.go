package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gotmc/cryolab/lib/lab"
	"github.com/spf13/cobra"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Set or read the power delivered by the network analyzer",
}

var powerSetCmd = &cobra.Command{
	Use:   "set <dBm>",
	Short: "Set the delivered power, using the attenuators below -90 dBm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dBm, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("power %q: %w", args[0], err)
		}
		l, err := openLab(cmd, lab.PartVNA)
		if err != nil {
			return err
		}
		defer closeLab(l, &err)
		return l.Power.SetPower(dBm)
	},
}

var powerGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Read the delivered power",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openLab(cmd, lab.PartVNA, lab.WithKeepAttenuation())
		if err != nil {
			return err
		}
		defer closeLab(l, &err)
		p, err := l.Power.Power()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%g dBm\n", p)
		return nil
	},
}

var attenCmd = &cobra.Command{
	Use:   "atten",
	Short: "Set or read the external attenuators",
}

var attenSetCmd = &cobra.Command{
	Use:   "set <dB>",
	Short: "Set both attenuators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dB, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("attenuation %q: %w", args[0], err)
		}
		l, err := openAttenuators(cmd)
		if err != nil {
			return err
		}
		defer closeLab(l, &err)
		return l.Attenuators.SetAttenuation(dB)
	},
}

var attenGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Read the attenuation of both attenuators",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openAttenuators(cmd, lab.WithKeepAttenuation())
		if err != nil {
			return err
		}
		defer closeLab(l, &err)
		dB, err := l.Attenuators.Attenuation()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%g dB\n", dB)
		return nil
	},
}

// openAttenuators opens the analyzer together with its attenuators.
func openAttenuators(cmd *cobra.Command, opts ...lab.Option) (*lab.Lab, error) {
	if len(cfg.Attenuators.Addresses) == 0 {
		return nil, errors.New("no attenuators configured (attenuators.addresses)")
	}
	return openLab(cmd, lab.PartVNA, opts...)
}

func init() {
	powerCmd.AddCommand(powerSetCmd, powerGetCmd)
	attenCmd.AddCommand(attenSetCmd, attenGetCmd)
	rootCmd.AddCommand(powerCmd, attenCmd)
}
