package main

import (
	"fmt"
	"os"

	"github.com/gotmc/cryolab/lib/lab"
	"github.com/gotmc/cryolab/lib/resonator"
	"github.com/gotmc/cryolab/lib/vna"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

type sweepFlags struct {
	start, stop float64
	points      int
	ifbw        float64
	avg         int
	power       float64
}

func (s *sweepFlags) add(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&s.start, "start", 0, "sweep start frequency in Hz")
	f.Float64Var(&s.stop, "stop", 0, "sweep stop frequency in Hz")
	f.IntVar(&s.points, "points", 0, "number of sweep points")
	f.Float64Var(&s.ifbw, "ifbw", 0, "IF bandwidth in Hz")
	f.IntVar(&s.avg, "avg", 0, "number of sweeps to average")
	f.Float64Var(&s.power, "power", 0, "delivered power in dBm")
}

// apply programs the settings given on the command line.
func (s *sweepFlags) apply(cmd *cobra.Command, l *lab.Lab) error {
	f := cmd.Flags()
	ch := l.Channel
	if f.Changed("start") || f.Changed("stop") {
		start, stop, err := ch.Frequency()
		if err != nil {
			return err
		}
		if f.Changed("start") {
			start = s.start
		}
		if f.Changed("stop") {
			stop = s.stop
		}
		if err := ch.SetFrequency(start, stop); err != nil {
			return err
		}
	}
	if f.Changed("points") {
		if err := ch.SetNPoints(s.points); err != nil {
			return err
		}
	}
	if f.Changed("ifbw") {
		if err := ch.SetIFBandwidth(s.ifbw); err != nil {
			return err
		}
	}
	if f.Changed("avg") {
		if err := ch.SetAveraging(s.avg); err != nil {
			return err
		}
	}
	if f.Changed("power") {
		if err := l.Power.SetPower(s.power); err != nil {
			return err
		}
	}
	return nil
}

var (
	captureSweep sweepFlags
	capturePorts []int
	captureOut   string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture S-parameters to a Touchstone file",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openLab(cmd, lab.PartVNA, lab.WithKeepAttenuation())
		if err != nil {
			return err
		}
		defer closeLab(l, &err)
		if err := captureSweep.apply(cmd, l); err != nil {
			return err
		}

		nw, err := l.Channel.Capture(capturePorts...)
		if err != nil {
			return err
		}
		name := captureOut
		if name == "" {
			name = fmt.Sprintf("capture.s%dp", nw.NPorts())
		}
		if err := writeTouchstone(name, nw); err != nil {
			return err
		}
		logger.Info().Str("file", name).Int("points", nw.Len()).Ints("ports", nw.Ports).Msg("captured")
		return nil
	},
}

func writeTouchstone(name string, nw *vna.Network) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	return nw.WriteTouchstone(f)
}

var (
	resSweep  sweepFlags
	resPlots  string
	resCount  int
	resBlocks int
	resOut    string
)

var resonatorsCmd = &cobra.Command{
	Use:   "resonators",
	Short: "Capture S21 and locate resonators",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		l, err := openLab(cmd, lab.PartVNA, lab.WithKeepAttenuation())
		if err != nil {
			return err
		}
		defer closeLab(l, &err)
		if err := resSweep.apply(cmd, l); err != nil {
			return err
		}

		nw, err := l.Channel.Capture(1, 2)
		if err != nil {
			return err
		}
		if resOut != "" {
			if err := writeTouchstone(resOut, nw); err != nil {
				return err
			}
		}
		s21, err := nw.Param(2, 1)
		if err != nil {
			return err
		}
		opts := []resonator.Option{
			resonator.WithCount(resCount),
			resonator.WithBlocks(resBlocks),
			resonator.WithLogger(logger),
		}
		if resPlots != "" {
			if err := os.MkdirAll(resPlots, 0o755); err != nil {
				return err
			}
			opts = append(opts, resonator.WithPlotDir(resPlots))
		}
		found, err := resonator.Find(nw.Frequency, s21, opts...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "#\tcenter (GHz)\tlinewidth (kHz)")
		for i, r := range found {
			fmt.Fprintf(out, "%d\t%.6f\t%.1f\n", i+1, r.Center/1e9, r.Linewidth/1e3)
		}
		return nil
	},
}

func init() {
	captureSweep.add(captureCmd)
	captureCmd.Flags().IntSliceVar(&capturePorts, "ports", nil, "ports to capture (default all)")
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "Touchstone output file (default capture.sNp)")

	resSweep.add(resonatorsCmd)
	f := resonatorsCmd.Flags()
	f.StringVar(&resPlots, "plots", "", "directory for one PNG per resonator")
	f.IntVar(&resCount, "count", resonator.DefaultCount, "number of resonators")
	f.IntVar(&resBlocks, "blocks", resonator.DefaultBlocks, "number of blocks the sweep is divided into")
	f.StringVarP(&resOut, "out", "o", "", "also save the sweep as a Touchstone file")

	rootCmd.AddCommand(captureCmd, resonatorsCmd)
}
