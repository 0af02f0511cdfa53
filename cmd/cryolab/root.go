package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gotmc/cryolab/lib/config"
	"github.com/gotmc/cryolab/lib/confirm"
	"github.com/gotmc/cryolab/lib/lab"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:           "cryolab",
	Short:         "Operate a cryogenic RF measurement setup",
	Long:          `cryolab ramps HEMT bias, routes the cryogenic switch, sets the network analyzer power and captures S-parameters.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New(cfgFile)
		for key, flag := range map[string]string{
			"log.level":              "log-level",
			"log.json":               "log-json",
			"connection.trace":       "trace",
			"connection.write_delay": "write-delay",
			"connection.timeout":     "timeout",
		} {
			if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
				return err
			}
		}
		var err error
		if cfg, err = config.FromViper(v); err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return err
		}
		if cfg.File != "" {
			logger.Debug().Str("file", cfg.File).Msg("configuration loaded")
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./cryolab.yaml or ~/.config/cryolab/cryolab.yaml)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.Bool("log-json", false, "log JSON instead of console output")
	pf.Bool("trace", false, "log every instrument command and query")
	pf.Duration("write-delay", 0, "delay between writes to an instrument")
	pf.Duration("timeout", 30*time.Second, "instrument read timeout")
}

func newLogger(c config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	var l zerolog.Logger
	if c.JSON {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return l.Level(level).With().Timestamp().Logger(), nil
}

// openLab opens parts of the setup; the caller closes it.
func openLab(cmd *cobra.Command, parts lab.Part, opts ...lab.Option) (*lab.Lab, error) {
	opts = append([]lab.Option{
		lab.WithLogger(logger),
		lab.WithConfirmer(confirm.NewPrompt(cmd.InOrStdin(), cmd.OutOrStdout())),
	}, opts...)
	return lab.Open(cfg, parts, opts...)
}

// closeLab closes l, keeping the first error.
func closeLab(l *lab.Lab, err *error) {
	if cerr := l.Close(); cerr != nil {
		logger.Error().Err(cerr).Msg("closing instruments")
		if *err == nil {
			*err = cerr
		}
	}
}
