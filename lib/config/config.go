// Package config loads the lab configuration: instrument addresses, bias
// setpoints, switch aliases and connection settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotmc/cryolab/lib/bias"
	"github.com/gotmc/cryolab/lib/cryoswitch"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: vna.address is read from
// CRYOLAB_VNA_ADDRESS.
const EnvPrefix = "CRYOLAB"

// Config holds all configuration for a lab session.
type Config struct {
	VNA         VNAConfig        `mapstructure:"vna" yaml:"vna"`
	Attenuators AttenuatorConfig `mapstructure:"attenuators" yaml:"attenuators"`
	Bias        BiasConfig       `mapstructure:"bias" yaml:"bias"`
	Switch      SwitchConfig     `mapstructure:"switch" yaml:"switch"`
	Connection  ConnectionConfig `mapstructure:"connection" yaml:"connection"`
	Log         LogConfig        `mapstructure:"log" yaml:"log"`

	// File is the configuration file read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// VNAConfig holds the network analyzer settings.
type VNAConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Channel int    `mapstructure:"channel" yaml:"channel"`
}

// AttenuatorConfig lists the two Mini-Circuits attenuators in series with
// the analyzer source. No addresses means no external attenuation.
type AttenuatorConfig struct {
	Addresses []string      `mapstructure:"addresses" yaml:"addresses"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BiasConfig holds the HEMT bias supply settings.
type BiasConfig struct {
	Address      string        `mapstructure:"address" yaml:"address"`
	GateChannel  int           `mapstructure:"gate_channel" yaml:"gate_channel"`
	DrainChannel int           `mapstructure:"drain_channel" yaml:"drain_channel"`
	Gate         float64       `mapstructure:"gate" yaml:"gate"`
	Drain        float64       `mapstructure:"drain" yaml:"drain"`
	Step         float64       `mapstructure:"step" yaml:"step"`
	Delay        time.Duration `mapstructure:"delay" yaml:"delay"`
	Strict       bool          `mapstructure:"strict" yaml:"strict"`
}

// SwitchConfig holds the cryogenic switch settings.
type SwitchConfig struct {
	Address  string              `mapstructure:"address" yaml:"address"`
	Volts    float64             `mapstructure:"volts" yaml:"volts"`
	Settle   time.Duration       `mapstructure:"settle" yaml:"settle"`
	Safe     bool                `mapstructure:"safe" yaml:"safe"`
	Aliases  map[string]int      `mapstructure:"aliases" yaml:"aliases"`
	Commands cryoswitch.Commands `mapstructure:"commands" yaml:"commands"`
}

// ConnectionConfig holds transport settings shared by every instrument.
type ConnectionConfig struct {
	WriteDelay time.Duration `mapstructure:"write_delay" yaml:"write_delay"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Trace      bool          `mapstructure:"trace" yaml:"trace"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("vna.address", "")
	v.SetDefault("vna.channel", 1)
	v.SetDefault("attenuators.addresses", []string{})
	v.SetDefault("attenuators.timeout", 5*time.Second)
	v.SetDefault("bias.address", "")
	v.SetDefault("bias.gate_channel", 1)
	v.SetDefault("bias.drain_channel", 2)
	v.SetDefault("bias.gate", bias.DefaultSetpoints.Gate)
	v.SetDefault("bias.drain", bias.DefaultSetpoints.Drain)
	v.SetDefault("bias.step", bias.DefaultSetpoints.Step)
	v.SetDefault("bias.delay", bias.DefaultSetpoints.Delay)
	v.SetDefault("bias.strict", false)
	v.SetDefault("switch.address", "")
	v.SetDefault("switch.volts", cryoswitch.DefaultVolts)
	v.SetDefault("switch.settle", cryoswitch.DefaultSettle)
	v.SetDefault("switch.safe", true)
	v.SetDefault("switch.aliases", map[string]int{})
	v.SetDefault("switch.commands.start", cryoswitch.DefaultCommands.Start)
	v.SetDefault("switch.commands.output_voltage", cryoswitch.DefaultCommands.OutputVoltage)
	v.SetDefault("switch.commands.connect", cryoswitch.DefaultCommands.Connect)
	v.SetDefault("switch.commands.disconnect_all", cryoswitch.DefaultCommands.DisconnectAll)
	v.SetDefault("connection.write_delay", time.Duration(0))
	v.SetDefault("connection.timeout", 30*time.Second)
	v.SetDefault("connection.trace", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// New returns a viper instance with defaults and environment overrides set
// up. When file is empty, cryolab.yaml is looked up in the working directory
// and in $HOME/.config/cryolab.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("cryolab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cryolab"))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (or the default search path) and the environment. A
// missing file is an error only when it was named explicitly.
func Load(file string) (*Config, error) {
	return FromViper(New(file))
}

// FromViper reads the configuration file registered on v, if any, and
// decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be checked by a single driver.
func (c *Config) Validate() error {
	if n := len(c.Attenuators.Addresses); n != 0 && n != 2 {
		return fmt.Errorf("config: attenuators.addresses needs 0 or 2 entries, got %d", n)
	}
	if c.Bias.GateChannel == c.Bias.DrainChannel {
		return fmt.Errorf("config: bias gate and drain share channel %d", c.Bias.GateChannel)
	}
	if c.Bias.Step <= 0 {
		return fmt.Errorf("config: bias.step must be positive, got %g", c.Bias.Step)
	}
	if _, err := cryoswitch.NewAliases(c.Switch.Aliases); err != nil {
		return fmt.Errorf("config: switch.aliases: %w", err)
	}
	return nil
}

// Setpoints returns the bias operating point.
func (c *Config) Setpoints() bias.Setpoints {
	return bias.Setpoints{Gate: c.Bias.Gate, Drain: c.Bias.Drain, Step: c.Bias.Step, Delay: c.Bias.Delay}
}

// WriteYAML renders the configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
