package cryoswitch

import (
	"strconv"
	"strings"

	"github.com/gotmc/cryolab"
)

// Side selects one of the two switches of the matrix. Each side routes its
// common port to one of six contacts.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// DefaultVolts is the pulse output voltage set when the switch starts.
const DefaultVolts = 5.5

// Matrix is the switch controller.
type Matrix interface {
	DisconnectAll(side Side) error
	Connect(side Side, contact int) error
}

// Commands are the text commands understood by the switch controller.
// Placeholders {side}, {contact} and {volts} are substituted before sending.
type Commands struct {
	Start         []string `mapstructure:"start" yaml:"start"`
	OutputVoltage string   `mapstructure:"output_voltage" yaml:"output_voltage"`
	Connect       string   `mapstructure:"connect" yaml:"connect"`
	DisconnectAll string   `mapstructure:"disconnect_all" yaml:"disconnect_all"`
}

// DefaultCommands is the command set of the lab's switch controller firmware.
var DefaultCommands = Commands{
	Start:         []string{"START"},
	OutputVoltage: "VOLT {volts}",
	Connect:       "CONN {side},{contact}",
	DisconnectAll: "DISC:ALL {side}",
}

// LineMatrix drives a switch controller that takes one text command per line.
type LineMatrix struct {
	inst cryolab.Instrument
	cmds Commands
}

// NewLineMatrix wraps a session with the controller. Empty command templates
// fall back to DefaultCommands.
func NewLineMatrix(inst cryolab.Instrument, cmds Commands) *LineMatrix {
	if cmds.Start == nil {
		cmds.Start = DefaultCommands.Start
	}
	if cmds.OutputVoltage == "" {
		cmds.OutputVoltage = DefaultCommands.OutputVoltage
	}
	if cmds.Connect == "" {
		cmds.Connect = DefaultCommands.Connect
	}
	if cmds.DisconnectAll == "" {
		cmds.DisconnectAll = DefaultCommands.DisconnectAll
	}
	return &LineMatrix{inst: inst, cmds: cmds}
}

// Start powers up the controller and sets the pulse output voltage used to
// actuate the switches.
func (m *LineMatrix) Start(volts float64) error {
	for _, cmd := range m.cmds.Start {
		if err := m.send(cmd, nil); err != nil {
			return err
		}
	}
	return m.send(m.cmds.OutputVoltage, map[string]string{
		"volts": strconv.FormatFloat(volts, 'f', -1, 64),
	})
}

// DisconnectAll opens every contact of side.
func (m *LineMatrix) DisconnectAll(side Side) error {
	return m.send(m.cmds.DisconnectAll, map[string]string{"side": string(side)})
}

// Connect closes contact on side.
func (m *LineMatrix) Connect(side Side, contact int) error {
	return m.send(m.cmds.Connect, map[string]string{
		"side":    string(side),
		"contact": strconv.Itoa(contact),
	})
}

func (m *LineMatrix) send(tmpl string, vars map[string]string) error {
	cmd := tmpl
	for k, v := range vars {
		cmd = strings.ReplaceAll(cmd, "{"+k+"}", v)
	}
	// Command formats only when given arguments, so a literal % is safe here.
	return m.inst.Command(cmd)
}
