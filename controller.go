// Copyright (c) 2020–2024 The cryolab developers. All rights reserved.
// Project site: https://github.com/gotmc/cryolab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cryolab

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gotmc/cryolab/lib/block"
	"github.com/rs/zerolog"
)

// Instrument is the command/query surface the drivers need. Its Query method
// satisfies github.com/gotmc/query's Querier.
type Instrument interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

// BlockInstrument can additionally read binary block replies.
type BlockInstrument interface {
	Instrument
	QueryBlock(cmd string) ([]byte, error)
}

// Controller is a SCPI session with one instrument. The transport is either
// the instrument itself (raw socket, serial port) or a Prologix GPIB
// controller-in-charge addressing the instrument.
type Controller struct {
	rw               io.ReadWriter
	r                *bufio.Reader
	prologix         bool
	clear            bool
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	writeDelay       time.Duration
	debug            bool // if true, log commands and replies. Set via WithDebug().
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
	log              zerolog.Logger
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a SCPI session over rw. With WithPrologix the
// adapter is configured as GPIB controller-in-charge for the given address
// before returning.
func NewController(rw io.ReadWriter, opts ...ControllerOption) (*Controller, error) {
	c := Controller{
		rw:      rw,
		r:       bufio.NewReader(rw),
		usbTerm: '\n',
		eotChar: '\n',
		log:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	if !c.prologix {
		return &c, nil
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("%w: primary address %d (must be 0-30)", ErrInvalidAddress, c.primaryAddr)
	}

	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("%w: secondary address %d (must be 96-126)", ErrInvalidAddress, c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}
	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		addrCmd,           // Set the primary address.
		"mode 1",          // Switch to controller mode.
		"auto 0",          // Turn off read-after-write and address instrument to listen.
		"eoi 1",           // Enable EOI assertion with last character.
		"eos 0",           // Set GPIB termination.
		"read_tmo_ms 500", // Set the read timeout to 500 ms.
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // Append character when EOI detected?
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if c.clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// WithPrologix addresses the instrument through a Prologix GPIB adapter at
// the given primary address. Enable clear to send the Selected Device Clear
// (SDC) message once configured.
func WithPrologix(addr int, clear bool) ControllerOption {
	return func(c *Controller) {
		c.prologix = true
		c.primaryAddr = addr
		c.clear = clear
	}
}

// WithSecondaryAddress sets a secondary GPIB address, which must be in the
// range of 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithWriteDelay pauses before every write. Some adapters drop commands that
// arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithTerminator sets the byte appended to commands and expected at the end
// of replies.
func WithTerminator(b byte) ControllerOption {
	return func(c *Controller) {
		c.usbTerm = b
		c.eotChar = b
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// Write writes the given data to the instrument.
func (c *Controller) Write(p []byte) (n int, err error) {
	c.pause()
	return c.rw.Write(p)
}

// Read reads buffered reply data from the instrument.
func (c *Controller) Read(p []byte) (n int, err error) {
	return c.r.Read(p)
}

// Command formats according to a format specifier if provided and sends a
// SCPI/ASCII command to the instrument. All leading and trailing whitespace is
// removed before appending the terminator.
func (c *Controller) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	if c.debug {
		c.log.Info().Str("cmd", strings.TrimSpace(cmd)).Msg("command")
	}
	_, err := c.Write([]byte(cmd))
	return err
}

// Query sends cmd and returns the reply line with its terminator stripped.
// When addressing through a Prologix adapter with read-after-write disabled
// the adapter is told to read until EOI.
func (c *Controller) Query(cmd string) (string, error) {
	if err := c.send(cmd); err != nil {
		return "", err
	}
	s, err := c.r.ReadString(c.eotChar)
	if err == io.EOF && len(s) > 0 {
		err = nil
	}
	s = strings.TrimRight(s, "\r\n")
	if c.debug {
		c.log.Info().Str("query", cmd).Str("reply", s).Err(err).Msg("query")
	}
	return s, err
}

// QueryBlock sends cmd and reads a definite-length binary block reply.
func (c *Controller) QueryBlock(cmd string) ([]byte, error) {
	if err := c.send(cmd); err != nil {
		return nil, err
	}
	payload, err := block.Read(c.r)
	if c.debug {
		c.log.Info().Str("query", cmd).Int("bytes", len(payload)).Err(err).Msg("block query")
	}
	return payload, err
}

func (c *Controller) send(cmd string) error {
	if err := c.Command(cmd); err != nil {
		return fmt.Errorf("error writing command: %w", err)
	}
	if c.prologix && !c.auto {
		if err := c.CommandController("read eoi"); err != nil {
			return fmt.Errorf("error sending `++read eoi` command: %w", err)
		}
	}
	return nil
}

// QueryController sends the given command to the Prologix controller and
// returns its response as a string.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	s, err := c.r.ReadString(c.eotChar)
	if c.debug {
		c.log.Info().Str("reply", s).Msg("controller reply")
	}
	return strings.TrimRight(s, "\r\n"), err
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
func (c *Controller) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		c.log.Info().Str("cmd", strings.TrimSpace(cmd)).Msg("controller command")
	}
	_, err := c.Write([]byte(cmd))
	return err
}

// FrontPanel returns the instrument to local control (++loc) when enabled.
// It is a no-op on direct transports, which have no remote lockout to lift.
func (c *Controller) FrontPanel(local bool) error {
	if !c.prologix || !local {
		return nil
	}
	return c.CommandController("loc")
}

func (c *Controller) pause() {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
