// Package cmdlog is an interactive SCPI console with styled transcripts.
package cmdlog

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gotmc/cryolab"
	"github.com/rs/zerolog"
)

func isASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	CmdStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style     = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	PromptStyle = lipgloss.NewStyle().Bold(true)
)

// Describe renders a reply for display: printable replies quoted, short
// binary replies quoted with hex, long binary replies as hex.
func Describe(a string) string {
	a = strings.TrimSuffix(a, "\n")
	if len(a) == 1 && a[0] == 0xff {
		// some instruments reply 0xff when the last command has no result
		a = ""
	}
	switch {
	case len(a) == 0:
		return R1Style.Render("<no response>")
	case isASCII(a):
		return R2Style.Render(fmt.Sprintf("[%d] %q", len(a), a))
	case len(a) < 32:
		return R2Style.Render(fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a)))
	default:
		return R2Style.Render(fmt.Sprintf("[%d] % 2x", len(a), []byte(a)))
	}
}

// adapter is implemented by sessions behind a Prologix adapter.
type adapter interface {
	CommandController(cmd string) error
	QueryController(cmd string) (string, error)
}

// Console sends lines typed by the user to an instrument.
type Console struct {
	inst cryolab.Instrument
	out  io.Writer
	log  zerolog.Logger
}

// New returns a console writing its transcript to out.
func New(inst cryolab.Instrument, out io.Writer, log zerolog.Logger) *Console {
	return &Console{inst: inst, out: out, log: log}
}

// Exec runs one line. Lines containing '?' are queries; lines starting
// with "++" go to the Prologix adapter ("++ver?" reads its reply).
func (c *Console) Exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "++") {
		return c.controller(strings.TrimPrefix(line, "++"))
	}
	if strings.Contains(line, "?") {
		a, err := c.inst.Query(line)
		if err != nil {
			c.log.Error().Err(err).Str("query", line).Msg("query failed")
			return err
		}
		fmt.Fprintf(c.out, "%s: %s\n", CmdStyle.Render(line), Describe(a))
		return nil
	}
	if err := c.inst.Command(line); err != nil {
		c.log.Error().Err(err).Str("cmd", line).Msg("command failed")
		return err
	}
	fmt.Fprintf(c.out, "%s()\n", CmdStyle.Render(line))
	return nil
}

func (c *Console) controller(cmd string) error {
	ad, ok := c.inst.(adapter)
	if !ok {
		return fmt.Errorf("++%s: not connected through a GPIB adapter", cmd)
	}
	if q, found := strings.CutSuffix(cmd, "?"); found {
		a, err := ad.QueryController(q)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: %s\n", CmdStyle.Render("++"+q), Describe(a))
		return nil
	}
	if err := ad.CommandController(cmd); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s()\n", CmdStyle.Render("++"+cmd))
	return nil
}

// Run reads lines from in until EOF or "quit". Failed lines are logged and
// do not end the session.
func (c *Console) Run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, PromptStyle.Render("scpi> "))
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		_ = c.Exec(line)
	}
}
