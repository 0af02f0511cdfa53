// Package connutil turns instrument address URLs into connected SCPI
// controllers.
//
//	tcp://host[:port]                      raw SCPI socket (port 5025)
//	serial:///dev/ttyUSB0[?baud=115200]    USB/RS-232 serial device
//	serial://usb/<serial>[?baud=...]       serial device located by USB serial number
//	prologix:///dev/ttyUSB0?pad=16[&sad=96][&ar488=1]
//	prologix://usb/<serial>?pad=16         GPIB through a Prologix adapter
package connutil

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/find"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// Defaults for address fields left out of a URL.
const (
	DefaultSCPIPort = 5025
	DefaultBaud     = 115200
)

// Target is a parsed instrument address.
type Target struct {
	Scheme    string // tcp, serial, prologix
	Host      string // host:port for tcp
	Device    string // device path for serial and prologix
	USBSerial string // USB serial number when the device is looked up
	Baud      int
	PAD, SAD  int // GPIB addresses; SAD is 0 when unused
	Clear     bool
	AR488     bool
}

// Parse parses an instrument address URL.
func Parse(addr string) (Target, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", cryolab.ErrInvalidAddress, err)
	}
	t := Target{Scheme: strings.ToLower(u.Scheme), Baud: DefaultBaud}
	q := u.Query()
	bad := func(format string, a ...any) (Target, error) {
		return Target{}, fmt.Errorf("%w: %s: %s", cryolab.ErrInvalidAddress, addr, fmt.Sprintf(format, a...))
	}

	switch t.Scheme {
	case "tcp":
		if u.Hostname() == "" {
			return bad("missing host")
		}
		port := u.Port()
		if port == "" {
			port = strconv.Itoa(DefaultSCPIPort)
		}
		t.Host = net.JoinHostPort(u.Hostname(), port)
		return t, nil
	case "serial", "prologix":
	case "http", "https":
		return bad("%s addresses are not SCPI transports", t.Scheme)
	default:
		return bad("unknown scheme %q", u.Scheme)
	}

	switch {
	case u.Host == "usb":
		t.USBSerial = strings.Trim(u.Path, "/")
		if t.USBSerial == "" {
			return bad("missing usb serial number")
		}
	case u.Host != "":
		return bad("unexpected host %q", u.Host)
	case u.Path == "":
		return bad("missing device path")
	default:
		t.Device = u.Path
	}

	ints := []struct {
		key string
		dst *int
	}{{"baud", &t.Baud}, {"pad", &t.PAD}, {"sad", &t.SAD}}
	for _, f := range ints {
		if v := q.Get(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return bad("%s=%q is not a number", f.key, v)
			}
			*f.dst = n
		}
	}
	t.Clear = q.Get("clear") == "1" || q.Get("clear") == "true"
	t.AR488 = q.Get("ar488") == "1" || q.Get("ar488") == "true"
	if t.Scheme == "prologix" && !q.Has("pad") {
		return bad("missing pad")
	}
	return t, nil
}

// Conn holds connection settings shared by every instrument.
type Conn struct {
	Delay   time.Duration
	Timeout time.Duration
	Debug   bool
	Diag    bool

	Log    zerolog.Logger
	Finder *find.Finder
}

// AddFlags registers the connection flags on fs.
func (c *Conn) AddFlags(fs *pflag.FlagSet) {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	fs.DurationVar(&c.Delay, "write-delay", c.Delay, "delay between writes to the instrument")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "read timeout")
	fs.BoolVar(&c.Debug, "trace", c.Debug, "log every command and query")
	fs.BoolVar(&c.Diag, "diag", c.Diag, "run the Prologix xdiag sequence after connecting")
}

// Session is an open transport with its controller.
type Session struct {
	*cryolab.Controller
	Target Target

	port  io.Closer
	flush func() error
}

// Close returns GPIB instruments to front panel control, discards unread
// serial input and closes the transport.
func (s *Session) Close() error {
	var err error
	if s.Target.Scheme == "prologix" {
		err = multierr.Append(err, s.FrontPanel(true))
	}
	if s.flush != nil {
		err = multierr.Append(err, s.flush())
	}
	multierr.AppendInvoke(&err, multierr.Close(s.port))
	return err
}

// Open connects to addr.
func (c *Conn) Open(addr string, opts ...cryolab.ControllerOption) (*Session, error) {
	t, err := Parse(addr)
	if err != nil {
		return nil, err
	}
	log := c.Log.With().Str("addr", addr).Logger()
	s := &Session{Target: t}

	var rw io.ReadWriter
	switch t.Scheme {
	case "tcp":
		conn, err := net.DialTimeout("tcp", t.Host, c.timeout())
		if err != nil {
			return nil, err
		}
		rw, s.port = &deadlineConn{Conn: conn, timeout: c.timeout()}, conn
	default:
		dev, err := c.device(t)
		if err != nil {
			return nil, err
		}
		log.Info().Str("port", dev).Msg("opening serial port")
		port, err := serial.Open(dev, &serial.Mode{BaudRate: t.Baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", dev, err)
		}
		if err := port.SetReadTimeout(c.timeout()); err != nil {
			return nil, multierr.Append(err, port.Close())
		}
		rw, s.port, s.flush = port, port, port.ResetInputBuffer
	}

	opts = append(opts, cryolab.WithLogger(log))
	if c.Delay > 0 {
		opts = append(opts, cryolab.WithWriteDelay(c.Delay))
	}
	if c.Debug {
		opts = append(opts, cryolab.WithDebug())
	}
	if t.Scheme == "prologix" {
		opts = append(opts, cryolab.WithPrologix(t.PAD, t.Clear))
		if t.SAD != 0 {
			opts = append(opts, cryolab.WithSecondaryAddress(t.SAD))
		}
		if t.AR488 {
			opts = append(opts, cryolab.WithAR488())
		}
	}
	s.Controller, err = cryolab.NewController(rw, opts...)
	if err != nil {
		return nil, multierr.Append(err, s.port.Close())
	}
	if c.Diag && t.Scheme == "prologix" {
		if err := s.diag(); err != nil {
			return nil, multierr.Append(err, s.Close())
		}
	}
	return s, nil
}

func (c *Conn) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c *Conn) device(t Target) (string, error) {
	if t.USBSerial == "" {
		return t.Device, nil
	}
	f := c.Finder
	if f == nil {
		f = &find.Finder{Log: c.Log}
	}
	dev, err := f.Find(find.SerialFilter(t.USBSerial))
	if err != nil {
		return "", fmt.Errorf("locating usb serial %s: %w", t.USBSerial, err)
	}
	return dev, nil
}

// diag toggles the Prologix diagnostic lines so bus wiring can be checked
// with a scope.
func (s *Session) diag() error {
	for _, step := range []struct {
		cmd  string
		wait time.Duration
	}{
		{"xdiag 1 255", time.Millisecond},
		{"xdiag 0 255", 100 * time.Millisecond},
		{"xdiag 0 0", 0},
		{"xdiag 1 0", 0},
	} {
		if err := s.CommandController(step.cmd); err != nil {
			return err
		}
		time.Sleep(step.wait)
	}
	return nil
}

// deadlineConn applies the read timeout to every read of a socket.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Read(p []byte) (int, error) {
	if err := d.Conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.Conn.Read(p)
}
