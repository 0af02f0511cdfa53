package connutil

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		addr string
		want Target
	}{
		{"tcp://10.0.0.5", Target{Scheme: "tcp", Host: "10.0.0.5:5025", Baud: DefaultBaud}},
		{"tcp://pna.lab:5026", Target{Scheme: "tcp", Host: "pna.lab:5026", Baud: DefaultBaud}},
		{"serial:///dev/ttyUSB0?baud=9600", Target{Scheme: "serial", Device: "/dev/ttyUSB0", Baud: 9600}},
		{"serial://usb/A603UX94", Target{Scheme: "serial", USBSerial: "A603UX94", Baud: DefaultBaud}},
		{"prologix:///dev/ttyACM0?pad=16&sad=96&clear=1", Target{Scheme: "prologix", Device: "/dev/ttyACM0", Baud: DefaultBaud, PAD: 16, SAD: 96, Clear: true}},
		{"prologix://usb/PX9?pad=4&ar488=true", Target{Scheme: "prologix", USBSerial: "PX9", Baud: DefaultBaud, PAD: 4, AR488: true}},
	}
	for _, tc := range tests {
		t.Run(tc.addr, func(t *testing.T) {
			got, err := Parse(tc.addr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, addr := range []string{
		"http://192.168.1.20",
		"gpib0::16::INSTR",
		"tcp://",
		"serial://",
		"serial://usb/",
		"serial://host/dev/ttyUSB0",
		"serial:///dev/ttyUSB0?baud=fast",
		"prologix:///dev/ttyUSB0",
	} {
		_, err := Parse(addr)
		assert.ErrorIs(t, err, cryolab.ErrInvalidAddress, addr)
	}
}

func TestAddFlags(t *testing.T) {
	var c Conn
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--write-delay", "100ms", "--trace"}))
	assert.Equal(t, 100*time.Millisecond, c.Delay)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.True(t, c.Debug)
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- line
		conn.Write([]byte("Keysight Technologies,N5231B,MY1,A.13\n"))
	}()

	c := &Conn{Timeout: 5 * time.Second, Log: zerolog.Nop()}
	s, err := c.Open("tcp://" + ln.Addr().String())
	require.NoError(t, err)
	idn, err := s.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "Keysight Technologies,N5231B,MY1,A.13", idn)
	assert.Equal(t, "*IDN?\n", <-got)
	assert.NoError(t, s.Close())
}

func TestOpenRejectsHTTP(t *testing.T) {
	_, err := (&Conn{}).Open("http://192.168.1.20")
	assert.ErrorIs(t, err, cryolab.ErrInvalidAddress)
}
