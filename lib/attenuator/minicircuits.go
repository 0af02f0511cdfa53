package attenuator

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MiniCircuits is a Mini-Circuits programmable attenuator reached over its
// HTTP interface.
type MiniCircuits struct {
	base   string
	client *http.Client
}

// NewMiniCircuits returns a driver for the unit at base, e.g.
// "http://192.168.9.61". A nil client uses a client with a 5 s timeout.
func NewMiniCircuits(base string, client *http.Client) *MiniCircuits {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &MiniCircuits{base: strings.TrimRight(base, "/"), client: client}
}

// SetAttenuation programs the unit. The unit answers 1 on success, 2 when the
// value was clamped to its maximum and 0 on failure.
func (m *MiniCircuits) SetAttenuation(dB float64) error {
	reply, err := m.get("SETATT=" + strconv.FormatFloat(dB, 'f', 2, 64))
	if err != nil {
		return err
	}
	switch reply {
	case "1":
		return nil
	case "2":
		return fmt.Errorf("%s: %g dB exceeds the unit's range, clamped to maximum", m.base, dB)
	default:
		return fmt.Errorf("%s: setting %g dB failed (reply %q)", m.base, dB, reply)
	}
}

// Attenuation returns the programmed attenuation.
func (m *MiniCircuits) Attenuation() (float64, error) {
	reply, err := m.get("ATT?")
	if err != nil {
		return 0, err
	}
	dB, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parsing attenuation %q: %w", m.base, reply, err)
	}
	return dB, nil
}

func (m *MiniCircuits) get(cmd string) (string, error) {
	resp, err := m.client.Get(m.base + "/" + cmd)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %s: %s", m.base, cmd, resp.Status)
	}
	return strings.TrimSpace(string(body)), nil
}
