package cryoswitch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gotmc/cryolab"
)

// Contacts on each side of the switch.
const (
	MinChannel = 1
	MaxChannel = 6
)

// Aliases names switch channels after the device mounted on them. Names are
// case-insensitive.
type Aliases map[string]int

// NewAliases validates a name→channel table.
func NewAliases(table map[string]int) (Aliases, error) {
	a := make(Aliases, len(table))
	for name, ch := range table {
		if err := a.Add(name, ch); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add registers name for channel ch.
func (a Aliases) Add(name string, ch int) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("%w: empty alias", cryolab.ErrInvalidChannel)
	}
	if ch < MinChannel || ch > MaxChannel {
		return fmt.Errorf("%w: alias %q maps to %d (must be %d-%d)", cryolab.ErrInvalidChannel, name, ch, MinChannel, MaxChannel)
	}
	if _, dup := a[key]; dup {
		return fmt.Errorf("duplicate alias %q", name)
	}
	a[key] = ch
	return nil
}

// Lookup returns the channel registered for name.
func (a Aliases) Lookup(name string) (int, bool) {
	ch, ok := a[strings.ToLower(strings.TrimSpace(name))]
	return ch, ok
}

// Names returns the registered names in sorted order.
func (a Aliases) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Target is a switch channel given either by number or by alias.
type Target struct {
	Number int
	Alias  string
}

// Number targets channel n.
func Number(n int) Target { return Target{Number: n} }

// Alias targets the channel registered under name.
func Alias(name string) Target { return Target{Alias: name} }

// ParseTarget reads a command-line argument: digits are a channel number,
// anything else an alias.
func ParseTarget(s string) Target {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return Number(n)
	}
	return Alias(s)
}

// Resolve returns the channel number of t.
func (t Target) Resolve(a Aliases) (int, error) {
	if t.Alias != "" {
		ch, ok := a.Lookup(t.Alias)
		if !ok {
			return 0, fmt.Errorf("%w: unknown alias %q", cryolab.ErrInvalidChannel, t.Alias)
		}
		return ch, nil
	}
	if t.Number < MinChannel || t.Number > MaxChannel {
		return 0, fmt.Errorf("%w: %d (must be %d-%d)", cryolab.ErrInvalidChannel, t.Number, MinChannel, MaxChannel)
	}
	return t.Number, nil
}

func (t Target) String() string {
	if t.Alias != "" {
		return t.Alias
	}
	return strconv.Itoa(t.Number)
}
