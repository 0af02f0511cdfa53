// Package find locates USB serial adapters (Prologix, AR488 boards, switch
// and bias controllers) through sysfs.
package find

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

type FilterFn func(*Usbtty) bool

// ArduinoFilter matches Arduino based adapters such as AR488.
func ArduinoFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

func ManufacturerFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return strings.Contains(ut.Mfg, s) }
}

func SerialFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// Finder searches a sysfs tree. The zero value searches /sys.
type Finder struct {
	Root string
	Log  zerolog.Logger
}

// Find searches /sys for a usb serial device. See [Finder.Find].
func Find(filter FilterFn) (string, error) {
	return (&Finder{Log: zerolog.Nop()}).Find(filter)
}

// Find searches for a usb serial device and returns its /dev path. If
// filter is not nil, only devices it returns true for are considered.
// Exactly one device must remain.
func (f *Finder) Find(filter FilterFn) (string, error) {
	ttys, err := f.AllUsbTtys()
	if err != nil {
		return "", err
	}
	if filter != nil {
		var matched Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				matched = append(matched, ttys[i])
			}
		}
		ttys = matched
	}

	if len(ttys) == 0 {
		return "", fmt.Errorf("no matching ttys found")
	}
	if len(ttys) == 1 {
		return "/dev/" + ttys[0].Dev, nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

func (f *Finder) root() string {
	if f.Root == "" {
		return "/sys"
	}
	return f.Root
}

// AllUsbTtys lists ttys on usb devices by resolving the links in
// class/tty.
func (f *Finder) AllUsbTtys() (Usbttys, error) {
	root, err := filepath.EvalSymlinks(f.root())
	if err != nil {
		return nil, err
	}
	sct := filepath.Join(root, "class", "tty")
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	var devs Usbttys
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		// class/tty/ttyACM0 ->
		// devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			f.Log.Warn().Err(err).Str("path", path).Msg("skipping unresolvable tty")
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || !strings.Contains(rel, "usb") {
			continue
		}
		// device points at the usb interface (1-10:1.0); the descriptor
		// files live one level up.
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			f.Log.Warn().Err(err).Str("path", abs).Msg("usb tty lacks device link")
			continue
		}
		ut := Usbtty{Dev: e.Name(), Path: abs}
		if err := readUsbInfo(filepath.Dir(dev), &ut); err != nil {
			f.Log.Warn().Err(err).Str("path", abs).Msg("reading usb descriptors")
		}
		devs = append(devs, ut)
	}
	return devs, nil
}

// readUsbInfo fills the product and vendor ids and the mfg/product/serial
// strings. It returns the last error encountered, ignoring os.ErrNotExist;
// errors do not prevent reading the remaining files.
func readUsbInfo(dir string, ut *Usbtty) (err error) {
	for name, dst := range map[string]*string{
		"idProduct":    &ut.IDp,
		"idVendor":     &ut.IDv,
		"manufacturer": &ut.Mfg,
		"product":      &ut.Prod,
		"serial":       &ut.Serial,
	} {
		b, rerr := os.ReadFile(filepath.Join(dir, name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		*dst = strings.TrimSpace(string(b))
	}
	return err
}
