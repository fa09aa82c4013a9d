//go:build linux

package permission

import (
	"os"
	"path/filepath"
)

// linuxChecker treats readable /dev/input devices as the permission. There
// is no permission dialog on Linux; the fix is membership in the 'input'
// group, so Prompt just has nothing to do.
type linuxChecker struct{}

// NewPlatformChecker returns the Linux input-device checker.
func NewPlatformChecker() Checker {
	return linuxChecker{}
}

func (linuxChecker) Check() Status {
	devices, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(devices) == 0 {
		return StatusDenied
	}
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return StatusGranted
		}
	}
	return StatusDenied
}

func (linuxChecker) Prompt() {}
