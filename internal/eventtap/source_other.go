//go:build !linux && !windows && (!darwin || !cgo)

package eventtap

import "errors"

// nullSource is the fallback for platforms without a hook implementation.
type nullSource struct{}

// NewPlatformSource returns a source that always fails to start.
func NewPlatformSource() Source {
	return nullSource{}
}

func (nullSource) Start(func(Event) bool) error {
	return errors.New("system-wide input hooks are not supported on this platform")
}

func (nullSource) Stop() error { return nil }
func (nullSource) Alive() bool { return false }
