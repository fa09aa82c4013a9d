//go:build !linux && (!darwin || !cgo)

package permission

// NewPlatformChecker returns a checker that always grants. Windows
// low-level hooks need no special permission, and unsupported platforms
// fail at tap installation instead.
func NewPlatformChecker() Checker {
	return grantedChecker{}
}

type grantedChecker struct{}

func (grantedChecker) Check() Status { return StatusGranted }
func (grantedChecker) Prompt()       {}
