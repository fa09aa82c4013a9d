package delivery

import (
	"runtime"
	"sync"
)

// uiThread serializes calls that must run on a single OS thread.
// Accessibility, pasteboard, and synthetic-input APIs all have thread
// affinity on macOS and Windows; funneling them through one locked thread
// keeps the platform happy and doubles as a mutex.
type uiThread struct {
	once  sync.Once
	calls chan call
}

type call struct {
	fn   func() error
	done chan error
}

var sharedUIThread uiThread

// runOnUIThread executes fn on the dedicated UI-affinity thread and waits
// for it to finish.
func runOnUIThread(fn func() error) error {
	sharedUIThread.once.Do(func() {
		sharedUIThread.calls = make(chan call, 16)
		go func() {
			runtime.LockOSThread()
			for c := range sharedUIThread.calls {
				c.done <- c.fn()
			}
		}()
	})
	c := call{fn: fn, done: make(chan error, 1)}
	sharedUIThread.calls <- c
	return <-c.done
}
