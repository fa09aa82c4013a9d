//go:build !windows

package ipc

import (
	"errors"
	"net"
)

// connectWindows is never reached off Windows; Connect dials the Unix
// socket instead.
func (c *IPCClient) connectWindows() (net.Conn, error) {
	return nil, errors.New("named pipes are windows-only")
}
