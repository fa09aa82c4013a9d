//go:build windows

package ipc

import (
	"net"
	"syscall"
	"time"
)

const errorPipeBusy = syscall.Errno(231)

// connectWindows opens the daemon's named pipe, retrying briefly while all
// pipe instances are busy.
func (c *IPCClient) connectWindows() (net.Conn, error) {
	pipeName := WindowsPipePath(c.socketPath)
	name, err := syscall.UTF16PtrFromString(pipeName)
	if err != nil {
		return nil, err
	}

	var handle syscall.Handle
	for i := 0; i < 3; i++ {
		handle, err = syscall.CreateFile(
			name,
			syscall.GENERIC_READ|syscall.GENERIC_WRITE,
			0, nil,
			syscall.OPEN_EXISTING,
			0, 0,
		)
		if err == nil {
			return &pipeConn{handle: handle, name: pipeName}, nil
		}
		if errno, ok := err.(syscall.Errno); !ok || errno != errorPipeBusy {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, err
}
