//go:build windows

// Package ipc provides Windows named pipe transport helpers.
package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unsafe"
)

const (
	pipeAccessDuplex       = 0x00000003
	pipeTypeMessage        = 0x00000004
	pipeReadmodeMessage    = 0x00000002
	pipeWait               = 0x00000000
	pipeUnlimitedInstances = 255

	pipeBufferSize = 64 * 1024

	errorPipeConnected = syscall.Errno(535)
)

var (
	kernel32                        = syscall.NewLazyDLL("kernel32.dll")
	procCreateNamedPipeW            = kernel32.NewProc("CreateNamedPipeW")
	procConnectNamedPipe            = kernel32.NewProc("ConnectNamedPipe")
	procDisconnectNamedPipe         = kernel32.NewProc("DisconnectNamedPipe")
	procGetNamedPipeClientProcessId = kernel32.NewProc("GetNamedPipeClientProcessId")
)

// PeerCredentials holds what Windows exposes about a pipe peer. UID and GID
// stay zero; identity is enforced by the pipe DACL instead.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// GetPeerCredentials reports the client PID for pipe connections.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	pc, ok := conn.(*pipeConn)
	if !ok {
		return nil, fmt.Errorf("not a named pipe connection")
	}

	var pid uint32
	r, _, err := procGetNamedPipeClientProcessId.Call(
		uintptr(pc.handle),
		uintptr(unsafe.Pointer(&pid)),
	)
	if r == 0 {
		return nil, err
	}
	return &PeerCredentials{PID: int(pid)}, nil
}

// VerifyPeerIsCurrentUser relies on the pipe DACL: pipes created with
// default security admit only the owning user, so any connected peer
// already passed that check.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return true, nil
}

// SetSocketPermissions is a no-op; pipe security is fixed at creation.
func SetSocketPermissions(path string, mode os.FileMode) error {
	return nil
}

// CleanupSocket is a no-op; the system reclaims named pipes.
func CleanupSocket(path string) error {
	return nil
}

// IsSocketListening probes whether the pipe currently has a server.
func IsSocketListening(path string) bool {
	name, err := syscall.UTF16PtrFromString(WindowsPipePath(path))
	if err != nil {
		return false
	}
	h, err := syscall.CreateFile(
		name,
		syscall.GENERIC_READ|syscall.GENERIC_WRITE,
		0, nil,
		syscall.OPEN_EXISTING,
		0, 0,
	)
	if err != nil {
		return false
	}
	syscall.CloseHandle(h)
	return true
}

func listen(socketPath string) (net.Listener, error) {
	return &pipeListener{name: WindowsPipePath(socketPath)}, nil
}

// WindowsPipePath maps a socket path onto a per-user pipe name. Paths that
// already name a pipe pass through unchanged.
func WindowsPipePath(socketPath string) string {
	if strings.HasPrefix(socketPath, `\\.\pipe\`) {
		return socketPath
	}
	username := os.Getenv("USERNAME")
	if username == "" {
		username = "default"
	}
	return fmt.Sprintf(`\\.\pipe\voxd-%s-%s`, username, filepath.Base(socketPath))
}

// pipeListener hands out one pipe instance per accepted connection.
type pipeListener struct {
	name   string
	closed bool
}

func (l *pipeListener) Accept() (net.Conn, error) {
	if l.closed {
		return nil, net.ErrClosed
	}

	name, err := syscall.UTF16PtrFromString(l.name)
	if err != nil {
		return nil, err
	}

	// Message mode keeps frames atomic across the pipe.
	h, _, cerr := procCreateNamedPipeW.Call(
		uintptr(unsafe.Pointer(name)),
		pipeAccessDuplex,
		pipeTypeMessage|pipeReadmodeMessage|pipeWait,
		pipeUnlimitedInstances,
		pipeBufferSize,
		pipeBufferSize,
		0,
		0, // default security: current user only
	)
	if h == uintptr(syscall.InvalidHandle) {
		return nil, fmt.Errorf("create pipe: %w", cerr)
	}
	handle := syscall.Handle(h)

	if r, _, cerr := procConnectNamedPipe.Call(uintptr(handle), 0); r == 0 {
		// A client racing the create shows up as already connected.
		if errno, ok := cerr.(syscall.Errno); !ok || errno != errorPipeConnected {
			syscall.CloseHandle(handle)
			return nil, fmt.Errorf("connect pipe: %w", cerr)
		}
	}

	return &pipeConn{handle: handle, name: l.name}, nil
}

func (l *pipeListener) Close() error {
	l.closed = true
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return pipeAddr(l.name)
}

// pipeConn adapts one pipe instance to net.Conn.
type pipeConn struct {
	handle syscall.Handle
	name   string
}

func (c *pipeConn) Read(b []byte) (int, error) {
	var n uint32
	err := syscall.ReadFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *pipeConn) Write(b []byte) (int, error) {
	var n uint32
	err := syscall.WriteFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *pipeConn) Close() error {
	procDisconnectNamedPipe.Call(uintptr(c.handle))
	return syscall.CloseHandle(c.handle)
}

func (c *pipeConn) LocalAddr() net.Addr  { return pipeAddr(c.name) }
func (c *pipeConn) RemoteAddr() net.Addr { return pipeAddr(c.name) }

// Deadlines would need overlapped I/O; synchronous pipe reads block until
// the peer writes, which the server's keepalive tolerates.
func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
