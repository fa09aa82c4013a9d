//go:build !windows && !linux && !darwin

package ipc

import "net"

// GetPeerCredentials has no portable implementation here.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	return &PeerCredentials{}, nil
}

// VerifyPeerIsCurrentUser trusts the 0600 socket permissions on platforms
// without a peer credential syscall wrapper.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return true, nil
}
