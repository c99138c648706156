//go:build !linux && !darwin

package ipc

import "net"

func peerCredentials(conn net.Conn) PeerCred {
	return PeerCred{}
}
