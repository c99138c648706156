//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED from the connection's socket.
func peerCredentials(conn net.Conn) PeerCred {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerCred{}
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCred{}
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return PeerCred{}
	}
	return PeerCred{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid, Known: true}
}
