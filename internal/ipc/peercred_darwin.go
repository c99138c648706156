//go:build darwin

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads LOCAL_PEERCRED and LOCAL_PEERPID from the
// connection's socket.
func peerCredentials(conn net.Conn) PeerCred {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerCred{}
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCred{}
	}

	var xu *unix.Xucred
	var pid int
	var credErr error
	err = raw.Control(func(fd uintptr) {
		xu, credErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
		if credErr == nil {
			pid, _ = unix.GetsockoptInt(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERPID)
		}
	})
	if err != nil || credErr != nil || xu == nil {
		return PeerCred{}
	}
	cred := PeerCred{PID: int32(pid), UID: xu.Uid, Known: true}
	if xu.Ngroups > 0 {
		cred.GID = xu.Groups[0]
	}
	return cred
}
