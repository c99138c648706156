//go:build unix

package ipc

import (
	"fmt"

	"golang.org/x/sys/unix"

	apperrors "github.com/livedash/host/internal/errors"
)

// socketPathLimit is the size of sun_path on this platform, including the
// terminating NUL.
const socketPathLimit = len(unix.RawSockaddrUnix{}.Path)

func validateSocketPath(path string) error {
	if path == "" {
		return nil
	}
	limit := socketPathLimit - 1
	if len(path) > limit {
		return apperrors.New(apperrors.CodeIPCSocketInvalid, fmt.Sprintf("socket path exceeds %d bytes: %s", limit, path))
	}
	return nil
}
