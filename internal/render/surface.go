package render

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/livedash/host/internal/errors"
)

// Frame is one drawn dashboard of one client.
type Frame struct {
	ClientID uint64
	Version  uint64
	Image    *image.RGBA
	PNG      []byte
	DrawnAt  time.Time
}

// Surface receives frames. Release is called when a client's window is
// destroyed; Close when the service shuts down.
type Surface interface {
	Present(frame Frame) error
	Release(clientID uint64) error
	Close() error
}

// FileSurface writes each client's latest frame to <dir>/client-<id>.png.
type FileSurface struct {
	dir string

	mu      sync.Mutex
	written map[uint64]string
}

// NewFileSurface creates the output directory if needed.
func NewFileSurface(dir string) (*FileSurface, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRenderSurface, "failed to create frame directory", err)
	}
	return &FileSurface{dir: dir, written: make(map[uint64]string)}, nil
}

// Path returns the file a client's frames are written to.
func (s *FileSurface) Path(clientID uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("client-%d.png", clientID))
}

// Present writes the frame through a temporary file and rename, so
// readers never observe a partial PNG.
func (s *FileSurface) Present(frame Frame) error {
	path := s.Path(frame.ClientID)
	tmp, err := os.CreateTemp(s.dir, ".client-*.png.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRenderSurface, "failed to create frame file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(frame.PNG); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.CodeRenderSurface, "failed to write frame", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.CodeRenderSurface, "failed to write frame", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.CodeRenderSurface, "failed to publish frame", err)
	}

	s.mu.Lock()
	s.written[frame.ClientID] = path
	s.mu.Unlock()
	return nil
}

// Release removes the client's frame file.
func (s *FileSurface) Release(clientID uint64) error {
	s.mu.Lock()
	path, ok := s.written[clientID]
	delete(s.written, clientID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.CodeRenderSurface, "failed to remove frame", err)
	}
	return nil
}

// Close removes every frame file still present.
func (s *FileSurface) Close() error {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.written))
	for id := range s.written {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.Release(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiSurface fans frames out to several surfaces. Every surface is
// called even when an earlier one fails.
type MultiSurface []Surface

func (m MultiSurface) Present(frame Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.Present(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSurface) Release(clientID uint64) error {
	var errs []error
	for _, s := range m {
		if err := s.Release(clientID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSurface) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
