// Package session implements spec.md §4.8: the per-client state
// machine on the data-server side, from the initial handshake through
// request dispatch to teardown.
package session

import (
	"io"
	"os"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FileInfo is the subset of file metadata the stat/admin paths need
// back from the backing filesystem.
type FileInfo struct {
	Size    int64
	Mode    os.FileMode
	ModTime int64
	IsDir   bool
}

// Backend is the backing filesystem contract (spec.md §1: "the
// backing filesystem is an external collaborator"). A session never
// touches the operating system directly; every path has already been
// rewritten through localroot/remoteroot by the time it reaches
// Backend.
type Backend interface {
	Open(path string, flags int, perm os.FileMode) (File, error)
	Stat(path string) (FileInfo, error)
	Mkdir(path string, perm os.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(path string) error
	RemoveDir(path string) error
	Chmod(path string, perm os.FileMode) error
}

// File is the open-file handle Backend.Open returns; satisfied by
// *os.File and any equivalent.
type File interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Rewriter rewrites a client-visible path through the configured
// localroot/remoteroot prefixes and normalizes it via the Path
// Registry's normalization (spec.md §4.8 "Stat/mkdir/... straight
// pass-through ... with path rewriting").
type Rewriter struct {
	LocalRoot  string
	RemoteRoot string
}

// ToLocal rewrites a client path (rooted at RemoteRoot) into the
// backing filesystem's namespace (rooted at LocalRoot).
func (rw Rewriter) ToLocal(clientPath string) (string, error) {
	clean := path.Clean("/" + norm.NFC.String(clientPath))
	if rw.RemoteRoot != "" {
		if !strings.HasPrefix(clean, rw.RemoteRoot) {
			return "", os.ErrInvalid
		}
		clean = strings.TrimPrefix(clean, rw.RemoteRoot)
		if clean == "" {
			clean = "/"
		}
	}
	return path.Join(rw.LocalRoot, clean), nil
}
