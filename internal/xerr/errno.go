package xerr

import (
	"errors"
	"io/fs"
	"syscall"
)

// FromFSError maps a backing-filesystem error to a client-visible
// Outcome exactly once, at the Session Protocol boundary, per
// spec.md §7: "filesystem errors are caught at the boundary of the
// Session Protocol and mapped once".
func FromFSError(path string, err error) Outcome {
	if err == nil {
		return Ready(nil)
	}
	var errno syscall.Errno
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Failure(CodeNotFound, path+": no such file or directory")
	case errors.Is(err, fs.ErrPermission):
		return Failure(CodeAccessDenied, path+": permission denied")
	case errors.As(err, &errno):
		return Failure(CodeIOError, path+": "+errno.Error())
	default:
		return Failure(CodeIOError, path+": "+err.Error())
	}
}
