package session

import (
	"os"
)

// LocalFS is the default Backend: the backing filesystem is the local
// disk under the process's normal permissions, grounded on the
// teacher's local backend's direct os.* calls (spec.md §1 names the
// backing filesystem as an external collaborator; this is the
// simplest concrete one).
type LocalFS struct{}

var _ Backend = LocalFS{}

func (LocalFS) Open(path string, flags int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Size: fi.Size(), Mode: fi.Mode(), ModTime: fi.ModTime().Unix(), IsDir: fi.IsDir()}, nil
}

func (LocalFS) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

func (LocalFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (LocalFS) Remove(path string) error {
	return os.Remove(path)
}

func (LocalFS) RemoveDir(path string) error {
	return os.Remove(path)
}

func (LocalFS) Chmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}
