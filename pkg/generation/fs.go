package generation

import (
	"os"
)

// FS is the set of filesystem operations the manager performs on the
// staging area. Every mutation is a single syscall so observers never see
// a half-applied change.
type FS interface {
	Mkdir(path string, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Chmod(path string, mode os.FileMode) error
	Lchown(path string, uid, gid int) error
	Readlink(path string) (string, error)
	Symlink(target, link string) error
	Rename(oldpath, newpath string) error
	Remove(path string) error
	RemoveAll(path string) error
	ReadDir(path string) ([]os.DirEntry, error)
}

// OSFS is FS on the host filesystem.
type OSFS struct{}

func (OSFS) Mkdir(path string, perm os.FileMode) error    { return os.Mkdir(path, perm) }
func (OSFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFS) Chmod(path string, mode os.FileMode) error    { return os.Chmod(path, mode) }
func (OSFS) Lchown(path string, uid, gid int) error       { return os.Lchown(path, uid, gid) }
func (OSFS) Readlink(path string) (string, error)         { return os.Readlink(path) }
func (OSFS) Symlink(target, link string) error            { return os.Symlink(target, link) }
func (OSFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (OSFS) Remove(path string) error                     { return os.Remove(path) }
func (OSFS) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (OSFS) ReadDir(path string) ([]os.DirEntry, error)   { return os.ReadDir(path) }
