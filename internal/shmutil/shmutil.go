// Package shmutil creates and maps POSIX shared-memory objects the same
// way glibc's shm_open does on Linux: a plain file under /dev/shm. This
// lets the video and audio channels manipulate the region as an ordinary
// mmapped []byte instead of crossing into cgo, while remaining
// byte-for-byte compatible with a C writer that calls shm_open/mmap
// against the same name.
package shmutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// Region is a mapped shared-memory segment.
type Region struct {
	Name string
	Data []byte
	file *os.File
}

func resolvePath(name string) string {
	trimmed := strings.TrimPrefix(name, "/")
	return filepath.Join(shmDir, trimmed)
}

// Create unlinks any stale region of the same name, then creates and maps
// a fresh one of exactly size bytes, zero-initialized.
func Create(name string, size int) (*Region, error) {
	path := resolvePath(name)
	_ = os.Remove(path)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmutil: create %s: %w", name, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmutil: truncate %s: %w", name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmutil: mmap %s: %w", name, err)
	}

	return &Region{Name: name, Data: data, file: f}, nil
}

// Open maps an existing region for reading and writing without creating
// or truncating it. size must match the size the creator used.
func Open(name string, size int) (*Region, error) {
	path := resolvePath(name)

	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmutil: open %s: %w", name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmutil: mmap %s: %w", name, err)
	}

	return &Region{Name: name, Data: data, file: f}, nil
}

// Close unmaps and closes the backing file descriptor. It does not
// unlink the name; call Unlink for that.
func (r *Region) Close() error {
	if r.Data != nil {
		if err := unix.Munmap(r.Data); err != nil {
			return err
		}
		r.Data = nil
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Unlink removes the backing /dev/shm entry. The owning process should
// call this on shutdown so no stale region survives a restart.
func Unlink(name string) error {
	err := os.Remove(resolvePath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
