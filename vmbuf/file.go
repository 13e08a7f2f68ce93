//go:build linux

package vmbuf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const SHM_DIR = "/dev/shm"

// Create backs the buffer with a new or truncated file at path. The file is
// grown with ftruncate and remapped as the buffer doubles; call Finalize to
// trim it to the written length.
func (b *Buffer) Create(path string, size int) error {
	var fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0644)
	if err != nil {
		return fmt.Errorf("vmbuf: open %s: %w", path, err)
	}
	if err = b.mapFile(fd, path, pageAlign(size), false); err != nil {
		unix.Close(fd)
		return err
	}
	return nil
}

// CreateTemp backs the buffer with an unlinked file in /dev/shm, or in the
// system temporary directory when /dev/shm is missing.
func (b *Buffer) CreateTemp(size int) error {
	var fd, err = TempFd()
	if err != nil {
		return err
	}
	if err = b.mapFile(fd, "", pageAlign(size), false); err != nil {
		unix.Close(fd)
		return err
	}
	return nil
}

// Load maps an existing file. The write cursor is placed at the end of the
// file contents. A read-only buffer cannot grow.
func (b *Buffer) Load(path string, readOnly bool) error {
	var flags = unix.O_RDWR
	if readOnly {
		flags = unix.O_RDONLY
	}
	var fd, err = unix.Open(path, flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("vmbuf: open %s: %w", path, err)
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return fmt.Errorf("vmbuf: fstat %s: %w", path, err)
	}
	var size = int(st.Size)
	var capacity = pageAlign(size)
	if !readOnly && capacity == size {
		capacity += PageSize
	}
	if err = b.mapFile(fd, path, capacity, readOnly); err != nil {
		unix.Close(fd)
		return err
	}
	b.writeLoc = size
	return nil
}

func (b *Buffer) mapFile(fd int, path string, size int, readOnly bool) error {
	if b.data != nil {
		if err := b.Free(); err != nil {
			return err
		}
	}
	var prot = unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return fmt.Errorf("vmbuf: ftruncate %s: %w", path, err)
		}
	}
	var data, err = unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("vmbuf: mmap %s: %w", path, err)
	}
	b.data = data
	b.fd, b.file = fd, true
	b.path = path
	b.readLoc, b.writeLoc = 0, 0
	return nil
}

// FileBacked reports whether the buffer lives in a file mapping.
func (b *Buffer) FileBacked() bool {
	return b.file
}

func (b *Buffer) Path() string {
	return b.path
}

// Fd returns the backing descriptor, -1 for anonymous buffers.
func (b *Buffer) Fd() int {
	if !b.file {
		return -1
	}
	return b.fd
}

// Finalize truncates the backing file to the write cursor. The buffer stays
// mapped.
func (b *Buffer) Finalize() error {
	if !b.file {
		return ErrorNotFileBacked
	}
	if err := unix.Ftruncate(b.fd, int64(b.writeLoc)); err != nil {
		return fmt.Errorf("vmbuf: finalize %s: %w", b.path, err)
	}
	return nil
}

// Sync flushes dirty pages of a file-backed buffer.
func (b *Buffer) Sync() error {
	if !b.file {
		return ErrorNotFileBacked
	}
	return unix.Msync(b.data, unix.MS_SYNC)
}

// TempFd opens an unlinked read-write file suitable for shared mappings.
func TempFd() (int, error) {
	var dir = SHM_DIR
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		dir = os.TempDir()
	}
	var path = filepath.Join(dir, "vmbuf-"+uuid.NewString())
	var fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if err != nil {
		return -1, fmt.Errorf("vmbuf: temp file %s: %w", path, err)
	}
	if err = unix.Unlink(path); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("vmbuf: unlink %s: %w", path, err)
	}
	return fd, nil
}
