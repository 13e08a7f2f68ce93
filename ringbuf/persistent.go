//go:build linux

package ringbuf

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	CONTROL_MAGIC = 0x52494e4742554631 // "RINGBUF1"
	controlOffset = 8
	headerOffset  = controlOffset + int(unsafe.Sizeof(cursors{}))
)

// Open maps a persistent ring stored in the file at path. The first page of
// the file is a control page holding a magic number, the cursors and
// headerSize bytes of caller-defined header; the ring data follows. An
// existing file with matching geometry keeps its cursors and contents.
func Open(path string, size int, headerSize int) (*Ring, error) {
	if headerSize < 0 || headerSize > PageSize-headerOffset {
		return nil, ErrorHeaderSize
	}
	size = roundToPage(size)
	var fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, fmt.Errorf("ringbuf: open %s: %w", path, err)
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ringbuf: fstat %s: %w", path, err)
	}
	var total = int64(PageSize + size)
	var fresh = st.Size == 0
	if !fresh && st.Size != total {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrorBadControl, path, st.Size, total)
	}
	if fresh {
		if err = unix.Ftruncate(fd, total); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("ringbuf: ftruncate %s: %w", path, err)
		}
	}
	var ctl []byte
	if ctl, err = unix.Mmap(fd, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ringbuf: map control page: %w", err)
	}
	var magic = (*uint64)(unsafe.Pointer(&ctl[0]))
	var cur = (*cursors)(unsafe.Pointer(&ctl[controlOffset]))
	if !fresh && (*magic != CONTROL_MAGIC || cur.capacity != uint64(size)) {
		unix.Munmap(ctl)
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s", ErrorBadControl, path)
	}

	var r = &Ring{fd: fd, ctl: ctl}
	if err = r.mapDouble(fd, int64(PageSize), size); err != nil {
		unix.Munmap(ctl)
		unix.Close(fd)
		return nil, err
	}
	r.cur = cur
	if fresh {
		cur.capacity = uint64(size)
		r.Reset()
		*magic = CONTROL_MAGIC
	}
	r.ctl = ctl[:headerOffset+headerSize]
	return r, nil
}

// Header is the caller-defined part of the control page. It is nil for rings
// created with New.
func (r *Ring) Header() []byte {
	if r.ctl == nil {
		return nil
	}
	return r.ctl[headerOffset:]
}

// Persistent reports whether the ring is backed by a control page.
func (r *Ring) Persistent() bool {
	return r.ctl != nil
}

// Sync flushes the control page and the data pages of a persistent ring.
func (r *Ring) Sync() error {
	if r.ctl == nil {
		return nil
	}
	if err := unix.Msync(r.ctl[:cap(r.ctl)], unix.MS_SYNC); err != nil {
		return fmt.Errorf("ringbuf: msync control: %w", err)
	}
	if err := unix.Msync(r.buf[:r.cur.capacity], unix.MS_SYNC); err != nil {
		return fmt.Errorf("ringbuf: msync data: %w", err)
	}
	return nil
}
