//go:build linux

// Package ringbuf implements a fixed-capacity circular buffer whose backing
// pages are mapped twice, back to back, in virtual memory. Any window of up to
// capacity bytes starting at the read or write cursor is therefore contiguous
// and never needs to be split at the wrap point.
//
// This is the only package in the module that manipulates raw memory. Values
// written with Put must not contain Go pointers.
package ringbuf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const SHM_DIR = "/dev/shm"

var PageSize = os.Getpagesize()

var (
	ErrorTooLarge   = errors.New("ringbuf: write larger than capacity")
	ErrorShortRead  = errors.New("ringbuf: not enough data")
	ErrorClosed     = errors.New("ringbuf: buffer closed")
	ErrorBadControl = errors.New("ringbuf: control page does not match")
	ErrorHeaderSize = errors.New("ringbuf: user header does not fit the control page")
)

// cursors is laid out identically in memory for the in-process ring and in
// the control page of a persistent ring.
type cursors struct {
	capacity uint64
	avail    uint64
	readLoc  uint64
	writeLoc uint64
}

type Ring struct {
	base  unsafe.Pointer
	buf   []byte
	cur   *cursors
	local cursors
	fd    int
	ctl   []byte
}

func roundToPage(n int) int {
	if n <= 0 {
		return PageSize
	}
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// New creates an anonymous ring of at least size bytes backed by an
// unlinked file in /dev/shm.
func New(size int) (*Ring, error) {
	size = roundToPage(size)
	var fd, err = tempFd()
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ringbuf: ftruncate: %w", err)
	}
	var r = &Ring{fd: -1}
	if err = r.mapDouble(fd, 0, size); err != nil {
		return nil, err
	}
	r.cur = &r.local
	r.cur.capacity = uint64(size)
	r.Reset()
	return r, nil
}

func tempFd() (int, error) {
	var dir = SHM_DIR
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		dir = os.TempDir()
	}
	var path = filepath.Join(dir, "ringbuf-"+uuid.NewString())
	var fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if err != nil {
		return -1, fmt.Errorf("ringbuf: create %s: %w", path, err)
	}
	if err = unix.Unlink(path); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("ringbuf: unlink %s: %w", path, err)
	}
	return fd, nil
}

// mapDouble reserves 2*size bytes of address space and maps the same file
// range into both halves.
func (r *Ring) mapDouble(fd int, offset int64, size int) error {
	var base, err = unix.MmapPtr(-1, 0, nil, uintptr(2*size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("ringbuf: reserve: %w", err)
	}
	for i := 0; i < 2; i++ {
		var want = unsafe.Add(base, i*size)
		var got unsafe.Pointer
		got, err = unix.MmapPtr(fd, offset, want, uintptr(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_FIXED|unix.MAP_SHARED)
		if err == nil && got != want {
			err = unix.EINVAL
		}
		if err != nil {
			unix.MunmapPtr(base, uintptr(2*size))
			return fmt.Errorf("ringbuf: map half %d: %w", i, err)
		}
	}
	r.base = base
	r.buf = unsafe.Slice((*byte)(base), 2*size)
	return nil
}

func (r *Ring) Close() error {
	if r.base == nil {
		return nil
	}
	var err = unix.MunmapPtr(r.base, uintptr(len(r.buf)))
	r.base, r.buf = nil, nil
	if r.ctl != nil {
		if cerr := unix.Munmap(r.ctl[:cap(r.ctl)]); err == nil {
			err = cerr
		}
		r.ctl = nil
		r.cur = &r.local
	}
	if r.fd >= 0 {
		if cerr := unix.Close(r.fd); err == nil {
			err = cerr
		}
		r.fd = -1
	}
	return err
}

func (r *Ring) Reset() {
	r.cur.avail = r.cur.capacity
	r.cur.readLoc = 0
	r.cur.writeLoc = 0
}

func (r *Ring) Capacity() int {
	return int(r.cur.capacity)
}

// Avail is the number of bytes that can be written without overwriting.
func (r *Ring) Avail() int {
	return int(r.cur.avail)
}

// Len is the number of unread bytes.
func (r *Ring) Len() int {
	return int(r.cur.capacity - r.cur.avail)
}

func (r *Ring) Empty() bool {
	return r.cur.avail == r.cur.capacity
}

func (r *Ring) Full() bool {
	return r.cur.avail == 0
}

// WBuf is the contiguous free space starting at the write cursor.
func (r *Ring) WBuf() []byte {
	return r.buf[r.cur.writeLoc : r.cur.writeLoc+r.cur.avail]
}

// RBuf is the contiguous unread data starting at the read cursor.
func (r *Ring) RBuf() []byte {
	return r.buf[r.cur.readLoc:r.cur.writeLoc]
}

func (r *Ring) WSeek(n int) {
	r.cur.avail -= uint64(n)
	r.cur.writeLoc += uint64(n)
}

// RSeek consumes n bytes. Both cursors fold back by capacity once the read
// cursor passes the end of the first mapping.
func (r *Ring) RSeek(n int) {
	r.cur.avail += uint64(n)
	r.cur.readLoc += uint64(n)
	if r.cur.readLoc >= r.cur.capacity {
		r.cur.readLoc -= r.cur.capacity
		r.cur.writeLoc -= r.cur.capacity
	}
}

// Write appends p, dropping the oldest bytes when there is not enough room.
func (r *Ring) Write(p []byte) (int, error) {
	if r.base == nil {
		return 0, ErrorClosed
	}
	if uint64(len(p)) > r.cur.capacity {
		return 0, ErrorTooLarge
	}
	if uint64(len(p)) > r.cur.avail {
		r.RSeek(len(p) - int(r.cur.avail))
	}
	copy(r.buf[r.cur.writeLoc:], p)
	r.WSeek(len(p))
	return len(p), nil
}

// Peek copies up to len(p) unread bytes without consuming them.
func (r *Ring) Peek(p []byte) int {
	return copy(p, r.RBuf())
}

// Read copies and consumes up to len(p) bytes.
func (r *Ring) Read(p []byte) (int, error) {
	if r.base == nil {
		return 0, ErrorClosed
	}
	var n = copy(p, r.RBuf())
	r.RSeek(n)
	return n, nil
}

func valueBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// Put writes v, dropping the oldest element when the ring is full. Values
// larger than the capacity are rejected with ErrorTooLarge.
func Put[T any](r *Ring, v T) error {
	if r.base == nil {
		return ErrorClosed
	}
	var b = valueBytes(&v)
	if uint64(len(b)) > r.cur.capacity {
		return ErrorTooLarge
	}
	if uint64(len(b)) > r.cur.avail {
		// whole elements go, so typed reads stay aligned
		var drop = len(b)
		if drop > r.Len() {
			drop = r.Len()
		}
		r.RSeek(drop)
	}
	copy(r.buf[r.cur.writeLoc:], b)
	r.WSeek(len(b))
	return nil
}

// PeekValue returns the oldest element without consuming it.
func PeekValue[T any](r *Ring) (T, error) {
	var v T
	if r.base == nil {
		return v, ErrorClosed
	}
	var b = valueBytes(&v)
	if r.Len() < len(b) {
		return v, ErrorShortRead
	}
	copy(b, r.buf[r.cur.readLoc:])
	return v, nil
}

// Pop consumes the oldest element.
func Pop[T any](r *Ring) (T, error) {
	var v, err = PeekValue[T](r)
	if err != nil {
		return v, err
	}
	r.RSeek(int(unsafe.Sizeof(v)))
	return v, nil
}

func NumElements[T any](r *Ring) int {
	var v T
	return r.Len() / int(unsafe.Sizeof(v))
}
