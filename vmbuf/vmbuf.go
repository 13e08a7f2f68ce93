//go:build linux

// Package vmbuf implements a growable byte buffer backed by virtual memory.
//
// The storage is either an anonymous mapping or a shared file mapping, grown
// by doubling with mremap so that existing contents are never copied by the
// process. A Buffer carries independent read and write cursors with
// read <= write <= capacity.
package vmbuf

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	DEFAULT_INITIAL_SIZE = 4096
	ALLOC_ALIGNMENT      = 8
)

var PageSize = os.Getpagesize()

var (
	ErrorNotInitialized = errors.New("vmbuf: buffer not initialized")
	ErrorSeekRange      = errors.New("vmbuf: seek out of range")
	ErrorNotFileBacked  = errors.New("vmbuf: buffer is not file backed")
)

type ReadResult int

const (
	READ_ERROR  ReadResult = -1
	READ_CLOSED ReadResult = 0
	READ_AGAIN  ReadResult = 1
)

type WriteResult int

const (
	WRITE_ERROR WriteResult = -1
	WRITE_AGAIN WriteResult = 0
	WRITE_DONE  WriteResult = 1
)

// Buffer is a growable region with separate read and write cursors. The zero
// value is an empty, unmapped buffer; call Init or one of the file
// constructors before use. Offsets returned by Alloc stay valid across
// growth, slices obtained before growth do not.
type Buffer struct {
	data     []byte
	fd       int
	file     bool
	path     string
	readLoc  int
	writeLoc int
}

func pageAlign(n int) int {
	if n <= 0 {
		return PageSize
	}
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// Init prepares an anonymous buffer of at least size bytes. An already
// initialized buffer is reset and grown if it is smaller than size.
func (b *Buffer) Init(size int) error {
	size = pageAlign(size)
	if b.data != nil {
		b.Reset()
		if len(b.data) < size {
			return b.resizeTo(size)
		}
		return nil
	}
	var data, err = unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("vmbuf: mmap %d: %w", size, err)
	}
	b.data = data
	b.fd, b.file = -1, false
	b.readLoc, b.writeLoc = 0, 0
	return nil
}

// InitDefault is Init with DEFAULT_INITIAL_SIZE.
func (b *Buffer) InitDefault() error {
	return b.Init(DEFAULT_INITIAL_SIZE)
}

func (b *Buffer) resizeTo(size int) error {
	if b.data == nil {
		return ErrorNotInitialized
	}
	if b.file {
		if err := unix.Ftruncate(b.fd, int64(size)); err != nil {
			return fmt.Errorf("vmbuf: ftruncate %s: %w", b.path, err)
		}
	}
	var data, err = unix.Mremap(b.data, size, unix.MREMAP_MAYMOVE)
	if err != nil {
		return fmt.Errorf("vmbuf: mremap %d: %w", size, err)
	}
	b.data = data
	return nil
}

func (b *Buffer) resizeNoCheck(n int) error {
	var capacity = len(b.data)
	if capacity == 0 {
		capacity = PageSize
	}
	for capacity-b.writeLoc <= n {
		capacity <<= 1
	}
	return b.resizeTo(capacity)
}

func (b *Buffer) resizeIfLess(n int) error {
	if len(b.data)-b.writeLoc <= n {
		return b.resizeNoCheck(n)
	}
	return nil
}

func (b *Buffer) resizeIfFull() error {
	if b.writeLoc == len(b.data) {
		return b.resizeTo(len(b.data) << 1)
	}
	return nil
}

// Reserve makes sure at least n bytes can be written without growing.
func (b *Buffer) Reserve(n int) error {
	if b.data == nil {
		return ErrorNotInitialized
	}
	return b.resizeIfLess(n)
}

func (b *Buffer) Reset() {
	b.readLoc, b.writeLoc = 0, 0
}

func (b *Buffer) Initialized() bool {
	return b.data != nil
}

func (b *Buffer) Capacity() int {
	return len(b.data)
}

func (b *Buffer) WLoc() int {
	return b.writeLoc
}

func (b *Buffer) RLoc() int {
	return b.readLoc
}

func (b *Buffer) WAvail() int {
	return len(b.data) - b.writeLoc
}

func (b *Buffer) RAvail() int {
	return b.writeLoc - b.readLoc
}

// Data is the whole mapped region.
func (b *Buffer) Data() []byte {
	return b.data
}

// Written returns everything between offset zero and the write cursor.
func (b *Buffer) Written() []byte {
	return b.data[:b.writeLoc]
}

// Bytes returns the unread part, from the read cursor to the write cursor.
func (b *Buffer) Bytes() []byte {
	return b.data[b.readLoc:b.writeLoc]
}

// Slice returns the bytes at [off, off+n).
func (b *Buffer) Slice(off, n int) []byte {
	return b.data[off : off+n]
}

func (b *Buffer) String() string {
	return string(b.data[b.readLoc:b.writeLoc])
}

// WSeek advances the write cursor by n and grows when the buffer fills up.
func (b *Buffer) WSeek(n int) error {
	if b.writeLoc+n > len(b.data) || b.writeLoc+n < b.readLoc {
		return ErrorSeekRange
	}
	b.writeLoc += n
	return b.resizeIfFull()
}

func (b *Buffer) RSeek(n int) error {
	if b.readLoc+n > b.writeLoc || b.readLoc+n < 0 {
		return ErrorSeekRange
	}
	b.readLoc += n
	return nil
}

// Rollback moves the write cursor back to off.
func (b *Buffer) Rollback(off int) {
	if off < b.readLoc {
		off = b.readLoc
	}
	if off < b.writeLoc {
		b.writeLoc = off
	}
}

func (b *Buffer) RewindRead() {
	b.readLoc = 0
}

// Alloc reserves n bytes at the next 8-byte aligned write position and
// returns their offset.
func (b *Buffer) Alloc(n int) (int, error) {
	if b.data == nil {
		return 0, ErrorNotInitialized
	}
	b.writeLoc = (b.writeLoc + ALLOC_ALIGNMENT - 1) &^ (ALLOC_ALIGNMENT - 1)
	var loc = b.writeLoc
	if err := b.resizeIfLess(n); err != nil {
		return 0, err
	}
	if err := b.WSeek(n); err != nil {
		return 0, err
	}
	return loc, nil
}

func (b *Buffer) AllocZero(n int) (int, error) {
	var loc, err = b.Alloc(n)
	if err != nil {
		return 0, err
	}
	clear(b.data[loc : loc+n])
	return loc, nil
}

// Write appends p. It never returns a short count without an error.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.data == nil {
		return 0, ErrorNotInitialized
	}
	if err := b.resizeIfLess(len(p)); err != nil {
		return 0, err
	}
	copy(b.data[b.writeLoc:], p)
	return len(p), b.WSeek(len(p))
}

func (b *Buffer) WriteString(s string) (int, error) {
	if b.data == nil {
		return 0, ErrorNotInitialized
	}
	if err := b.resizeIfLess(len(s)); err != nil {
		return 0, err
	}
	copy(b.data[b.writeLoc:], s)
	return len(s), b.WSeek(len(s))
}

func (b *Buffer) WriteByte(c byte) error {
	var one = [1]byte{c}
	var _, err = b.Write(one[:])
	return err
}

// Printf appends formatted output. The text is formatted into the free space
// first; when it does not fit the buffer grows to hold it exactly.
func (b *Buffer) Printf(format string, args ...any) error {
	if b.data == nil {
		return ErrorNotInitialized
	}
	var avail = b.WAvail()
	var out = fmt.Appendf(b.data[b.writeLoc:b.writeLoc:len(b.data)], format, args...)
	var n = len(out)
	if n <= avail {
		return b.WSeek(n)
	}
	if err := b.resizeNoCheck(n); err != nil {
		return err
	}
	copy(b.data[b.writeLoc:], out)
	return b.WSeek(n)
}

// AppendTime appends t formatted with a time layout.
func (b *Buffer) AppendTime(t time.Time, layout string) error {
	if b.data == nil {
		return ErrorNotInitialized
	}
	var avail = b.WAvail()
	var out = t.AppendFormat(b.data[b.writeLoc:b.writeLoc:len(b.data)], layout)
	if len(out) > avail {
		if err := b.resizeNoCheck(len(out)); err != nil {
			return err
		}
		copy(b.data[b.writeLoc:], out)
	}
	return b.WSeek(len(out))
}

// CopyWithin appends n bytes taken from offset off of the same buffer.
func (b *Buffer) CopyWithin(off, n int) error {
	if off < 0 || off+n > b.writeLoc {
		return ErrorSeekRange
	}
	if err := b.resizeIfLess(n); err != nil {
		return err
	}
	copy(b.data[b.writeLoc:], b.data[off:off+n])
	return b.WSeek(n)
}

// RemoveLastIf drops the last written byte when it equals c.
func (b *Buffer) RemoveLastIf(c byte) {
	if b.writeLoc > b.readLoc && b.data[b.writeLoc-1] == c {
		b.writeLoc--
	}
}

// ReadFd reads from a non-blocking descriptor until it would block, hits end
// of stream or fails, growing the buffer as needed.
func (b *Buffer) ReadFd(fd int) (ReadResult, error) {
	if b.data == nil {
		return READ_ERROR, ErrorNotInitialized
	}
	for {
		var n, err = unix.Read(fd, b.data[b.writeLoc:])
		if n > 0 {
			if err = b.WSeek(n); err != nil {
				return READ_ERROR, err
			}
			continue
		}
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return READ_AGAIN, nil
			case unix.EINTR:
				continue
			}
			return READ_ERROR, err
		}
		return READ_CLOSED, nil
	}
}

// WriteFd drains the bytes between the read and write cursors into fd.
func (b *Buffer) WriteFd(fd int) (WriteResult, error) {
	for b.readLoc < b.writeLoc {
		var n, err = unix.Write(fd, b.data[b.readLoc:b.writeLoc])
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return WRITE_AGAIN, nil
			case unix.EINTR:
				continue
			}
			return WRITE_ERROR, err
		}
		if n == 0 {
			return WRITE_ERROR, unix.ENODATA
		}
		b.readLoc += n
	}
	return WRITE_DONE, nil
}

// Free releases the mapping and, for file-backed buffers, the descriptor.
func (b *Buffer) Free() error {
	var err error
	if b.data != nil {
		err = unix.Munmap(b.data)
		b.data = nil
	}
	if b.file {
		if cerr := unix.Close(b.fd); err == nil {
			err = cerr
		}
	}
	b.fd, b.file = -1, false
	b.path = ""
	b.readLoc, b.writeLoc = 0, 0
	return err
}

// FreeMost shrinks the mapping back to a single page, keeping the buffer
// usable.
func (b *Buffer) FreeMost() error {
	if b.data == nil {
		return nil
	}
	b.Reset()
	if len(b.data) == PageSize {
		return nil
	}
	return b.resizeTo(PageSize)
}
