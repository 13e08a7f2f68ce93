//go:build linux

package vmbuf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestAppendGrowth(t *testing.T) {
	var b Buffer
	if err := b.Init(PageSize); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer b.Free()

	var initial = b.Capacity()
	var want []byte
	for i := 0; i < 300; i++ {
		var chunk = bytes.Repeat([]byte{byte('a' + i%26)}, 17+i%61)
		want = append(want, chunk...)
		if _, err := b.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("contents differ after %d bytes", len(want))
	}
	var capacity = b.Capacity()
	if capacity%initial != 0 {
		t.Fatalf("capacity %d not a multiple of %d", capacity, initial)
	}
	var ratio = capacity / initial
	if ratio&(ratio-1) != 0 {
		t.Fatalf("capacity ratio %d not a power of two", ratio)
	}
	if b.WLoc() >= capacity {
		t.Fatalf("write cursor %d not inside capacity %d", b.WLoc(), capacity)
	}
}

func TestAllocAlignment(t *testing.T) {
	var b Buffer
	if err := b.InitDefault(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer b.Free()

	b.WriteString("abc")
	var loc, err = b.Alloc(24)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if loc != 8 {
		t.Fatalf("alloc offset = %d, want 8", loc)
	}
	if b.WLoc() != 32 {
		t.Fatalf("write cursor = %d, want 32", b.WLoc())
	}

	// offsets survive growth
	copy(b.Slice(loc, 3), "xyz")
	if _, err = b.Alloc(10 * PageSize); err != nil {
		t.Fatalf("big alloc: %v", err)
	}
	if string(b.Slice(loc, 3)) != "xyz" {
		t.Fatalf("data at offset lost after growth")
	}

	b.Reset()
	b.WriteByte('a')
	if loc, err = b.AllocZero(16); err != nil || loc != 8 {
		t.Fatalf("zero alloc at %d: %v", loc, err)
	}
	for i, v := range b.Slice(loc, 16) {
		if v != 0 {
			t.Fatalf("byte %d of reused space = %#x", i, v)
		}
	}
}

func TestPrintfGrowsToFit(t *testing.T) {
	var b Buffer
	if err := b.Init(PageSize); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer b.Free()

	var long = strings.Repeat("x", 3*PageSize)
	if err := b.Printf("len=%d;%s;end", len(long), long); err != nil {
		t.Fatalf("printf: %v", err)
	}
	var want = "len=12288;" + long + ";end"
	if len(want) != 3*PageSize+14 {
		t.Fatalf("bad fixture")
	}
	if b.String() != want {
		t.Fatalf("printf output mismatch, got %d bytes", b.RAvail())
	}
	if err := b.Printf(" %s", "tail"); err != nil {
		t.Fatalf("printf: %v", err)
	}
	if !strings.HasSuffix(b.String(), ";end tail") {
		t.Fatalf("second printf lost")
	}
}

func TestRemoveLastIfAndRollback(t *testing.T) {
	var b Buffer
	b.InitDefault()
	defer b.Free()

	b.WriteString("a,b,")
	b.RemoveLastIf(',')
	b.RemoveLastIf(',')
	if b.String() != "a,b" {
		t.Fatalf("got %q", b.String())
	}
	var mark = b.WLoc()
	b.WriteString("garbage")
	b.Rollback(mark)
	if b.String() != "a,b" {
		t.Fatalf("rollback: got %q", b.String())
	}
	if err := b.CopyWithin(0, 1); err != nil {
		t.Fatalf("copy within: %v", err)
	}
	if b.String() != "a,ba" {
		t.Fatalf("copy within: got %q", b.String())
	}
}

func TestAppendTime(t *testing.T) {
	var b Buffer
	b.InitDefault()
	defer b.Free()

	var ts = time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	if err := b.AppendTime(ts, "2006-01-02 15:04:05"); err != nil {
		t.Fatalf("append time: %v", err)
	}
	if b.String() != "2024-03-09 07:05:01" {
		t.Fatalf("got %q", b.String())
	}
}

func socketPair(t *testing.T) (int, int) {
	var fds, err = unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func TestReadWriteFd(t *testing.T) {
	var a, c = socketPair(t)

	var out, in Buffer
	out.InitDefault()
	in.InitDefault()
	defer out.Free()
	defer in.Free()

	var payload = bytes.Repeat([]byte("0123456789"), 1000)
	out.Write(payload)
	var wr, err = out.WriteFd(a)
	if err != nil || wr != WRITE_DONE {
		t.Fatalf("write fd = %d, %v", wr, err)
	}
	if out.RAvail() != 0 {
		t.Fatalf("write left %d bytes", out.RAvail())
	}

	var rr ReadResult
	rr, err = in.ReadFd(c)
	if err != nil || rr != READ_AGAIN {
		t.Fatalf("read fd = %d, %v", rr, err)
	}
	if !bytes.Equal(in.Bytes(), payload) {
		t.Fatalf("read %d bytes, want %d", in.RAvail(), len(payload))
	}

	unix.Close(a)
	rr, err = in.ReadFd(c)
	if err != nil || rr != READ_CLOSED {
		t.Fatalf("read after close = %d, %v", rr, err)
	}
	unix.Close(c)
	rr, _ = in.ReadFd(c)
	if rr != READ_ERROR {
		t.Fatalf("read on closed fd = %d", rr)
	}
}

func TestWriteFdWouldBlock(t *testing.T) {
	var a, c = socketPair(t)
	defer unix.Close(a)
	defer unix.Close(c)

	var out Buffer
	out.Init(8 << 20)
	defer out.Free()
	out.Write(make([]byte, 8<<20))

	var wr, err = out.WriteFd(a)
	if err != nil {
		t.Fatalf("write fd: %v", err)
	}
	if wr != WRITE_AGAIN {
		t.Fatalf("expected would-block on a full socket, got %d", wr)
	}
	if out.RLoc() == 0 {
		t.Fatalf("nothing was written before blocking")
	}
}

func TestFileBacked(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "data.bin")
	var b Buffer
	if err := b.Create(path, PageSize); err != nil {
		t.Fatalf("create: %v", err)
	}
	var payload = bytes.Repeat([]byte("file-backed "), 1000)
	if _, err := b.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := b.Free(); err != nil {
		t.Fatalf("free: %v", err)
	}

	var got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("file holds %d bytes, want %d", len(got), len(payload))
	}

	var loaded Buffer
	if err = loaded.Load(path, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	defer loaded.Free()
	if !bytes.Equal(loaded.Bytes(), payload) {
		t.Fatalf("loaded contents differ")
	}
}

func TestCreateTemp(t *testing.T) {
	var b Buffer
	if err := b.CreateTemp(100); err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer b.Free()
	if !b.FileBacked() || b.Fd() < 0 {
		t.Fatalf("temp buffer not file backed")
	}
	b.WriteString("hello")
	if err := b.FreeMost(); err != nil {
		t.Fatalf("free most: %v", err)
	}
	if b.RAvail() != 0 || b.Capacity() != PageSize {
		t.Fatalf("free most left %d bytes, capacity %d", b.RAvail(), b.Capacity())
	}
}
