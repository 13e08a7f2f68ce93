//go:build linux

package ringbuf

import (
	"bytes"
	"path/filepath"
	"testing"
)

type sample struct {
	Seq   uint64
	Value int32
	Flags uint16
	_     uint16
}

func TestCapacityRoundsToPage(t *testing.T) {
	var r, err = New(1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer r.Close()
	if r.Capacity() != PageSize {
		t.Fatalf("capacity = %d, want %d", r.Capacity(), PageSize)
	}
	if !r.Empty() || r.Full() || r.Avail() != PageSize {
		t.Fatalf("fresh ring state wrong: avail %d", r.Avail())
	}
}

func TestDoubleMappingAliases(t *testing.T) {
	var r, err = New(PageSize)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer r.Close()
	r.buf[10] = 0xAB
	if r.buf[PageSize+10] != 0xAB {
		t.Fatalf("second mapping does not alias the first")
	}
	r.buf[2*PageSize-1] = 0xCD
	if r.buf[PageSize-1] != 0xCD {
		t.Fatalf("first mapping does not alias the second")
	}
}

func TestValueRoundTrip(t *testing.T) {
	var r, err = New(PageSize)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer r.Close()

	const batch = 100
	var total = 3 * r.Capacity() / 16
	var next, expect uint64
	for next < uint64(total) {
		for i := 0; i < batch; i++ {
			Put(r, sample{Seq: next, Value: int32(next * 3), Flags: uint16(next)})
			next++
		}
		if r.Avail() < 0 || r.Avail() > r.Capacity() {
			t.Fatalf("avail out of range: %d", r.Avail())
		}
		for NumElements[sample](r) > 0 {
			var v, perr = Pop[sample](r)
			if perr != nil {
				t.Fatalf("pop: %v", perr)
			}
			if v.Seq != expect || v.Value != int32(expect*3) || v.Flags != uint16(expect) {
				t.Fatalf("got %+v, want seq %d", v, expect)
			}
			expect++
		}
	}
	if expect != next {
		t.Fatalf("read %d values, wrote %d", expect, next)
	}
	if !r.Empty() {
		t.Fatalf("ring not empty after draining")
	}
}

func TestOverwriteOldest(t *testing.T) {
	var r, err = New(PageSize)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer r.Close()

	var n = r.Capacity() / 8
	for i := 0; i < n+10; i++ {
		Put(r, uint64(i))
	}
	if !r.Full() {
		t.Fatalf("ring should be full")
	}
	var first, perr = PeekValue[uint64](r)
	if perr != nil {
		t.Fatalf("peek: %v", perr)
	}
	if first != 10 {
		t.Fatalf("oldest = %d, want 10", first)
	}
	if NumElements[uint64](r) != n {
		t.Fatalf("elements = %d, want %d", NumElements[uint64](r), n)
	}
}

func TestContiguousWindowAcrossWrap(t *testing.T) {
	var r, err = New(PageSize)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer r.Close()

	var pad = make([]byte, r.Capacity()-100)
	r.Write(pad)
	var sink = make([]byte, len(pad))
	r.Read(sink)

	var msg = bytes.Repeat([]byte("wrap!"), 60)
	if _, err = r.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.Equal(r.RBuf(), msg) {
		t.Fatalf("window across the wrap point is not contiguous")
	}
	var out = make([]byte, len(msg))
	var got, _ = r.Read(out)
	if got != len(msg) || !bytes.Equal(out, msg) {
		t.Fatalf("read %d bytes", got)
	}
	if r.cur.readLoc >= r.cur.capacity || r.cur.writeLoc-r.cur.readLoc > r.cur.capacity {
		t.Fatalf("cursors not folded: read %d write %d", r.cur.readLoc, r.cur.writeLoc)
	}
}

func TestWriteTooLarge(t *testing.T) {
	var r, err = New(PageSize)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer r.Close()
	if _, err = r.Write(make([]byte, r.Capacity()+1)); err != ErrorTooLarge {
		t.Fatalf("err = %v, want ErrorTooLarge", err)
	}
	if _, err = r.Write(make([]byte, r.Capacity())); err != nil {
		t.Fatalf("write full capacity: %v", err)
	}
	if !r.Full() {
		t.Fatalf("ring should be full")
	}
}

func TestPutRejectsOversizedValue(t *testing.T) {
	if PageSize != 4096 {
		t.Skipf("page size %d", PageSize)
	}
	var r, err = New(PageSize)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := uint64(0); i < 3; i++ {
		Put(r, i)
	}
	var big [8192]byte
	big[0] = 1
	if err = Put(r, big); err != ErrorTooLarge {
		t.Fatalf("err = %v, want ErrorTooLarge", err)
	}
	if r.Avail() != r.Capacity()-24 || NumElements[uint64](r) != 3 {
		t.Fatalf("rejected put moved the cursors: avail %d", r.Avail())
	}
	var page [4096]byte
	if err = Put(r, page); err != nil {
		t.Fatalf("put of exactly capacity: %v", err)
	}
	if !r.Full() || r.cur.writeLoc-r.cur.readLoc != r.cur.capacity {
		t.Fatalf("avail %d read %d write %d", r.Avail(), r.cur.readLoc, r.cur.writeLoc)
	}
	r.Close()
	if err = Put(r, uint64(1)); err != ErrorClosed {
		t.Fatalf("put after close = %v", err)
	}
	if _, err = Pop[uint64](r); err != ErrorClosed {
		t.Fatalf("pop after close = %v", err)
	}
}

func TestPersistentReopen(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "queue.ring")
	var r, err = Open(path, PageSize, 16)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	copy(r.Header(), "queue-v1")
	for i := uint64(0); i < 50; i++ {
		Put(r, i)
	}
	for i := 0; i < 20; i++ {
		Pop[uint64](r)
	}
	if err = r.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err = r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err = Open(path, PageSize, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()
	if !r.Persistent() {
		t.Fatalf("reopened ring not persistent")
	}
	if string(r.Header()[:8]) != "queue-v1" {
		t.Fatalf("header lost: %q", r.Header())
	}
	if NumElements[uint64](r) != 30 {
		t.Fatalf("elements = %d, want 30", NumElements[uint64](r))
	}
	var v, _ = Pop[uint64](r)
	if v != 20 {
		t.Fatalf("first element after reopen = %d, want 20", v)
	}

	if _, err = Open(path, 2*PageSize, 16); err == nil {
		t.Fatalf("opening with a different size should fail")
	}
}
