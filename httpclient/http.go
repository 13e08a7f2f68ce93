//go:build linux

package httpclient

import (
	"bytes"
	"strconv"

	"github.com/gotcp/reactor/internal/httpproto"
)

const MAX_CHUNK_SIZE = 1 << 20

type framing int

const (
	framingPending framing = iota
	framingUntilClose
	framingLength
	framingChunked
	framingEmpty
)

// HTTP is the HTTP/1.1 response framer: Content-Length, chunked and
// read-until-close bodies.
type HTTP struct {
	c          *Client
	framing    framing
	eoh        int
	chunkStart int
	chunkEnd   int
	length     int
	status     int
}

func NewHTTP(c *Client) Proto {
	return &HTTP{c: c}
}

func (h *HTTP) Prepare() {
	h.framing = framingPending
	h.eoh, h.chunkStart, h.chunkEnd, h.length = 0, 0, 0, 0
	h.status = 0
}

func (h *HTTP) OnError(err error) {}

func (h *HTTP) OnClose() error {
	if h.framing == framingUntilClose {
		return nil
	}
	return ErrorIncomplete
}

// StatusCode of the response, 0 before the status line was parsed.
func (h *HTTP) StatusCode() int {
	return h.status
}

// Chunked reports whether the response used chunked transfer coding.
func (h *HTTP) Chunked() bool {
	return h.framing == framingChunked
}

// HeaderValue looks up a response header.
func (h *HTTP) HeaderValue(name string) []byte {
	if h.eoh == 0 {
		return nil
	}
	return httpproto.Lookup(h.c.Inbuf.Slice(0, h.eoh-len(httpproto.CRLFCRLF)), name)
}

// parseHeader runs once the header terminator is in Inbuf.
func (h *HTTP) parseHeader(head []byte) error {
	var line = httpproto.FirstLine(head)
	h.status = httpproto.StatusCode(line)
	if h.status == 0 {
		return ErrorBadStatusLine
	}
	if conn := httpproto.Lookup(head, "Connection"); conn != nil {
		h.c.Persistent = !httpproto.HasPrefixFold(conn, "close")
	} else if bytes.HasPrefix(line, []byte("HTTP/1.0")) {
		h.c.Persistent = false
	}
	return nil
}

// ReadContent frames the response.
func (h *HTTP) ReadContent() (bool, error) {
	var in = &h.c.Inbuf
	if h.framing == framingPending {
		var data = in.Written()
		var i = bytes.Index(data, httpproto.CRLFCRLF)
		if i < 0 {
			return true, nil
		}
		h.eoh = i + len(httpproto.CRLFCRLF)
		h.chunkStart = h.eoh
		var head = data[:i]
		if err := h.parseHeader(head); err != nil {
			h.framing = framingEmpty
			return false, err
		}
		if h.status == 204 || h.status == 304 {
			h.framing = framingEmpty
			return false, nil
		}
		if cl := httpproto.Lookup(head, "Content-Length"); cl != nil {
			var n, err = strconv.Atoi(string(cl))
			if err != nil || n < 0 {
				h.framing = framingEmpty
				return false, ErrorBadFraming
			}
			h.framing = framingLength
			h.chunkEnd = h.eoh + n
		} else if te := httpproto.Lookup(head, "Transfer-Encoding"); te != nil && httpproto.HasPrefixFold(te, "chunked") {
			h.framing = framingChunked
			h.chunkEnd = 0
		} else {
			h.framing = framingUntilClose
		}
	}
	switch h.framing {
	case framingUntilClose:
		return true, nil
	case framingLength:
		return in.WLoc() < h.chunkEnd, nil
	case framingChunked:
		return h.handleChunks()
	}
	return false, nil
}

// parseChunkSize reads the hex size line at off. It returns the size and the
// offset of the chunk data, or ok false when the line is not complete yet.
func parseChunkSize(data []byte, off int) (size int, body int, ok bool, err error) {
	var j = bytes.Index(data[off:], httpproto.CRLF)
	if j < 0 {
		return 0, 0, false, nil
	}
	var line = data[off : off+j]
	if k := bytes.IndexByte(line, ';'); k >= 0 {
		line = line[:k]
	}
	var n, perr = strconv.ParseUint(string(bytes.TrimSpace(line)), 16, 32)
	if perr != nil || n > MAX_CHUNK_SIZE {
		return 0, 0, false, ErrorBadChunk
	}
	return int(n), off + j + len(httpproto.CRLF), true, nil
}

// handleChunks advances over every complete chunk. chunkEnd is zero while the
// size line of the chunk at chunkStart has not been parsed.
func (h *HTTP) handleChunks() (bool, error) {
	var in = &h.c.Inbuf
	for {
		if h.chunkEnd == 0 {
			var size, body, ok, err = parseChunkSize(in.Written(), h.chunkStart)
			if err != nil {
				return false, err
			}
			if !ok {
				return true, nil
			}
			h.chunkStart = body
			h.chunkEnd = body + size + len(httpproto.CRLF)
		}
		if h.chunkEnd > in.WLoc() {
			return true, nil
		}
		if h.chunkStart+len(httpproto.CRLF) == h.chunkEnd {
			return false, nil
		}
		h.chunkStart = h.chunkEnd
		h.chunkEnd = 0
	}
}

// Chunk locates one piece of the response body inside Inbuf.
type Chunk struct {
	Loc  int
	Size int
}

// NextChunk moves ch to the next piece of the body. Start with a zero Chunk;
// it returns false when the body is exhausted.
func (h *HTTP) NextChunk(ch *Chunk) bool {
	var wloc = h.c.Inbuf.WLoc()
	switch h.framing {
	case framingUntilClose, framingLength:
		if ch.Loc != 0 {
			return false
		}
		ch.Loc = h.eoh
		if h.framing == framingLength {
			ch.Size = h.chunkEnd - h.eoh
		} else {
			ch.Size = wloc - h.eoh
		}
		return true
	case framingChunked:
		var loc = h.eoh
		if ch.Loc != 0 {
			loc = ch.Loc + ch.Size + len(httpproto.CRLF)
		}
		if loc >= wloc {
			return false
		}
		var size, body, ok, err = parseChunkSize(h.c.Inbuf.Written(), loc)
		if !ok || err != nil || body+size > wloc {
			return false
		}
		ch.Loc, ch.Size = body, size
		return size != 0
	}
	return false
}

func (h *HTTP) ChunkBytes(ch *Chunk) []byte {
	return h.c.Inbuf.Slice(ch.Loc, ch.Size)
}

// AppendBody appends the decoded response body to dst.
func (h *HTTP) AppendBody(dst []byte) []byte {
	var ch Chunk
	for h.NextChunk(&ch) {
		dst = append(dst, h.ChunkBytes(&ch)...)
	}
	return dst
}
