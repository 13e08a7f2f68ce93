// Package httpproto holds the header scanning shared by the HTTP server and
// client state machines. All functions work on raw header blocks without
// copying.
package httpproto

import (
	"bytes"
	"strconv"
)

var (
	CRLF     = []byte("\r\n")
	CRLFCRLF = []byte("\r\n\r\n")
)

// HasPrefixFold reports whether b starts with prefix, ignoring ASCII case.
func HasPrefixFold(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && bytes.EqualFold(b[:len(prefix)], []byte(prefix))
}

// FirstLine returns the request or status line of head.
func FirstLine(head []byte) []byte {
	if i := bytes.Index(head, CRLF); i >= 0 {
		return head[:i]
	}
	return head
}

// Lookup returns the trimmed value of the first header called name, or nil.
// head starts with the request or status line, which is skipped.
func Lookup(head []byte, name string) []byte {
	var i = bytes.Index(head, CRLF)
	if i < 0 {
		return nil
	}
	return LookupFields(head[i+len(CRLF):], name)
}

// LookupFields is Lookup over a block that holds header fields only.
func LookupFields(fields []byte, name string) []byte {
	var rest = fields
	for len(rest) > 0 {
		var line = rest
		if j := bytes.Index(rest, CRLF); j >= 0 {
			line, rest = rest[:j], rest[j+len(CRLF):]
		} else {
			rest = nil
		}
		var colon = bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		if bytes.EqualFold(bytes.TrimSpace(line[:colon]), []byte(name)) {
			return bytes.TrimSpace(line[colon+1:])
		}
	}
	return nil
}

// StatusCode parses "HTTP/x.y NNN ..." and returns 0 when the line is not a
// status line.
func StatusCode(line []byte) int {
	if !bytes.HasPrefix(line, []byte("HTTP/")) {
		return 0
	}
	var sp = bytes.IndexByte(line, ' ')
	if sp < 0 || len(line) < sp+4 {
		return 0
	}
	var code, err = strconv.Atoi(string(line[sp+1 : sp+4]))
	if err != nil {
		return 0
	}
	return code
}
