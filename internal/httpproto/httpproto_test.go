package httpproto

import (
	"testing"
)

func TestLookup(t *testing.T) {
	var head = []byte("GET / HTTP/1.1\r\nHost: x\r\ncontent-length:  42 \r\nbroken line\r\nConnection: close")
	if v := string(Lookup(head, "Content-Length")); v != "42" {
		t.Fatalf("Content-Length = %q", v)
	}
	if v := string(Lookup(head, "connection")); v != "close" {
		t.Fatalf("Connection = %q", v)
	}
	if Lookup(head, "Expect") != nil {
		t.Fatalf("missing header found")
	}
	if Lookup([]byte("GET / HTTP/1.1"), "Host") != nil {
		t.Fatalf("header found in a bare request line")
	}
}

func TestStatusCode(t *testing.T) {
	var cases = map[string]int{
		"HTTP/1.1 200 OK":         200,
		"HTTP/1.0 304 Not Mod":    304,
		"HTTP/1.1 20":             0,
		"ICY 200 OK":              0,
		"HTTP/1.1 abc Bad Status": 0,
	}
	for line, want := range cases {
		if got := StatusCode([]byte(line)); got != want {
			t.Fatalf("StatusCode(%q) = %d, want %d", line, got, want)
		}
	}
}
