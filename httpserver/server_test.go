//go:build linux

package httpserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gotcp/reactor"
	"github.com/sirupsen/logrus"
)

type testServer struct {
	w    *reactor.Worker
	srv  *Server
	acc  *reactor.Acceptor
	addr string
}

func newTestServer(t *testing.T, handler RequestHandler) *testServer {
	t.Helper()
	var log = logrus.New()
	log.SetOutput(io.Discard)
	var ep = reactor.New(5*time.Second, time.Second)
	ep.SetLogger(log)

	var srv, err = New(ep, handler)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var acc = reactor.NewAcceptor(ep, srv)
	if err = acc.Init(-1, 0, 16); err != nil {
		t.Fatalf("listen: %v", err)
	}
	var w *reactor.Worker
	if w, err = ep.NewWorker(); err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err = acc.InitPerThread(w); err != nil {
		t.Fatalf("InitPerThread: %v", err)
	}
	var port int
	if port, err = acc.Port(); err != nil {
		t.Fatalf("Port: %v", err)
	}
	t.Cleanup(func() {
		acc.Close()
		w.Close()
	})
	return &testServer{w: w, srv: srv, acc: acc, addr: fmt.Sprintf("127.0.0.1:%d", port)}
}

// drive polls the worker until the peer function returns.
func (ts *testServer) drive(t *testing.T, peer func() error) {
	t.Helper()
	var errc = make(chan error, 1)
	go func() {
		errc <- peer()
	}()
	var deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-errc:
			if err != nil {
				t.Fatal(err)
			}
			return
		default:
		}
		if err := ts.w.Poll(10); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
	t.Fatalf("peer did not finish")
}

func echoURI(w *reactor.Worker, c *Conn) reactor.Handler {
	return c.Responsef(STATUS_200, CONTENT_TYPE_TEXT_PLAIN, "uri=%s query=%s", c.URI, c.Query)
}

func readBody(r *bufio.Reader, method string) (*http.Response, string, error) {
	var resp, err = http.ReadResponse(r, &http.Request{Method: method})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	var body []byte
	if body, err = io.ReadAll(resp.Body); err != nil {
		return nil, "", err
	}
	return resp, string(body), nil
}

func TestPartialRequestThenKeepAlive(t *testing.T) {
	var calls = 0
	var ts = newTestServer(t, func(w *reactor.Worker, c *Conn) reactor.Handler {
		calls++
		return echoURI(w, c)
	})
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		if _, err = io.WriteString(conn, "GET /first?a=1 HTTP/1.1\r\nHost: x\r\n"); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var one [1]byte
		if n, _ := conn.Read(one[:]); n != 0 {
			return fmt.Errorf("response sent before the header terminator")
		}
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if _, err = io.WriteString(conn, "\r\n"); err != nil {
			return err
		}
		var r = bufio.NewReader(conn)
		var resp, body, rerr = readBody(r, "GET")
		if rerr != nil {
			return rerr
		}
		if resp.StatusCode != 200 || body != "uri=/first query=a=1" {
			return fmt.Errorf("first response %d %q", resp.StatusCode, body)
		}
		if v := resp.Header.Get("Connection"); v != "Keep-Alive" {
			return fmt.Errorf("Connection = %q", v)
		}
		if _, err = io.WriteString(conn, "GET /second HTTP/1.1\r\nHost: x\r\n\r\n"); err != nil {
			return err
		}
		if resp, body, rerr = readBody(r, "GET"); rerr != nil {
			return rerr
		}
		if body != "uri=/second query=" {
			return fmt.Errorf("second body %q", body)
		}
		return nil
	})
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2", calls)
	}
	if n := ts.srv.metrics.requests.Count(); n != 2 {
		t.Fatalf("requests counter = %d", n)
	}
}

func TestHTTP10ClosesByDefault(t *testing.T) {
	var ts = newTestServer(t, echoURI)
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		io.WriteString(conn, "GET http://example.com/abs HTTP/1.0\r\n\r\n")
		var raw []byte
		if raw, err = io.ReadAll(conn); err != nil {
			return err
		}
		var s = string(raw)
		if !strings.HasPrefix(s, "HTTP/1.1 200 OK\r\nServer: "+DEFAULT_SERVER_NAME+"\r\nContent-Type: text/plain\r\nConnection: close\r\nContent-Length: ") {
			return fmt.Errorf("unexpected header %q", s)
		}
		if !strings.HasSuffix(s, "\r\n\r\nuri=/abs query=") {
			return fmt.Errorf("unexpected body %q", s)
		}
		return nil
	})
}

func TestRequestTooLarge(t *testing.T) {
	var called = false
	var ts = newTestServer(t, func(w *reactor.Worker, c *Conn) reactor.Handler {
		called = true
		return echoURI(w, c)
	})
	ts.srv.SetMaxRequestSize(64)
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		io.WriteString(conn, "GET /"+strings.Repeat("x", 100)+" HTTP/1.1\r\n\r\n")
		var resp *http.Response
		if resp, _, err = readBody(bufio.NewReader(conn), "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 413 {
			return fmt.Errorf("status %d, want 413", resp.StatusCode)
		}
		return nil
	})
	if called {
		t.Fatalf("handler ran for an oversized request")
	}
}

func TestProtocolErrors(t *testing.T) {
	var ts = newTestServer(t, echoURI)
	var cases = []struct {
		req  string
		code int
	}{
		{"POST /p HTTP/1.1\r\nHost: x\r\n\r\n", 411},
		{"DELETE /x HTTP/1.1\r\n\r\n", 501},
		{"PUT /p HTTP/1.1\r\nContent-Length: nope\r\n\r\n", 400},
	}
	for _, tc := range cases {
		ts.drive(t, func() error {
			var conn, err = net.Dial("tcp", ts.addr)
			if err != nil {
				return err
			}
			defer conn.Close()
			io.WriteString(conn, tc.req)
			var resp *http.Response
			if resp, _, err = readBody(bufio.NewReader(conn), "GET"); err != nil {
				return err
			}
			if resp.StatusCode != tc.code {
				return fmt.Errorf("%q: status %d, want %d", tc.req, resp.StatusCode, tc.code)
			}
			return nil
		})
	}
}

func TestPostWithExpectContinue(t *testing.T) {
	var ts = newTestServer(t, func(w *reactor.Worker, c *Conn) reactor.Handler {
		return c.Responsef(STATUS_200, CONTENT_TYPE_TEXT_PLAIN, "%s %s %s", c.Method, c.URI, c.Content)
	})
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		io.WriteString(conn, "POST /up HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 11\r\n\r\n")
		var r = bufio.NewReader(conn)
		var resp *http.Response
		if resp, _, err = readBody(r, "POST"); err != nil {
			return err
		}
		if resp.StatusCode != 100 {
			return fmt.Errorf("interim status %d", resp.StatusCode)
		}
		io.WriteString(conn, "hello")
		time.Sleep(20 * time.Millisecond)
		io.WriteString(conn, " world")
		var body string
		if resp, body, err = readBody(r, "POST"); err != nil {
			return err
		}
		if resp.StatusCode != 200 || body != "POST /up hello world" {
			return fmt.Errorf("final %d %q", resp.StatusCode, body)
		}
		return nil
	})
}

func TestHeadOmitsBody(t *testing.T) {
	var ts = newTestServer(t, echoURI)
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		var r = bufio.NewReader(conn)
		io.WriteString(conn, "HEAD /h HTTP/1.1\r\n\r\n")
		var resp *http.Response
		if resp, _, err = readBody(r, "HEAD"); err != nil {
			return err
		}
		if resp.ContentLength != int64(len("uri=/h query=")) {
			return fmt.Errorf("HEAD content length %d", resp.ContentLength)
		}
		io.WriteString(conn, "GET /g HTTP/1.1\r\n\r\n")
		var body string
		if _, body, err = readBody(r, "GET"); err != nil {
			return err
		}
		if body != "uri=/g query=" {
			return fmt.Errorf("body after HEAD %q", body)
		}
		return nil
	})
}

func TestCookiesAndRedirect(t *testing.T) {
	var ts = newTestServer(t, func(w *reactor.Worker, c *Conn) reactor.Handler {
		if string(c.URI) == "/old" {
			return c.SetRedirect(STATUS_302, CONTENT_TYPE_TEXT_PLAIN, "/new/%d", 7)
		}
		if string(c.URI) == "/min" {
			c.HeaderStartMinimal(STATUS_200)
			c.SetSessionCookie("s", "1")
			c.SetCookiePath("p", "2", 30, "example.com", "/app")
			c.HeaderContentLength(0)
			return c.HeaderClose()
		}
		c.HeaderStart(STATUS_200, CONTENT_TYPE_TEXT_PLAIN)
		c.SetCookie("sid", "abc", 60)
		c.HeaderContentLength(0)
		return c.HeaderClose()
	})
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		var r = bufio.NewReader(conn)
		io.WriteString(conn, "GET /old HTTP/1.1\r\n\r\n")
		var resp *http.Response
		if resp, _, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 302 || resp.Header.Get("Location") != "/new/7" {
			return fmt.Errorf("redirect %d %q", resp.StatusCode, resp.Header.Get("Location"))
		}
		io.WriteString(conn, "GET /c HTTP/1.1\r\n\r\n")
		if resp, _, err = readBody(r, "GET"); err != nil {
			return err
		}
		if v := resp.Header.Get("Set-Cookie"); v != `sid="abc"; Max-Age=60; Version="1"` {
			return fmt.Errorf("Set-Cookie %q", v)
		}
		io.WriteString(conn, "GET /min HTTP/1.1\r\n\r\n")
		if resp, _, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 200 || resp.Header.Get("Content-Type") != "" || resp.Header.Get("Server") != DEFAULT_SERVER_NAME {
			return fmt.Errorf("minimal header %d %v", resp.StatusCode, resp.Header)
		}
		var cookies = resp.Header.Values("Set-Cookie")
		if len(cookies) != 2 || cookies[0] != `s="1"; Version="1"` ||
			cookies[1] != `p="2"; Max-Age=30; Domain="example.com"; Path="/app"; Version="1"` {
			return fmt.Errorf("cookies %q", cookies)
		}
		return nil
	})
}

func TestFileHandler(t *testing.T) {
	var root = t.TempDir()
	os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644)
	os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(root, "sub dir"), 0o755)
	os.Symlink(filepath.Join(root, "nowhere"), filepath.Join(root, "dangling"))

	var ts = newTestServer(t, FileHandler(root))
	ts.drive(t, func() error {
		var conn, err = net.Dial("tcp", ts.addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		var r = bufio.NewReader(conn)

		io.WriteString(conn, "GET /hello.txt HTTP/1.1\r\n\r\n")
		var resp *http.Response
		var body string
		if resp, body, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 200 || body != "hello world" {
			return fmt.Errorf("file %d %q", resp.StatusCode, body)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			return fmt.Errorf("content type %q", ct)
		}

		io.WriteString(conn, "GET / HTTP/1.1\r\n\r\n")
		if resp, body, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 200 || !strings.Contains(body, "hello.txt") || !strings.Contains(body, "sub dir/") {
			return fmt.Errorf("listing %d %q", resp.StatusCode, body)
		}
		if strings.Contains(body, ".hidden") {
			return fmt.Errorf("listing shows dot files")
		}
		if !strings.Contains(body, "<tr><td>ERROR: dangling</td><td>N/A</td></tr>") {
			return fmt.Errorf("unreadable entry has no error row: %q", body)
		}

		io.WriteString(conn, "GET /sub%20dir/ HTTP/1.1\r\n\r\n")
		if resp, _, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 200 {
			return fmt.Errorf("escaped dir %d", resp.StatusCode)
		}

		io.WriteString(conn, "GET /../../hello.txt HTTP/1.1\r\n\r\n")
		if resp, body, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 200 || body != "hello world" {
			return fmt.Errorf("traversal %d %q", resp.StatusCode, body)
		}

		io.WriteString(conn, "GET /missing HTTP/1.1\r\n\r\n")
		if resp, _, err = readBody(r, "GET"); err != nil {
			return err
		}
		if resp.StatusCode != 404 {
			return fmt.Errorf("missing file %d", resp.StatusCode)
		}
		return nil
	})
}

func TestSegmentPoolExhausted(t *testing.T) {
	var ts = newTestServer(t, nil)
	var got reactor.ErrorCode
	ts.srv.ep.SetOnError(func(fd int, code reactor.ErrorCode, err error) {
		got = code
	})
	ts.srv.segments = reactor.NewObjectPool(1, func() *Segment { return &Segment{Fd: -1} })
	var a = ts.srv.acquireSegment()
	var b = ts.srv.acquireSegment()
	if a == nil || b == nil || a == b || b.Fd != -1 {
		t.Fatalf("no fallback segment")
	}
	if got != reactor.ERROR_POOL_BUFFER {
		t.Fatalf("exhaustion reported as %s", got)
	}
	ts.srv.releaseSegment(a)
}

func TestCheckPersistent(t *testing.T) {
	var cases = []struct {
		head string
		want bool
	}{
		{"GET / HTTP/1.1\r\nHost: x", true},
		{"GET / HTTP/1.1\r\nConnection: close", false},
		{"GET / HTTP/1.0\r\nConnection: keep-alive", true},
		{"GET / HTTP/1.0", false},
	}
	for _, tc := range cases {
		if got := checkPersistent([]byte(tc.head)); got != tc.want {
			t.Fatalf("checkPersistent(%q) = %v, want %v", tc.head, got, tc.want)
		}
	}
}
