//go:build linux

package httpserver

import (
	"mime"
	"path/filepath"
	"time"

	"github.com/gotcp/reactor"
)

// The builders append to the Header and Payload buffers. The first buffer
// error is kept and reported by HeaderClose, which then drops the connection.

func (c *Conn) keep(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *Conn) HeaderStart(status string, contentType string) {
	c.status = status
	c.keep(c.Header.Printf("%s %s\r\nServer: %s\r\nContent-Type: %s", HTTP_VERSION, status, c.server.Name, contentType))
	c.headerConnection()
}

func (c *Conn) HeaderStartMinimal(status string) {
	c.status = status
	c.keep(c.Header.Printf("%s %s\r\nServer: %s", HTTP_VERSION, status, c.server.Name))
	c.headerConnection()
}

// HeaderStartMime derives Content-Type from the extension of file.
func (c *Conn) HeaderStartMime(status string, file string) {
	c.HeaderStart(status, MimeType(file))
}

func MimeType(file string) string {
	if t := mime.TypeByExtension(filepath.Ext(file)); t != "" {
		return t
	}
	return CONTENT_TYPE_TEXT_PLAIN
}

func (c *Conn) headerConnection() {
	var v = headerClose
	if c.Persistent {
		v = headerKeepAlive
	}
	c.keep(c.Header.Printf("%s%s", headerConnection, v))
}

func (c *Conn) HeaderContentLength(n int64) {
	c.keep(c.Header.Printf("%s%d", headerLength, n))
}

// HeaderContentLengthAuto declares the payload plus every chained file.
func (c *Conn) HeaderContentLengthAuto() {
	c.HeaderContentLength(int64(c.Payload.WLoc()) + c.segmentsSize())
}

func (c *Conn) SetSessionCookie(name, value string) {
	c.keep(c.Header.Printf("%s%s=\"%s\"; %s", headerSetCookie, name, value, cookieVersion))
}

func (c *Conn) SetCookie(name, value string, maxAge uint32) {
	c.keep(c.Header.Printf("%s%s=\"%s\"; Max-Age=%d; %s", headerSetCookie, name, value, maxAge, cookieVersion))
}

func (c *Conn) SetCookiePath(name, value string, maxAge uint32, domain, path string) {
	c.keep(c.Header.Printf("%s%s=\"%s\"; Max-Age=%d; Domain=\"%s\"; Path=\"%s\"; %s",
		headerSetCookie, name, value, maxAge, domain, path, cookieVersion))
}

// SetCookieExpires writes a Netscape style cookie with an absolute expiry.
func (c *Conn) SetCookieExpires(name, value string, expires time.Time, domain, path string) {
	c.keep(c.Header.Printf("%s%s=\"%s\";Path=%s;Domain=%s;Expires=", headerSetCookie, name, value, path, domain))
	c.keep(c.Header.AppendTime(expires.UTC(), cookieExpires))
}

// HeaderClose terminates the header block and starts writing.
func (c *Conn) HeaderClose() reactor.Handler {
	c.keep(c.Header.Printf("\r\n\r\n"))
	if c.err != nil {
		c.server.ep.TriggerOnError(c.Fd, reactor.ERROR_BUFFER, c.err)
		return c.Close()
	}
	return c.startWrite()
}

// Response sends whatever is in the payload buffer.
func (c *Conn) Response(status string, contentType string) reactor.Handler {
	c.HeaderStart(status, contentType)
	c.HeaderContentLength(int64(c.Payload.WLoc()))
	return c.HeaderClose()
}

// Responsef replaces header and payload with a formatted body.
func (c *Conn) Responsef(status string, contentType string, format string, args ...any) reactor.Handler {
	c.Header.Reset()
	c.HeaderStart(status, contentType)
	c.Payload.Reset()
	c.keep(c.Payload.Printf(format, args...))
	c.HeaderContentLength(int64(c.Payload.WLoc()))
	return c.HeaderClose()
}

// SetRedirect answers with a formatted Location and an empty body.
func (c *Conn) SetRedirect(status string, contentType string, format string, args ...any) reactor.Handler {
	c.Header.Reset()
	c.HeaderStart(status, contentType)
	c.Payload.Reset()
	c.keep(c.Header.Printf("%s"+format, append([]any{headerLocation}, args...)...))
	c.HeaderContentLength(0)
	return c.HeaderClose()
}
