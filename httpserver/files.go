//go:build linux

package httpserver

import (
	"html"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gotcp/reactor"
	"golang.org/x/sys/unix"
)

const DIR_TIME_LAYOUT = "2006-01-02 15:04:05"

// FileHandler serves files below root. Regular files go out through
// sendfile, directories as an HTML listing.
func FileHandler(root string) RequestHandler {
	return func(w *reactor.Worker, c *Conn) reactor.Handler {
		var uri, err = url.QueryUnescape(string(c.URI))
		if err != nil {
			return c.Response(STATUS_400, CONTENT_TYPE_TEXT_PLAIN)
		}
		var rel = path.Clean("/" + uri)
		var file = filepath.Join(root, filepath.FromSlash(rel))

		var fd int
		fd, err = unix.Open(file, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			switch err {
			case unix.ENOENT, unix.ENOTDIR:
				return c.Response(STATUS_404, CONTENT_TYPE_TEXT_PLAIN)
			case unix.EACCES, unix.EPERM:
				return c.Response(STATUS_403, CONTENT_TYPE_TEXT_PLAIN)
			}
			return c.Response(STATUS_500, CONTENT_TYPE_TEXT_PLAIN)
		}
		if err = c.SendFile(fd); err == nil {
			c.HeaderStartMime(STATUS_200, file)
			c.HeaderContentLengthAuto()
			return c.HeaderClose()
		}

		var st unix.Stat_t
		var serr = unix.Fstat(fd, &st)
		unix.Close(fd)
		if serr == nil && st.Mode&unix.S_IFMT == unix.S_IFDIR {
			if err = c.DirList(file, rel); err == nil {
				return c.Response(STATUS_200, CONTENT_TYPE_TEXT_HTML)
			}
		}
		c.Payload.Reset()
		return c.Response(STATUS_500, CONTENT_TYPE_TEXT_PLAIN)
	}
}

// DirList writes an HTML index of dir into the payload. uri is the path the
// listing is served under. Entries starting with a dot are skipped and
// entries that cannot be stat'ed show up as ERROR rows.
func (c *Conn) DirList(dir string, uri string) error {
	var entries, err = os.ReadDir(dir)
	if err != nil {
		return err
	}
	var base = uri
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	var title = html.EscapeString(uri)
	c.keep(c.Payload.Printf("<html><head><title>Index of %s</title></head><body>", title))
	c.keep(c.Payload.Printf("<h1>Index of %s</h1><hr>", title))
	c.keep(c.Payload.Printf("<a href=\"..\">../</a><br><br>"))
	c.keep(c.Payload.Printf("<table width=\"100%%\" border=\"0\">"))
	for _, e := range entries {
		var name = e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		var info, serr = os.Stat(filepath.Join(dir, name))
		if serr != nil {
			c.keep(c.Payload.Printf("<tr><td>ERROR: %s</td><td>N/A</td></tr>", html.EscapeString(name)))
			continue
		}
		var slash = ""
		if info.IsDir() {
			slash = "/"
		}
		c.keep(c.Payload.Printf("<tr><td><a href=\"%s%s%s\">%s%s</a></td><td>",
			html.EscapeString(base), url.PathEscape(name), slash, html.EscapeString(name), slash))
		c.keep(c.Payload.AppendTime(info.ModTime(), DIR_TIME_LAYOUT))
		c.keep(c.Payload.Printf("</td><td>%s</td></tr>", humanize.IBytes(uint64(info.Size()))))
	}
	c.keep(c.Payload.Printf("</table><hr></body></html>"))
	return c.err
}
