//go:build linux

package httpclient

// Proto frames one request/response exchange on a Client. The Client owns the
// socket, the buffers, the pool and the timeouts; the Proto only decides when
// the response in Inbuf is complete. A Manager serves a single Proto.
type Proto interface {
	// Prepare resets per-request state before the connection is handed out.
	Prepare()
	// ReadContent runs after every read and reports whether more input is
	// needed.
	ReadContent() (more bool, err error)
	// OnError sees the first failure of a request.
	OnError(err error)
	// OnClose runs when the peer closed while ReadContent still wanted input.
	// A nil return completes the request with what was read.
	OnClose() error
}

// NewProtoFunc binds a Proto to the client slot it frames.
type NewProtoFunc func(c *Client) Proto
