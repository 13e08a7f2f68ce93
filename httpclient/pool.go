//go:build linux

package httpclient

// Pool is one worker's set of idle persistent connections, a list per
// endpoint with the most recently parked connection at the head. Only the
// owning worker touches it.
type Pool struct {
	idle   map[Endpoint]*Client
	Hits   int64
	Misses int64
}

func newPool() *Pool {
	return &Pool{idle: make(map[Endpoint]*Client)}
}

// take detaches the head of the endpoint's list.
func (p *Pool) take(e Endpoint) *Client {
	var c = p.idle[e]
	if c == nil {
		return nil
	}
	if c.next != nil {
		c.next.prev = nil
		p.idle[e] = c.next
	} else {
		delete(p.idle, e)
	}
	c.next, c.prev = nil, nil
	return c
}

// park prepends c to its endpoint's list.
func (p *Pool) park(c *Client) {
	var head = p.idle[c.Endpoint]
	c.prev = nil
	c.next = head
	if head != nil {
		head.prev = c
	}
	p.idle[c.Endpoint] = c
}

// unlink removes c from wherever it sits in its endpoint's list.
func (p *Pool) unlink(c *Client) {
	if c.next == nil && c.prev == nil {
		if p.idle[c.Endpoint] == c {
			delete(p.idle, c.Endpoint)
		}
		return
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		p.idle[c.Endpoint] = c.next
	}
	c.next, c.prev = nil, nil
}

// Idle is the number of idle connections to e.
func (p *Pool) Idle(e Endpoint) int {
	var n = 0
	for c := p.idle[e]; c != nil; c = c.next {
		n++
	}
	return n
}
