//go:build linux

package httpclient

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Endpoint is the pool key: an IPv4 address and a port.
type Endpoint struct {
	Addr [4]byte
	Port uint16
}

// ParseEndpoint resolves "host:port". Host names are looked up once, the
// first IPv4 address wins.
func ParseEndpoint(hostport string) (Endpoint, error) {
	var host, port, err = net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, err
	}
	var p uint64
	if p, err = strconv.ParseUint(port, 10, 16); err != nil {
		return Endpoint{}, fmt.Errorf("port %q: %w", port, err)
	}
	var ip = net.ParseIP(host)
	if ip == nil {
		var ips []net.IP
		if ips, err = net.LookupIP(host); err != nil {
			return Endpoint{}, err
		}
		for _, candidate := range ips {
			if candidate.To4() != nil {
				ip = candidate
				break
			}
		}
	}
	var v4 = ip.To4()
	if v4 == nil {
		return Endpoint{}, fmt.Errorf("%s: %w", host, ErrorNoIPv4)
	}
	var e = Endpoint{Port: uint16(p)}
	copy(e.Addr[:], v4)
	return e, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(net.IP(e.Addr[:]).String(), strconv.Itoa(int(e.Port)))
}

func (e Endpoint) sockaddr() *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Addr: e.Addr, Port: int(e.Port)}
}
