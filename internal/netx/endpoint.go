// Package netx opens the network side of a session: outbound connections
// with a bounded wait, and single-peer listeners for TCP and UDP.
package netx

import (
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"
)

// Proto is the transport protocol of an Endpoint.
type Proto int

const (
	TCP Proto = iota
	UDP
)

func (p Proto) String() string {
	if p == UDP {
		return "udp"
	}
	return "tcp"
}

// Endpoint is one live network side of a session. It owns its connection
// and closes it exactly once.
type Endpoint struct {
	Proto  Proto
	Remote netip.AddrPort
	Local  netip.AddrPort

	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

func newEndpoint(proto Proto, conn net.Conn, remote, local netip.AddrPort) *Endpoint {
	return &Endpoint{Proto: proto, Remote: remote, Local: local, conn: conn}
}

// Conn exposes the underlying connection.
func (e *Endpoint) Conn() net.Conn { return e.conn }

func (e *Endpoint) Read(p []byte) (int, error)  { return e.conn.Read(p) }
func (e *Endpoint) Write(p []byte) (int, error) { return e.conn.Write(p) }

func (e *Endpoint) SetWriteDeadline(t time.Time) error { return e.conn.SetWriteDeadline(t) }

// CloseWrite half-closes TCP endpoints; other endpoints are left untouched.
func (e *Endpoint) CloseWrite() error {
	if tc, ok := e.conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return nil
}

// Close releases the connection. Further calls return the first result.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { e.closeErr = e.conn.Close() })
	return e.closeErr
}

func (e *Endpoint) String() string {
	return e.Proto.String() + " " + e.Local.String() + " <-> " + e.Remote.String()
}

func addrPortOf(a net.Addr) netip.AddrPort {
	switch v := a.(type) {
	case *net.TCPAddr:
		ap := v.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	case *net.UDPAddr:
		ap := v.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}

// hostPort renders ap for net.Dial/net.Listen, leaving the host empty when
// the address is unset so the wildcard is used.
func hostPort(ap netip.AddrPort) string {
	if !ap.Addr().IsValid() {
		return net.JoinHostPort("", strconv.Itoa(int(ap.Port())))
	}
	return ap.String()
}
