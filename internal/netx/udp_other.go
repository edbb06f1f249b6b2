//go:build !(linux || darwin || freebsd)

package netx

import (
	"net"
	"net/netip"
	"sync"
	"syscall"
)

func reuseAddrControl(network, address string, c syscall.RawConn) error { return nil }

func connectControl(network, address string, c syscall.RawConn) error { return nil }

func enablePacketInfo(pc *net.UDPConn) {}

// peekDatagram has no MSG_PEEK here: the datagram is read and kept so the
// adopted connection can replay it as its first read.
func peekDatagram(pc *net.UDPConn) (netip.AddrPort, netip.Addr, error) {
	buf := make([]byte, 64*1024)
	n, from, err := pc.ReadFromUDPAddrPort(buf)
	if err != nil {
		return netip.AddrPort{}, netip.Addr{}, err
	}
	stash.Store(pc, buf[:n])
	return netip.AddrPortFrom(from.Addr().Unmap(), from.Port()), netip.Addr{}, nil
}

var stash sync.Map // *net.UDPConn -> []byte

func discardPeeked(pc *net.UDPConn, buf []byte) (int, error) {
	b, _ := stash.LoadAndDelete(pc)
	p, _ := b.([]byte)
	return len(p), nil
}

func adoptPeer(pc *net.UDPConn, remote netip.AddrPort) (net.Conn, error) {
	first, _ := stash.LoadAndDelete(pc)
	c := &datagramConn{UDPConn: pc, remote: remote}
	if b, ok := first.([]byte); ok {
		c.pending = b
	}
	return c, nil
}

// datagramConn emulates a connected UDP socket: writes go to remote and
// reads from any other sender are discarded.
type datagramConn struct {
	*net.UDPConn
	remote  netip.AddrPort
	pending []byte
}

func (c *datagramConn) Read(p []byte) (int, error) {
	if c.pending != nil {
		n := copy(p, c.pending)
		c.pending = nil
		return n, nil
	}
	for {
		n, from, err := c.UDPConn.ReadFromUDPAddrPort(p)
		if err != nil {
			return n, err
		}
		if netip.AddrPortFrom(from.Addr().Unmap(), from.Port()) == c.remote {
			return n, nil
		}
	}
}

func (c *datagramConn) Write(p []byte) (int, error) {
	return c.UDPConn.WriteToUDPAddrPort(p, c.remote)
}

func (c *datagramConn) RemoteAddr() net.Addr { return net.UDPAddrFromAddrPort(c.remote) }
