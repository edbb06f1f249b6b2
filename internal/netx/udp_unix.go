//go:build linux || darwin || freebsd

package netx

import (
	"net"
	"net/netip"
	"strings"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// connectControl prepares a bound outbound socket so that the same local
// port can be reused right after a close. TCP sockets also reset on close
// instead of lingering in TIME_WAIT.
func connectControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr == nil && strings.HasPrefix(network, "tcp") {
			serr = unix.SetsockoptLinger(int(fd), unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
		}
	})
	if err != nil {
		return err
	}
	return serr
}

// enablePacketInfo asks the kernel to attach the destination address to
// every datagram. Either call may fail depending on the socket family; the
// local address is then simply left unset.
func enablePacketInfo(pc *net.UDPConn) {
	_ = ipv4.NewPacketConn(pc).SetControlMessage(ipv4.FlagDst, true)
	_ = ipv6.NewPacketConn(pc).SetControlMessage(ipv6.FlagDst, true)
}

// peekDatagram waits for the next datagram without consuming it and
// returns its sender plus the local address it was sent to, when known.
// The socket's read deadline bounds the wait.
func peekDatagram(pc *net.UDPConn) (netip.AddrPort, netip.Addr, error) {
	rc, err := pc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, netip.Addr{}, err
	}
	var (
		buf  [1]byte
		oob  = make([]byte, 256)
		oobn int
		from unix.Sockaddr
		rerr error
	)
	err = rc.Read(func(fd uintptr) bool {
		_, oobn, _, from, rerr = unix.Recvmsg(int(fd), buf[:], oob, unix.MSG_PEEK)
		return rerr != unix.EAGAIN && rerr != unix.EWOULDBLOCK
	})
	if err != nil {
		return netip.AddrPort{}, netip.Addr{}, err
	}
	if rerr != nil {
		return netip.AddrPort{}, netip.Addr{}, rerr
	}
	return sockaddrAddrPort(from), packetDst(oob[:oobn]), nil
}

// discardPeeked consumes the datagram peekDatagram reported.
func discardPeeked(pc *net.UDPConn, buf []byte) (int, error) {
	n, _, err := pc.ReadFromUDPAddrPort(buf)
	return n, err
}

func packetDst(oob []byte) netip.Addr {
	if len(oob) == 0 {
		return netip.Addr{}
	}
	var cm4 ipv4.ControlMessage
	if err := cm4.Parse(oob); err == nil && cm4.Dst != nil {
		if a, ok := netip.AddrFromSlice(cm4.Dst); ok {
			return a.Unmap()
		}
	}
	var cm6 ipv6.ControlMessage
	if err := cm6.Parse(oob); err == nil && cm6.Dst != nil {
		if a, ok := netip.AddrFromSlice(cm6.Dst); ok {
			return a.Unmap()
		}
	}
	return netip.Addr{}
}

func sockaddrAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr).Unmap(), uint16(v.Port))
	}
	return netip.AddrPort{}
}

// adoptPeer makes remote the default peer of the socket with connect(2) on
// the existing descriptor, so the datagram that was only peeked stays queued
// for the first read.
func adoptPeer(pc *net.UDPConn, remote netip.AddrPort) (net.Conn, error) {
	rc, err := pc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cerr error
	err = rc.Control(func(fd uintptr) {
		var local unix.Sockaddr
		local, cerr = unix.Getsockname(int(fd))
		if cerr != nil {
			return
		}
		var sa unix.Sockaddr
		switch local.(type) {
		case *unix.SockaddrInet6:
			sa = &unix.SockaddrInet6{Port: int(remote.Port()), Addr: remote.Addr().As16()}
		default:
			if !remote.Addr().Unmap().Is4() {
				cerr = unix.EAFNOSUPPORT
				return
			}
			sa = &unix.SockaddrInet4{Port: int(remote.Port()), Addr: remote.Addr().Unmap().As4()}
		}
		cerr = unix.Connect(int(fd), sa)
	})
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, cerr
	}
	return &connectedUDP{UDPConn: pc, remote: net.UDPAddrFromAddrPort(remote)}, nil
}

// connectedUDP reports the peer set with connect(2), which the net package
// does not learn about on its own.
type connectedUDP struct {
	*net.UDPConn
	remote *net.UDPAddr
}

func (c *connectedUDP) RemoteAddr() net.Addr { return c.remote }
