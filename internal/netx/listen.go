package netx

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/matst80/gonetcat/internal/obs"
	"github.com/matst80/gonetcat/internal/ports"
)

// ListenOptions configures a single-peer listener.
type ListenOptions struct {
	// Local is the bind address; an unset address binds the wildcard.
	Local netip.AddrPort
	// Timeout bounds the wait for the first acceptable peer; <= 0 waits
	// without bound.
	Timeout time.Duration
	// AllowHosts, when non-empty, restricts peers to these addresses.
	AllowHosts []netip.Addr
	// AllowPorts, when non-empty, restricts peers to these source ports.
	AllowPorts *ports.Set
	// Zero rejects every peer (probe mode); the listener then only ends by
	// timeout or cancellation.
	Zero bool
}

func (o *ListenOptions) allowed(peer netip.AddrPort) bool {
	if len(o.AllowHosts) > 0 && !slices.Contains(o.AllowHosts, peer.Addr().Unmap()) {
		return false
	}
	if o.AllowPorts != nil && o.AllowPorts.Count() > 0 && !o.AllowPorts.Contains(peer.Port()) {
		return false
	}
	return true
}

// Listener is a bound socket waiting for its single peer.
type Listener struct {
	proto Proto
	opts  ListenOptions
	ln    net.Listener
	pc    *net.UDPConn
}

// Bind opens and binds the listening socket without waiting for a peer.
func Bind(ctx context.Context, proto Proto, opts ListenOptions) (*Listener, error) {
	addr := hostPort(opts.Local)
	lc := net.ListenConfig{Control: reuseAddrControl}
	l := &Listener{proto: proto, opts: opts}
	switch proto {
	case UDP:
		pc, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			return nil, &OpError{Op: "listen", Addr: addr, Kind: ErrResource, Err: err}
		}
		l.pc = pc.(*net.UDPConn)
		enablePacketInfo(l.pc)
	default:
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, &OpError{Op: "listen", Addr: addr, Kind: ErrResource, Err: err}
		}
		l.ln = ln
	}
	obs.Debug("listen.bound", obs.Fields{"proto": proto.String(), "addr": l.Addr().String()})
	return l, nil
}

// Listen binds and waits for the single acceptable peer.
func Listen(ctx context.Context, proto Proto, opts ListenOptions) (*Endpoint, error) {
	l, err := Bind(ctx, proto, opts)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Accept(ctx)
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	if l.pc != nil {
		return l.pc.LocalAddr()
	}
	return l.ln.Addr()
}

// Close releases the listening socket. After a successful UDP Accept the
// socket belongs to the returned Endpoint and Close is a no-op.
func (l *Listener) Close() error {
	switch {
	case l.pc != nil:
		return l.pc.Close()
	case l.ln != nil:
		return l.ln.Close()
	}
	return nil
}

// Accept waits for a peer that passes the filters. The timeout budget is
// shared by every wait: rejected peers do not extend it.
func (l *Listener) Accept(ctx context.Context) (*Endpoint, error) {
	var deadline time.Time
	if l.opts.Timeout > 0 {
		deadline = time.Now().Add(l.opts.Timeout)
	}
	if l.proto == UDP {
		return l.acceptUDP(ctx, deadline)
	}
	return l.acceptTCP(ctx, deadline)
}

func (l *Listener) acceptTCP(ctx context.Context, deadline time.Time) (*Endpoint, error) {
	addr := l.ln.Addr().String()
	tl, _ := l.ln.(*net.TCPListener)
	if tl != nil {
		_ = tl.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		if tl != nil {
			_ = tl.SetDeadline(time.Unix(1, 0))
		}
	})
	defer stop()

	for {
		c, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, &OpError{Op: "accept", Addr: addr, Kind: context.Canceled, Err: ctx.Err()}
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() && !ne.Timeout() {
				obs.Error("accept.temp", obs.Fields{"err": err.Error()})
				continue
			}
			return nil, opError("accept", addr, err)
		}
		remote := addrPortOf(c.RemoteAddr())
		if l.opts.Zero || !l.opts.allowed(remote) {
			l.reject(remote)
			_ = c.Close()
			continue
		}
		obs.Say(1, "Connection from %s", remote)
		_ = l.ln.Close()
		return newEndpoint(TCP, c, remote, addrPortOf(c.LocalAddr())), nil
	}
}

func (l *Listener) acceptUDP(ctx context.Context, deadline time.Time) (*Endpoint, error) {
	addr := l.pc.LocalAddr().String()
	bound := addrPortOf(l.pc.LocalAddr())
	_ = l.pc.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = l.pc.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	drain := make([]byte, 64*1024)
	for {
		remote, local, err := peekDatagram(l.pc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &OpError{Op: "accept", Addr: addr, Kind: context.Canceled, Err: ctx.Err()}
			}
			return nil, opError("accept", addr, err)
		}
		if l.opts.Zero || !l.opts.allowed(remote) {
			l.reject(remote)
			n, err := discardPeeked(l.pc, drain)
			if err != nil {
				if ctx.Err() != nil {
					return nil, &OpError{Op: "accept", Addr: addr, Kind: context.Canceled, Err: ctx.Err()}
				}
				return nil, opError("accept", addr, err)
			}
			obs.Debug("listen.drain", obs.Fields{"remote": remote.String(), "bytes": n})
			continue
		}

		localAP := netip.AddrPortFrom(local, bound.Port())
		if !local.IsValid() && bound.Addr().IsValid() && !bound.Addr().IsUnspecified() {
			localAP = bound
		}
		conn, err := adoptPeer(l.pc, remote)
		if err != nil {
			return nil, opError("connect", remote.String(), err)
		}
		_ = l.pc.SetReadDeadline(time.Time{})
		l.pc = nil
		if localAP.Addr().IsValid() {
			obs.Say(1, "Received packet from %s -> %s (local)", remote, localAP)
		} else {
			obs.Say(1, "Received packet from %s", remote)
		}
		return newEndpoint(UDP, conn, remote, localAP), nil
	}
}

func (l *Listener) reject(remote netip.AddrPort) {
	obs.UnwantedPeersTotal.Inc()
	if l.opts.Zero {
		obs.Say(1, "Connection probe from %s", remote)
		return
	}
	obs.Say(2, "Unwanted connection from %s (refused)", remote)
}
