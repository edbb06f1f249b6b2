package netx

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/matst80/gonetcat/internal/obs"
)

// Connect opens an outbound endpoint to remote. The local address is bound
// only when it names an address or a port. For TCP the handshake must finish
// within timeout (<= 0 waits without bound); UDP never waits.
func Connect(ctx context.Context, proto Proto, remote, local netip.AddrPort, timeout time.Duration) (*Endpoint, error) {
	addr := remote.String()
	if remote.Port() == 0 {
		return nil, &OpError{Op: "connect", Addr: addr, Kind: ErrInvalidPort}
	}
	d := net.Dialer{}
	if timeout > 0 {
		d.Timeout = timeout
	}
	if local.Addr().IsValid() || local.Port() != 0 {
		var ip net.IP
		if local.Addr().IsValid() {
			ip = local.Addr().AsSlice()
		}
		switch proto {
		case UDP:
			d.LocalAddr = &net.UDPAddr{IP: ip, Port: int(local.Port())}
		default:
			d.LocalAddr = &net.TCPAddr{IP: ip, Port: int(local.Port())}
		}
		d.Control = connectControl
	}

	start := time.Now()
	conn, err := d.DialContext(ctx, proto.String(), addr)
	if err != nil {
		oe := opError("connect", addr, err)
		obs.ConnectAttemptsTotal.WithLabelValues(resultLabel(oe.Kind)).Inc()
		obs.Debug("connect.failed", obs.Fields{"remote": addr, "proto": proto.String(), "err": err.Error(), "elapsed": time.Since(start).String()})
		return nil, oe
	}
	obs.ConnectAttemptsTotal.WithLabelValues("ok").Inc()
	return newEndpoint(proto, conn, addrPortOf(conn.RemoteAddr()), addrPortOf(conn.LocalAddr())), nil
}

func resultLabel(kind error) string {
	switch kind {
	case ErrTimeout:
		return "timeout"
	case ErrRefused:
		return "refused"
	case ErrInvalidPort:
		return "invalid"
	case context.Canceled:
		return "canceled"
	}
	return "error"
}
