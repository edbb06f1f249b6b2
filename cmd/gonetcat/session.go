package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/matst80/gonetcat/internal/hexdump"
	"github.com/matst80/gonetcat/internal/netx"
	"github.com/matst80/gonetcat/internal/obs"
	"github.com/matst80/gonetcat/internal/ports"
	"github.com/matst80/gonetcat/internal/ratelimit"
	"github.com/matst80/gonetcat/internal/relay"
	"github.com/matst80/gonetcat/internal/resolve"
)

// session drives one invocation: it resolves the command line, opens the
// network side in the selected mode and hands it to the relay engine.
type session struct {
	cfg    Config
	stdin  io.Reader
	stdout io.Writer
	stats  *relay.Stats

	proto    netx.Proto
	resolver *resolve.Resolver
	dumper   relay.Dumper
	stdio    *relay.Stream
}

// target is the resolved positional part of the command line.
type target struct {
	host    resolve.Host
	hasHost bool
	ports   *ports.Set
}

func (s *session) run(ctx context.Context) int {
	s.resolver = resolve.New(s.cfg.Numeric)
	if s.cfg.UDP {
		s.proto = netx.UDP
	}
	if s.cfg.Hexdump {
		w := s.stdout
		if s.cfg.Output != "" {
			f, err := os.Create(s.cfg.Output)
			if err != nil {
				return fail("Failed to open output file: %v", err)
			}
			defer f.Close()
			w = f
		}
		s.dumper = hexdump.New(w)
	}
	s.stdio = relay.NewStream("stdio", s.stdin, s.stdout, nil)
	defer s.stdio.Close()

	tgt, code := s.parseTarget(ctx)
	if code != 0 {
		return code
	}
	local, err := s.localAddr(ctx, s.cfg.Source, s.cfg.LocalPort)
	if err != nil {
		return fail("%v", err)
	}

	switch {
	case s.cfg.Tunnel != "":
		return s.tunnel(ctx, tgt, local)
	case s.cfg.Listen:
		return s.listen(ctx, tgt, local)
	}
	if !tgt.hasHost {
		return usageFail("No hostname specified")
	}
	if tgt.ports.Count() == 0 {
		return fail("No ports specified for connection")
	}
	return s.connect(ctx, tgt, local)
}

func (s *session) parseTarget(ctx context.Context) (target, int) {
	tgt := target{ports: &ports.Set{}}
	args := s.cfg.Args
	if len(args) == 0 {
		return tgt, 0
	}
	h, err := s.resolver.Host(ctx, args[0])
	if err != nil {
		return tgt, fail("Couldn't resolve host %q: %v", args[0], err)
	}
	tgt.host, tgt.hasHost = h, true
	lookup := s.resolver.PortLookup(ctx, s.proto.String())
	for _, spec := range args[1:] {
		if err := tgt.ports.AddSpec(spec, lookup); err != nil {
			return tgt, fail("Invalid port specification: %s", spec)
		}
	}
	obs.Debug("ports.parsed", obs.Fields{"ports": tgt.ports.String(), "count": tgt.ports.Count()})
	return tgt, 0
}

func (s *session) localAddr(ctx context.Context, host, port string) (netip.AddrPort, error) {
	var addr netip.Addr
	if host != "" {
		h, err := s.resolver.Host(ctx, host)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("couldn't resolve local host %q: %w", host, err)
		}
		addr = h.Addrs[0]
	}
	var num uint16
	if port != "" {
		p, err := s.resolver.Port(ctx, port, s.proto.String())
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("invalid local port %q: %w", port, err)
		}
		num = p.Num
	}
	return netip.AddrPortFrom(addr, num), nil
}

func (s *session) engine(tunnel bool) *relay.Engine {
	return relay.New(relay.Config{
		Interval: time.Duration(s.cfg.Interval),
		Telnet:   s.cfg.Telnet,
		Dumper:   s.dumper,
		Stats:    s.stats,
		Tunnel:   tunnel,
	})
}

// peer returns the non-network side of a session: standard I/O, or a fresh
// instance of the --exec program.
func (s *session) peer(ctx context.Context) (*relay.Stream, func(), error) {
	if s.cfg.Exec == "" {
		return s.stdio, func() {}, nil
	}
	st, err := startExec(ctx, s.cfg.Exec, s.cfg.PTY)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

// relayWith runs the engine between ep and the session peer.
func (s *session) relayWith(ctx context.Context, ep *netx.Endpoint) error {
	peer, done, err := s.peer(ctx)
	if err != nil {
		_ = ep.Close()
		return err
	}
	defer done()
	return s.engine(s.cfg.Exec != "").Run(ctx, relay.NewConnStream(ep.String(), ep), peer)
}

// connect tries every selected port in order, or at random without repeats,
// pausing the interval between attempts. It succeeds if any port answered.
func (s *session) connect(ctx context.Context, tgt target, local netip.AddrPort) int {
	var pacer *ratelimit.TokenBucket
	if s.cfg.Interval > 0 {
		pacer = ratelimit.NewPacer(time.Duration(s.cfg.Interval))
	}
	remote := tgt.host.Addrs[0]
	left := tgt.ports.Count()
	var port uint16
	connected := 0
	for ; left > 0; left-- {
		if s.cfg.Random {
			port = tgt.ports.RandomPick()
			tgt.ports.Remove(port)
		} else {
			port = tgt.ports.Next(port)
		}
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				break
			}
		}
		desc := tgt.host.String() + " " + strconv.Itoa(int(port))
		ep, err := netx.Connect(ctx, s.proto, netip.AddrPortFrom(remote, port), local, time.Duration(s.cfg.Wait))
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return 1
		case errors.Is(err, netx.ErrRefused):
			obs.Say(1, "%s : Connection refused", desc)
			continue
		case errors.Is(err, netx.ErrTimeout):
			obs.Say(1, "%s : Connection timed out", desc)
			continue
		default:
			return fail("%v", err)
		}

		connected++
		if s.cfg.Zero {
			obs.Say(0, "%s open", desc)
			_ = ep.Close()
			continue
		}
		obs.Say(1, "%s open", desc)
		if err := s.relayWith(ctx, ep); err != nil {
			if ctx.Err() != nil {
				return 1
			}
			return fail("%v", err)
		}
	}
	if connected == 0 {
		return 1
	}
	return 0
}

func (s *session) listenOptions(tgt target, local netip.AddrPort) netx.ListenOptions {
	opts := netx.ListenOptions{
		Local:   local,
		Timeout: time.Duration(s.cfg.Wait),
		Zero:    s.cfg.Zero,
	}
	if tgt.hasHost {
		opts.AllowHosts = tgt.host.Addrs
	}
	if tgt.ports.Count() > 0 {
		opts.AllowPorts = tgt.ports
	}
	return opts
}

// accept binds the local socket and waits for the one acceptable peer.
// Zero-I/O mode ends here: a timeout is its normal outcome.
func (s *session) accept(ctx context.Context, tgt target, local netip.AddrPort) (*netx.Endpoint, int) {
	l, err := netx.Bind(ctx, s.proto, s.listenOptions(tgt, local))
	if err != nil {
		return nil, fail("Couldn't setup listening socket: %v", err)
	}
	defer l.Close()
	obs.Say(1, "Listening on %s", l.Addr())

	ep, err := l.Accept(ctx)
	switch {
	case err == nil:
		return ep, 0
	case errors.Is(err, context.Canceled):
		return nil, 1
	case errors.Is(err, netx.ErrTimeout) && s.cfg.Zero:
		obs.Debug("listen.zero.done", obs.Fields{"addr": l.Addr().String()})
		return nil, 0
	}
	return nil, fail("Listen mode failed: %v", err)
}

func (s *session) listen(ctx context.Context, tgt target, local netip.AddrPort) int {
	ep, code := s.accept(ctx, tgt, local)
	if ep == nil {
		return code
	}
	if err := s.relayWith(ctx, ep); err != nil {
		if ctx.Err() != nil {
			return 1
		}
		return fail("%v", err)
	}
	return 0
}

// tunnel accepts one inbound peer and relays it to the -L target. End of
// stream on either connection ends the session.
func (s *session) tunnel(ctx context.Context, tgt target, local netip.AddrPort) int {
	host, port, err := net.SplitHostPort(s.cfg.Tunnel)
	if err != nil {
		return usageFail("Invalid tunnel specification %q: %v", s.cfg.Tunnel, err)
	}
	th, err := s.resolver.Host(ctx, host)
	if err != nil {
		return fail("Couldn't resolve host %q: %v", host, err)
	}
	tp, err := s.resolver.Port(ctx, port, s.proto.String())
	if err != nil {
		return fail("Invalid port specification: %s", port)
	}
	tunnelLocal, err := s.localAddr(ctx, s.cfg.TunnelSource, s.cfg.TunnelPort)
	if err != nil {
		return fail("%v", err)
	}

	in, code := s.accept(ctx, tgt, local)
	if in == nil {
		return code
	}
	defer in.Close()

	out, err := netx.Connect(ctx, s.proto, netip.AddrPortFrom(th.Addrs[0], tp.Num), tunnelLocal, time.Duration(s.cfg.Wait))
	if err != nil {
		if ctx.Err() != nil {
			return 1
		}
		return fail("Couldn't connect to tunnel target %s %s: %v", th, tp, err)
	}
	obs.Say(1, "%s %s open", th, tp)

	peer := relay.NewConnStream(in.String(), in)
	defer peer.Close()
	if err := s.engine(true).Run(ctx, relay.NewConnStream(out.String(), out), peer); err != nil {
		if ctx.Err() != nil {
			return 1
		}
		return fail("%v", err)
	}
	return 0
}

func fail(format string, args ...any) int {
	obs.ErrorsTotal.WithLabelValues("fatal").Inc()
	obs.Say(0, "Error: "+format, args...)
	return 1
}

func usageFail(format string, args ...any) int {
	obs.Say(0, "Error: "+format, args...)
	obs.Say(0, "Try `--help' for more information.")
	return 1
}
