// Package resolve turns host and service names into addresses and ports.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrNumericOnly is returned when a name is given while name lookups are
// disabled.
var ErrNumericOnly = errors.New("name lookup disabled")

// Host is a resolved host: the name the user gave or found by reverse
// lookup, and every address it maps to.
type Host struct {
	Name  string
	Addrs []netip.Addr
}

// String renders the host the way verbose messages expect: "name [ip]".
func (h Host) String() string {
	ip := "?"
	if len(h.Addrs) > 0 {
		ip = h.Addrs[0].String()
	}
	if h.Name == "" || h.Name == ip {
		return ip
	}
	return h.Name + " [" + ip + "]"
}

// Port is a resolved port with its service name, when known.
type Port struct {
	Num  uint16
	Name string
}

func (p Port) String() string {
	if p.Name == "" {
		return strconv.Itoa(int(p.Num))
	}
	return strconv.Itoa(int(p.Num)) + " (" + p.Name + ")"
}

// Resolver wraps a net.Resolver with netcat's numeric-only switch.
type Resolver struct {
	Numeric bool
	r       *net.Resolver
}

// New returns a Resolver using the default system resolver.
func New(numeric bool) *Resolver {
	return &Resolver{Numeric: numeric, r: net.DefaultResolver}
}

// Host resolves name. Literal addresses always work; when the resolver is
// not numeric a reverse lookup fills in the canonical name.
func (r *Resolver) Host(ctx context.Context, name string) (Host, error) {
	if a, err := netip.ParseAddr(strings.Trim(name, "[]")); err == nil {
		h := Host{Addrs: []netip.Addr{a.Unmap()}}
		if !r.Numeric {
			if names, err := r.r.LookupAddr(ctx, a.String()); err == nil && len(names) > 0 {
				h.Name = strings.TrimSuffix(names[0], ".")
			}
		}
		return h, nil
	}
	if r.Numeric {
		return Host{}, fmt.Errorf("%w: %s", ErrNumericOnly, name)
	}
	addrs, err := r.r.LookupNetIP(ctx, "ip", name)
	if err != nil {
		return Host{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	h := Host{Name: name}
	var v6 []netip.Addr
	for _, a := range addrs {
		a = a.Unmap()
		if a.Is4() {
			h.Addrs = append(h.Addrs, a)
		} else {
			v6 = append(v6, a)
		}
	}
	// IPv4 addresses first
	h.Addrs = append(h.Addrs, v6...)
	if len(h.Addrs) == 0 {
		return Host{}, fmt.Errorf("resolve %s: no addresses", name)
	}
	return h, nil
}

// Port resolves a number or a service name for proto ("tcp" or "udp").
func (r *Resolver) Port(ctx context.Context, nameOrNumber, proto string) (Port, error) {
	if n, err := strconv.ParseUint(nameOrNumber, 10, 16); err == nil {
		if n == 0 {
			return Port{}, fmt.Errorf("invalid port %q", nameOrNumber)
		}
		return Port{Num: uint16(n)}, nil
	}
	if r.Numeric {
		return Port{}, fmt.Errorf("%w: %s", ErrNumericOnly, nameOrNumber)
	}
	n, err := r.r.LookupPort(ctx, proto, nameOrNumber)
	if err != nil {
		return Port{}, fmt.Errorf("resolve port %s: %w", nameOrNumber, err)
	}
	if n <= 0 || n > 65535 {
		return Port{}, fmt.Errorf("invalid port %q", nameOrNumber)
	}
	return Port{Num: uint16(n), Name: nameOrNumber}, nil
}

// PortLookup adapts Port to the lookup signature the port range parser
// takes.
func (r *Resolver) PortLookup(ctx context.Context, proto string) func(string) (uint16, error) {
	return func(name string) (uint16, error) {
		p, err := r.Port(ctx, name, proto)
		return p.Num, err
	}
}
