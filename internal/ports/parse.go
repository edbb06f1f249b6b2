package ports

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSpec is returned for port arguments that cannot be parsed.
var ErrInvalidSpec = errors.New("invalid port specification")

// LookupFunc resolves a service name (e.g. "http") to a port number.
type LookupFunc func(name string) (uint16, error)

// ParsePort parses a single port given as a number or, when lookup is non-nil,
// a service name. Port 0 is rejected.
func ParsePort(s string, lookup LookupFunc) (uint16, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty port", ErrInvalidSpec)
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		if n == 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidSpec, s)
		}
		return uint16(n), nil
	}
	if lookup == nil || !isServiceName(s) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSpec, s)
	}
	p, err := lookup(s)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSpec, s)
	}
	return p, nil
}

// ParseRange parses "N", "lo-hi" or "lo:hi". A missing low bound defaults to
// 1 and a missing high bound to 65535; omitting both is an error, as is
// lo > hi.
func ParseRange(spec string, lookup LookupFunc) (first, last uint16, err error) {
	// service names may themselves contain a dash ("netbios-ssn")
	if p, perr := ParsePort(spec, lookup); perr == nil {
		return p, p, nil
	}
	idx := strings.IndexAny(spec, "-:")
	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidSpec, spec)
	}
	lo, hi := spec[:idx], spec[idx+1:]
	if lo == "" && hi == "" {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidSpec, spec)
	}
	first, last = 1, 65535
	if lo != "" {
		if first, err = ParsePort(lo, lookup); err != nil {
			return 0, 0, fmt.Errorf("%w: %s", ErrInvalidSpec, spec)
		}
	}
	if hi != "" {
		if last, err = ParsePort(hi, lookup); err != nil {
			return 0, 0, fmt.Errorf("%w: %s", ErrInvalidSpec, spec)
		}
	}
	if first > last {
		return 0, 0, fmt.Errorf("%w: %s (low bound above high bound)", ErrInvalidSpec, spec)
	}
	return first, last, nil
}

// AddSpec parses spec and inserts the result into s.
func (s *Set) AddSpec(spec string, lookup LookupFunc) error {
	first, last, err := ParseRange(spec, lookup)
	if err != nil {
		return err
	}
	s.Insert(first, last)
	return nil
}

func isServiceName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
