package netx

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

var (
	// ErrTimeout means a bounded wait (connect, accept, first datagram)
	// expired. The caller may try the next port.
	ErrTimeout = errors.New("timed out")
	// ErrRefused covers peer level failures: refused, reset, unreachable.
	ErrRefused = errors.New("connection refused or unreachable")
	// ErrResource covers local setup failures: socket, bind, listen.
	ErrResource = errors.New("socket setup failed")
	// ErrInvalidPort is returned for a remote port of 0.
	ErrInvalidPort = errors.New("invalid port")
)

// OpError describes a failed connect or listen. Kind is one of the
// sentinels above (or a context error) so callers can use errors.Is.
type OpError struct {
	Op   string
	Addr string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	s := e.Op
	if e.Addr != "" {
		s += " " + e.Addr
	}
	if e.Err != nil {
		return s + ": " + e.Err.Error()
	}
	return s + ": " + e.Kind.Error()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, addr string, err error) *OpError {
	return &OpError{Op: op, Addr: addr, Kind: classify(err), Err: err}
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTDOWN):
		return ErrRefused
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return ErrResource
}
