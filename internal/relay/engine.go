// Package relay moves bytes between a network stream and a peer stream
// (standard I/O, a spawned program, or a second connection) until the
// session ends.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/matst80/gonetcat/internal/hexdump"
	"github.com/matst80/gonetcat/internal/obs"
	"github.com/matst80/gonetcat/internal/ratelimit"
	"github.com/matst80/gonetcat/internal/telnet"
)

// ErrFatalIO wraps read and write failures on an established session. The
// caller is expected to end the process.
var ErrFatalIO = errors.New("fatal i/o error")

const (
	defaultWriteSlice = 200 * time.Millisecond
	retryDelay        = 10 * time.Millisecond
)

// Dumper receives a copy of every successful write.
type Dumper interface {
	Dump(dir hexdump.Direction, p []byte)
}

// Stats holds running byte totals. It is safe to read while a session runs.
type Stats struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

// Sent returns the number of bytes written to the network.
func (s *Stats) Sent() uint64 { return s.sent.Load() }

// Received returns the number of bytes written to the peer.
func (s *Stats) Received() uint64 { return s.received.Load() }

func (s *Stats) add(dir hexdump.Direction, n int) {
	if dir == hexdump.Sent {
		s.sent.Add(uint64(n))
		obs.BytesTotal.WithLabelValues("sent").Add(float64(n))
		return
	}
	s.received.Add(uint64(n))
	obs.BytesTotal.WithLabelValues("received").Add(float64(n))
}

// Config is the per-session context of an Engine.
type Config struct {
	// Interval paces peer to network traffic to one line per interval.
	Interval time.Duration
	// Telnet answers option negotiation found in network reads.
	Telnet bool
	// Dumper, if set, receives every write.
	Dumper Dumper
	// Stats accumulates byte totals; a private one is used when nil.
	Stats *Stats
	// Tunnel makes end of stream on the peer end the session too.
	Tunnel bool
	// WriteSlice bounds a single write attempt before the rest is queued.
	WriteSlice time.Duration
}

// Engine runs relay sessions.
type Engine struct {
	cfg   Config
	pacer *ratelimit.TokenBucket
}

// New returns an Engine for cfg.
func New(cfg Config) *Engine {
	if cfg.Stats == nil {
		cfg.Stats = &Stats{}
	}
	if cfg.WriteSlice <= 0 {
		cfg.WriteSlice = defaultWriteSlice
	}
	e := &Engine{cfg: cfg}
	if cfg.Interval > 0 {
		e.pacer = ratelimit.NewPacer(cfg.Interval)
	}
	return e
}

// Stats returns the totals the engine updates.
func (e *Engine) Stats() *Stats { return e.cfg.Stats }

type side struct {
	s      *Stream
	recvq  queue
	sendq  queue
	held   bool
	eof    bool
	filter *telnet.Filter
}

func (sd *side) releaseChunk() {
	if sd.held {
		sd.held = false
		sd.s.release <- struct{}{}
	}
}

// Run relays between network and peer until the network reaches end of
// stream (or, in tunnel mode, either side does), ctx is cancelled, or an
// I/O error occurs. The network stream is closed on return; the peer is
// left to the caller.
func (e *Engine) Run(ctx context.Context, network, peer *Stream) error {
	nw := &side{s: network}
	pr := &side{s: peer}
	if e.cfg.Telnet {
		nw.filter = &telnet.Filter{}
	}
	network.start()
	peer.start()

	started := time.Now()
	obs.SessionsActive.Inc()
	defer func() {
		obs.SessionsActive.Dec()
		obs.SessionDurationSeconds.Observe(time.Since(started).Seconds())
		nw.releaseChunk()
		pr.releaseChunk()
		_ = network.Close()
	}()

	for {
		if e.finished(nw, pr) {
			e.flushOnExit(nw, pr)
			obs.Debug("relay.done", obs.Fields{"sent": e.cfg.Stats.Sent(), "received": e.cfg.Stats.Received()})
			return nil
		}

		if err := e.wait(ctx, nw, pr); err != nil {
			return err
		}
		if err := e.transfer(nw, pr); err != nil {
			return err
		}
	}
}

func (e *Engine) finished(nw, pr *side) bool {
	if nw.eof && nw.recvq.empty() && pr.sendq.empty() {
		return true
	}
	return e.cfg.Tunnel && pr.eof && pr.recvq.empty() && nw.sendq.empty()
}

// wait blocks until a read arrives, a timer fires, or ctx is done. Sides
// with pending received data are not read (backpressure), nor is the peer
// while a paced line is waiting for its slot.
func (e *Engine) wait(ctx context.Context, nw, pr *side) error {
	var netCh, peerCh <-chan chunk
	if nw.recvq.empty() && !nw.eof {
		netCh = nw.s.chunks
	}
	paced := e.pacingDelay(nw)
	// no peer read until the paced line is out
	if pr.recvq.empty() && !pr.eof && pr.s.readable() && paced == 0 {
		peerCh = pr.s.chunks
	}

	// the pacing delay, or a short retry while a write was left partial
	d := paced
	if !pr.sendq.empty() || (!nw.sendq.empty() && d == 0) {
		if d == 0 || retryDelay < d {
			d = retryDelay
		}
	}
	var timerC <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c := <-netCh:
		return e.received(nw, c, true)
	case c := <-peerCh:
		return e.received(pr, c, false)
	case <-timerC:
		return nil
	}
}

func (e *Engine) pacingDelay(nw *side) time.Duration {
	if e.pacer == nil || nw.sendq.empty() {
		return 0
	}
	return e.pacer.Delay()
}

func (e *Engine) received(sd *side, c chunk, isNetwork bool) error {
	data := c.data
	if c.err == nil {
		sd.held = true
	}
	if len(data) > 0 && sd.filter != nil {
		before := sd.filter.Replies
		n, err := sd.filter.Filter(data, sd.s.w)
		obs.TelnetRepliesTotal.Add(float64(sd.filter.Replies - before))
		if err != nil {
			return fmt.Errorf("%w: telnet reply to %s: %w", ErrFatalIO, sd.s, err)
		}
		data = data[:n]
	}
	sd.recvq.borrow(data)

	switch {
	case c.err == nil:
	case errors.Is(c.err, io.EOF):
		sd.eof = true
		if isNetwork {
			obs.Debug("relay.eof", obs.Fields{"side": sd.s.String()})
		} else if e.cfg.Tunnel {
			obs.Debug("relay.eof", obs.Fields{"side": sd.s.String(), "tunnel": true})
		} else {
			obs.Debug("relay.eof.ignored", obs.Fields{"side": sd.s.String()})
		}
	default:
		obs.ErrorsTotal.WithLabelValues("read").Inc()
		return fmt.Errorf("%w: read %s: %w", ErrFatalIO, sd.s, c.err)
	}
	return nil
}

// transfer moves received data into the opposite send queues and flushes
// them, then promotes whatever still aliases a lent chunk and releases it.
func (e *Engine) transfer(nw, pr *side) error {
	if !pr.recvq.empty() && nw.sendq.empty() {
		pr.recvq.moveTo(&nw.sendq)
	}
	if err := e.flush(nw, hexdump.Sent, e.pacer); err != nil {
		return err
	}
	if !nw.recvq.empty() && pr.sendq.empty() {
		nw.recvq.moveTo(&pr.sendq)
	}
	if err := e.flush(pr, hexdump.Received, nil); err != nil {
		return err
	}

	for _, q := range []*queue{&nw.recvq, &nw.sendq, &pr.recvq, &pr.sendq} {
		q.own()
	}
	nw.releaseChunk()
	pr.releaseChunk()
	return nil
}

// flush writes dst's send queue. With a pacer only one line is written per
// call, and only when the pacer allows it.
func (e *Engine) flush(dst *side, dir hexdump.Direction, pacer *ratelimit.TokenBucket) error {
	for !dst.sendq.empty() {
		data := dst.sendq.bytes()
		if pacer != nil {
			if !pacer.Allow() {
				return nil
			}
			if i := bytes.IndexByte(data, '\n'); i >= 0 {
				data = data[:i+1]
			}
		}
		n, partial, err := dst.s.write(data, e.cfg.WriteSlice)
		if n > 0 {
			e.delivered(dir, data[:n])
			dst.sendq.advance(n)
		}
		if err != nil {
			obs.ErrorsTotal.WithLabelValues("write").Inc()
			return fmt.Errorf("%w: write %s: %w", ErrFatalIO, dst.s, err)
		}
		if partial || pacer != nil {
			return nil
		}
	}
	return nil
}

func (e *Engine) delivered(dir hexdump.Direction, p []byte) {
	e.cfg.Stats.add(dir, len(p))
	if e.cfg.Dumper != nil {
		e.cfg.Dumper.Dump(dir, p)
	}
}

// flushOnExit makes one unpaced attempt at whatever is still queued.
func (e *Engine) flushOnExit(nw, pr *side) {
	if !nw.recvq.empty() && pr.sendq.empty() {
		nw.recvq.moveTo(&pr.sendq)
	}
	if !pr.recvq.empty() && nw.sendq.empty() {
		pr.recvq.moveTo(&nw.sendq)
	}
	_ = e.flush(nw, hexdump.Sent, nil)
	_ = e.flush(pr, hexdump.Received, nil)
}
