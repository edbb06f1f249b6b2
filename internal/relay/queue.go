package relay

// queue holds bytes waiting to be written. While borrowed it aliases a chunk
// lent by a Stream's reader and must be promoted with own before that chunk
// is released. A drained queue never keeps an allocation.
type queue struct {
	buf   []byte
	off   int
	owned bool
}

func (q *queue) Len() int { return len(q.buf) - q.off }

func (q *queue) empty() bool { return q.Len() == 0 }

func (q *queue) bytes() []byte { return q.buf[q.off:] }

func (q *queue) borrowed() bool { return !q.empty() && !q.owned }

// borrow points an empty queue at p without copying.
func (q *queue) borrow(p []byte) {
	if !q.empty() {
		panic("relay: borrow into a non-empty queue")
	}
	if len(p) == 0 {
		*q = queue{}
		return
	}
	*q = queue{buf: p}
}

// own replaces a borrowed view with a private copy of the pending bytes.
func (q *queue) own() {
	if !q.borrowed() {
		return
	}
	cp := make([]byte, q.Len())
	copy(cp, q.bytes())
	*q = queue{buf: cp, owned: true}
}

// advance drops n written bytes; reaching zero releases the allocation.
func (q *queue) advance(n int) {
	q.off += n
	if q.off >= len(q.buf) {
		*q = queue{}
	}
}

// moveTo hands the pending bytes to an empty dst, keeping their ownership
// mode, and leaves q empty.
func (q *queue) moveTo(dst *queue) {
	if !dst.empty() {
		panic("relay: move into a non-empty queue")
	}
	*dst = *q
	*q = queue{}
}
