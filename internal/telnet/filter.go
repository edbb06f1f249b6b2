// Package telnet answers telnet option negotiation by refusing every option,
// and strips protocol commands from the data stream.
package telnet

import "io"

// Telnet command bytes (RFC 854).
const (
	SE   byte = 240
	NOP  byte = 241
	DM   byte = 242
	BRK  byte = 243
	IP   byte = 244
	AO   byte = 245
	AYT  byte = 246
	EC   byte = 247
	EL   byte = 248
	GA   byte = 249
	SB   byte = 250
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255
)

// Filter holds the partial command carried between chunks. The zero value is
// ready to use. A Filter belongs to a single receive stream.
type Filter struct {
	cmd [3]byte
	n   int

	// Replies counts negotiation answers written so far.
	Replies int
}

// Filter scans buf in place, removes telnet commands, writes refusals for
// option negotiation to reply, and returns the new length of buf. Data bytes
// keep their order and are compacted to the front of buf.
func (f *Filter) Filter(buf []byte, reply io.Writer) (int, error) {
	var firstErr error
	out := 0
	for _, b := range buf {
		if f.n == 0 {
			if b != IAC {
				buf[out] = b
				out++
				continue
			}
			f.cmd[0] = b
			f.n = 1
			continue
		}

		f.cmd[f.n] = b
		f.n++
		switch f.cmd[1] {
		case WILL, WONT:
			if f.n < 3 {
				continue
			}
			if err := f.answer(reply, DONT, f.cmd[2]); err != nil && firstErr == nil {
				firstErr = err
			}
		case DO, DONT:
			if f.n < 3 {
				continue
			}
			if err := f.answer(reply, WONT, f.cmd[2]); err != nil && firstErr == nil {
				firstErr = err
			}
		case IAC:
			buf[out] = IAC
			out++
		default:
			// two-byte command (NOP, GA, SB, ...): dropped
		}
		f.n = 0
	}
	return out, firstErr
}

// Pending reports how many bytes of an incomplete command are buffered.
func (f *Filter) Pending() int { return f.n }

func (f *Filter) answer(w io.Writer, verb, opt byte) error {
	f.Replies++
	if w == nil {
		return nil
	}
	_, err := w.Write([]byte{IAC, verb, opt})
	return err
}
