package hexdump

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Direction marks which way dumped bytes travelled.
type Direction byte

const (
	Sent     Direction = '>'
	Received Direction = '<'
)

// Dumper renders traffic in GNU netcat's hexdump layout: a "Sent N bytes"
// or "Received N bytes" header followed by 16 byte rows.
type Dumper struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// New returns a Dumper writing to w.
func New(w io.Writer) *Dumper {
	return &Dumper{w: bufio.NewWriter(w)}
}

// Dump writes a header line and the hex rendering of p. Errors writing to
// the sink are not reported; the dump is advisory.
func (d *Dumper) Dump(dir Direction, p []byte) {
	if len(p) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch dir {
	case Sent:
		fmt.Fprintf(d.w, "Sent %d bytes to the socket\n", len(p))
	default:
		fmt.Fprintf(d.w, "Received %d bytes from the socket\n", len(p))
	}
	writeLines(d.w, p)
	_ = d.w.Flush()
}

func writeLines(w *bufio.Writer, p []byte) {
	var line [78]byte
	for off := 0; off < len(p); off += 16 {
		end := min(off+16, len(p))
		renderLine(&line, off, p[off:end])
		w.Write(line[:])
		w.WriteByte('\n')
	}
}

const hexDigits = "0123456789ABCDEF"

// renderLine fills a 78 byte line: 8 digit offset, two spaces, 16 hex
// columns with an extra space after every fourth, then the ASCII column.
func renderLine(line *[78]byte, off int, chunk []byte) {
	i := 0
	for shift := 28; shift >= 0; shift -= 4 {
		line[i] = hexDigits[(off>>shift)&0xf]
		i++
	}
	line[i], line[i+1] = ' ', ' '
	i += 2
	ascii := line[62:]
	for col := 0; col < 16; col++ {
		if col < len(chunk) {
			b := chunk[col]
			line[i], line[i+1], line[i+2] = hexDigits[b>>4], hexDigits[b&0xf], ' '
			if b < 32 || b > 126 {
				ascii[col] = '.'
			} else {
				ascii[col] = b
			}
		} else {
			line[i], line[i+1], line[i+2] = ' ', ' ', ' '
			ascii[col] = ' '
		}
		i += 3
		if (col+1)%4 == 0 {
			line[i] = ' '
			i++
		}
	}
}
