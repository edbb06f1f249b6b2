package telnet

import (
	"bytes"
	"errors"
	"testing"
)

func TestFilterPlainData(t *testing.T) {
	in := []byte("hello world\r\n\x00\x01\xfe")
	buf := append([]byte(nil), in...)
	var reply bytes.Buffer
	var f Filter
	n, err := f.Filter(buf, &reply)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], in) {
		t.Errorf("plain data changed: %q", buf[:n])
	}
	if reply.Len() != 0 {
		t.Errorf("unexpected reply %v", reply.Bytes())
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		wantData  []byte
		wantReply []byte
	}{
		{"will", []byte{'a', IAC, WILL, 1, 'b'}, []byte("ab"), []byte{IAC, DONT, 1}},
		{"wont", []byte{IAC, WONT, 3}, []byte{}, []byte{IAC, DONT, 3}},
		{"do", []byte{'x', IAC, DO, 24}, []byte("x"), []byte{IAC, WONT, 24}},
		{"dont", []byte{IAC, DONT, 31, 'y'}, []byte("y"), []byte{IAC, WONT, 31}},
		{"escaped iac", []byte{'a', IAC, IAC, 'b'}, []byte{'a', IAC, 'b'}, nil},
		{"nop and ga dropped", []byte{IAC, NOP, 'a', IAC, GA, 'b'}, []byte("ab"), nil},
		{"sb marker dropped", []byte{IAC, SB, 'c'}, []byte("c"), nil},
		{"several negotiations", []byte{IAC, DO, 1, IAC, WILL, 3, 'z'}, []byte("z"), []byte{IAC, WONT, 1, IAC, DONT, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reply bytes.Buffer
			var f Filter
			buf := append([]byte(nil), tt.in...)
			n, err := f.Filter(buf, &reply)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf[:n], tt.wantData) {
				t.Errorf("data = %v, want %v", buf[:n], tt.wantData)
			}
			if !bytes.Equal(reply.Bytes(), tt.wantReply) {
				t.Errorf("reply = %v, want %v", reply.Bytes(), tt.wantReply)
			}
			if f.Pending() != 0 {
				t.Errorf("Pending() = %d after complete commands", f.Pending())
			}
		})
	}
}

// TestFilterSplitCommand feeds a stream in every possible two-chunk split and
// checks the output matches the unsplit result.
func TestFilterSplitCommand(t *testing.T) {
	stream := []byte{'h', IAC, WILL, 1, 'i', IAC, IAC, IAC, DO, 3, '!'}
	wantData := []byte{'h', 'i', IAC, '!'}
	wantReply := []byte{IAC, DONT, 1, IAC, WONT, 3}

	for cut := 0; cut <= len(stream); cut++ {
		var f Filter
		var reply bytes.Buffer
		var got []byte

		a := append([]byte(nil), stream[:cut]...)
		n, err := f.Filter(a, &reply)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, a[:n]...)

		b := append([]byte(nil), stream[cut:]...)
		n, err = f.Filter(b, &reply)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, b[:n]...)

		if !bytes.Equal(got, wantData) {
			t.Errorf("cut %d: data = %v, want %v", cut, got, wantData)
		}
		if !bytes.Equal(reply.Bytes(), wantReply) {
			t.Errorf("cut %d: reply = %v, want %v", cut, reply.Bytes(), wantReply)
		}
		if f.Replies != 2 {
			t.Errorf("cut %d: Replies = %d, want 2", cut, f.Replies)
		}
	}
}

func TestFilterPendingAcrossCalls(t *testing.T) {
	var f Filter
	buf := []byte{'a', IAC, DO}
	n, _ := f.Filter(buf, nil)
	if n != 1 || f.Pending() != 2 {
		t.Fatalf("n = %d, Pending() = %d; want 1, 2", n, f.Pending())
	}
	var reply bytes.Buffer
	buf = []byte{5, 'b'}
	n, _ = f.Filter(buf, &reply)
	if string(buf[:n]) != "b" {
		t.Errorf("data = %q, want \"b\"", buf[:n])
	}
	if !bytes.Equal(reply.Bytes(), []byte{IAC, WONT, 5}) {
		t.Errorf("reply = %v", reply.Bytes())
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestFilterReplyError(t *testing.T) {
	var f Filter
	buf := []byte{IAC, WILL, 1, 'a'}
	n, err := f.Filter(buf, failWriter{})
	if err == nil {
		t.Fatal("expected reply write error")
	}
	if string(buf[:n]) != "a" {
		t.Errorf("data after failed reply = %q, want \"a\"", buf[:n])
	}
}
