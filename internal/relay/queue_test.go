package relay

import "testing"

func TestQueueBorrowOwnDrain(t *testing.T) {
	scratch := []byte("hello")
	var q queue
	q.borrow(scratch)
	if !q.borrowed() || q.Len() != 5 {
		t.Fatalf("after borrow: borrowed=%v len=%d", q.borrowed(), q.Len())
	}

	q.advance(2)
	q.own()
	if q.borrowed() || !q.owned {
		t.Fatal("own did not promote the queue")
	}
	copy(scratch, "XXXXX")
	if string(q.bytes()) != "llo" {
		t.Errorf("owned bytes = %q, want %q", q.bytes(), "llo")
	}

	q.advance(3)
	if !q.empty() || q.owned || q.buf != nil {
		t.Errorf("drained queue kept state: %+v", q)
	}
}

func TestQueueDrainIdempotent(t *testing.T) {
	var recvq, sendq queue
	recvq.borrow([]byte("abc"))
	recvq.moveTo(&sendq)
	if !recvq.empty() || sendq.Len() != 3 {
		t.Fatalf("moveTo: recvq=%d sendq=%d", recvq.Len(), sendq.Len())
	}
	sendq.advance(sendq.Len())
	for i := 0; i < 2; i++ {
		recvq.borrow(nil)
		if !recvq.empty() || !sendq.empty() || recvq.buf != nil || sendq.buf != nil {
			t.Fatalf("pass %d: queues not empty: %+v %+v", i, recvq, sendq)
		}
		recvq.own()
		if recvq.owned {
			t.Fatal("own on an empty queue allocated")
		}
	}
}

func TestQueueOwnKeepsOwned(t *testing.T) {
	var q queue
	q.borrow([]byte("data"))
	q.own()
	first := &q.buf[0]
	q.own()
	if &q.buf[0] != first {
		t.Error("own copied an already owned queue")
	}
}

func TestQueueBorrowIntoNonEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	var q queue
	q.borrow([]byte("a"))
	q.borrow([]byte("b"))
}
