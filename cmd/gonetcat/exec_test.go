package main

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/matst80/gonetcat/internal/relay"
)

type recorder struct{ got []byte }

func (r *recorder) Write(p []byte) (int, error) {
	r.got = append(r.got, p...)
	return len(p), nil
}
func (r *recorder) Close() error { return nil }

func TestExecPeer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs echo")
	}
	ctx := context.Background()
	peer, err := startExec(ctx, "echo hi", false)
	if err != nil {
		t.Skipf("exec unavailable: %v", err)
	}
	defer peer.Close()

	// echo exits at once; its end of stream ends the session
	var rec recorder
	network := relay.NewStream("net", nil, &rec, &rec)
	if err := relay.New(relay.Config{Tunnel: true}).Run(ctx, network, peer); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(rec.got) != "hi\n" {
		t.Errorf("program output = %q", rec.got)
	}
}

func TestExecPTYStops(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	peer, err := startExec(context.Background(), "cat", true)
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- peer.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("closing the pty program hung")
	}
}

func TestExecEmpty(t *testing.T) {
	if _, err := startExec(context.Background(), "  ", false); err == nil {
		t.Error("empty program accepted")
	}
}
