package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/matst80/gonetcat/internal/obs"
	"github.com/matst80/gonetcat/internal/relay"
)

const execGrace = time.Second

// startExec runs prog and returns its standard streams as a relay peer.
// Output and errors of the program both go to the network. With usePTY the
// program gets a pseudo-terminal instead of pipes.
func startExec(ctx context.Context, prog string, usePTY bool) (*relay.Stream, error) {
	argv := strings.Fields(prog)
	if len(argv) == 0 {
		return nil, errors.New("empty --exec program")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	name := "exec " + argv[0]

	if usePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("exec %s failed: %w", argv[0], err)
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			if err := pty.InheritSize(os.Stdin, f); err != nil {
				obs.Debug("exec.pty.size", obs.Fields{"err": err.Error()})
			}
		}
		obs.Debug("exec.start", obs.Fields{"prog": prog, "pid": cmd.Process.Pid, "pty": true})
		p := &execPeer{cmd: cmd, closers: []io.Closer{f}}
		return relay.NewStream(name, ptyReader{f}, f, p), nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("exec %s failed: %w", argv[0], err)
	}
	_ = w.Close()
	obs.Debug("exec.start", obs.Fields{"prog": prog, "pid": cmd.Process.Pid})
	p := &execPeer{cmd: cmd, closers: []io.Closer{stdin, r}}
	return relay.NewStream(name, r, stdin, p), nil
}

// execPeer closes the program's streams and reaps it, killing it if it has
// not exited within execGrace.
type execPeer struct {
	cmd     *exec.Cmd
	closers []io.Closer
}

func (p *execPeer) Close() error {
	for _, c := range p.closers {
		_ = c.Close()
	}
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		obs.Debug("exec.exit", obs.Fields{"pid": p.cmd.Process.Pid, "err": errString(err)})
		return nil
	case <-time.After(execGrace):
		_ = p.cmd.Process.Kill()
		<-done
		obs.Debug("exec.killed", obs.Fields{"pid": p.cmd.Process.Pid})
		return nil
	}
}

// ptyReader reports the EIO a pty master returns once the child side is
// gone as a plain end of stream.
type ptyReader struct{ f *os.File }

func (r ptyReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
