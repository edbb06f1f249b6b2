package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/matst80/gonetcat/internal/obs"
	"github.com/matst80/gonetcat/internal/relay"
	"github.com/matst80/gonetcat/internal/usage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	prog := filepath.Base(os.Args[0])
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		var ue *usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "Error: %v\nTry `%s --help' for more information.\n", ue, prog)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	switch {
	case cfg.Help:
		_ = usage.Render(os.Stdout, "help", map[string]any{"Program": prog})
		return 0
	case cfg.Version:
		_ = usage.Render(os.Stdout, "version", map[string]any{"Program": prog})
		return 0
	}

	obs.SetVerbosity(int(cfg.Verbose))
	if err := obs.SetFormat(cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	obs.Debug("gonetcat.start", obs.Fields{"args": cfg.Args, "listen": cfg.Listen, "tunnel": cfg.Tunnel, "udp": cfg.UDP})

	if cfg.MetricsAddr != "" {
		go startMetricsServer(cfg.MetricsAddr)
	}

	restore := func() {}
	if cfg.Raw {
		if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
			old, err := term.MakeRaw(fd)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: raw mode: %v\n", err)
				return 1
			}
			restore = func() { _ = term.Restore(fd, old) }
			defer restore()
		} else {
			obs.Debug("raw.skipped", obs.Fields{"reason": "stdin is not a terminal"})
		}
	}

	// SIGINT ends the session and reports totals; SIGTERM leaves at once.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	terms := make(chan os.Signal, 1)
	signal.Notify(terms, syscall.SIGTERM)
	go func() {
		<-terms
		restore()
		fmt.Fprintln(os.Stderr, "Terminated")
		os.Exit(1)
	}()

	s := &session{
		cfg:    cfg,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stats:  &relay.Stats{},
	}
	activeStats.Store(s.stats)

	code := s.run(ctx)
	if ctx.Err() != nil {
		printTotals(os.Stderr, s.stats)
		return 1
	}
	if cfg.Verbose >= 2 {
		printTotals(os.Stderr, s.stats)
	}
	return code
}

func printTotals(w io.Writer, st *relay.Stats) {
	fmt.Fprintf(w, "Exiting.\nTotal received bytes: %d\nTotal sent bytes: %d\n", st.Received(), st.Sent())
}
