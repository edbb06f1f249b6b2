package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration derived from flags and an optional
// YAML profile. Flags given on the command line win over the profile.
type Config struct {
	Exec         string  `yaml:"exec"`
	PTY          bool    `yaml:"pty"`
	Interval     seconds `yaml:"interval"`
	Listen       bool    `yaml:"listen"`
	Tunnel       string  `yaml:"tunnel"`
	Numeric      bool    `yaml:"dont_resolve"`
	Output       string  `yaml:"output"`
	LocalPort    string  `yaml:"local_port"`
	Random       bool    `yaml:"randomize"`
	Source       string  `yaml:"source"`
	TunnelSource string  `yaml:"tunnel_source"`
	TunnelPort   string  `yaml:"tunnel_port"`
	Telnet       bool    `yaml:"telnet"`
	UDP          bool    `yaml:"udp"`
	Verbose      count   `yaml:"verbose"`
	Hexdump      bool    `yaml:"hexdump"`
	Wait         seconds `yaml:"wait"`
	Zero         bool    `yaml:"zero"`
	Raw          bool    `yaml:"raw"`
	MetricsAddr  string  `yaml:"metrics"`
	LogFormat    string  `yaml:"log_format"`

	ConfigFile string `yaml:"-"`
	Help       bool   `yaml:"-"`
	Version    bool   `yaml:"-"`

	// Args are the positional arguments: hostname then port specs.
	Args []string `yaml:"-"`
}

// usageError marks command line mistakes; the driver adds a pointer to
// --help.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// seconds is a duration flag that takes plain seconds ("3", "0.5") or a Go
// duration ("1500ms").
type seconds time.Duration

func (s *seconds) String() string {
	if s == nil {
		return "0s"
	}
	return time.Duration(*s).String()
}

func (s *seconds) Set(v string) error {
	d, err := parseSeconds(v)
	if err != nil {
		return err
	}
	*s = seconds(d)
	return nil
}

func (s *seconds) UnmarshalYAML(n *yaml.Node) error {
	return s.Set(n.Value)
}

func parseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("negative time %q", v)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative time %q", v)
	}
	return d, nil
}

// count is a boolean-style flag that counts repetitions (-v -v). A numeric
// value sets the level directly.
type count int

func (c *count) String() string {
	if c == nil {
		return "0"
	}
	return strconv.Itoa(int(*c))
}

func (c *count) IsBoolFlag() bool { return true }

func (c *count) Set(v string) error {
	switch v {
	case "true":
		*c++
		return nil
	case "false":
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %q", v)
	}
	*c = count(n)
	return nil
}

// newFlagSet registers every option on cfg, short and long names sharing
// one destination.
func newFlagSet(cfg *Config, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("gonetcat", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {}

	str := func(p *string, short, long, def, usage string) {
		if short != "" {
			fs.StringVar(p, short, def, usage)
		}
		fs.StringVar(p, long, def, usage)
	}
	boolean := func(p *bool, short, long, usage string) {
		if short != "" {
			fs.BoolVar(p, short, false, usage)
		}
		fs.BoolVar(p, long, false, usage)
	}
	value := func(v flag.Value, short, long, usage string) {
		if short != "" {
			fs.Var(v, short, usage)
		}
		fs.Var(v, long, usage)
	}

	str(&cfg.Exec, "e", "exec", "", "program to exec after connect")
	boolean(&cfg.PTY, "", "pty", "run the exec program on a pseudo-terminal")
	value(&cfg.Interval, "i", "interval", "delay interval for lines sent, ports scanned")
	boolean(&cfg.Listen, "l", "listen", "listen mode, for inbound connects")
	str(&cfg.Tunnel, "L", "tunnel", "", "forward local port to remote address")
	boolean(&cfg.Numeric, "n", "dont-resolve", "numeric-only IP addresses, no DNS")
	str(&cfg.Output, "o", "output", "", "output hexdump traffic to FILE (implies -x)")
	str(&cfg.LocalPort, "p", "local-port", "", "local port number")
	boolean(&cfg.Random, "r", "randomize", "randomize remote ports")
	str(&cfg.Source, "s", "source", "", "local source address (ip or hostname)")
	str(&cfg.TunnelSource, "", "tunnel-source", "", "local source address for the tunnel leg")
	str(&cfg.TunnelPort, "", "tunnel-port", "", "local source port for the tunnel leg")
	boolean(&cfg.Telnet, "t", "telnet", "answer using TELNET negotiation")
	boolean(&cfg.UDP, "u", "udp", "UDP mode")
	value(&cfg.Verbose, "v", "verbose", "verbose (use twice to be more verbose)")
	boolean(&cfg.Version, "V", "version", "output version information and exit")
	boolean(&cfg.Hexdump, "x", "hexdump", "hexdump incoming and outgoing traffic")
	value(&cfg.Wait, "w", "wait", "timeout for connects and first contact")
	boolean(&cfg.Zero, "z", "zero", "zero-I/O mode (used for scanning)")
	boolean(&cfg.Help, "h", "help", "display help and exit")
	boolean(&cfg.Raw, "", "raw", "put the terminal in raw mode while relaying")
	str(&cfg.ConfigFile, "", "config", "", "read option defaults from a YAML file")
	str(&cfg.MetricsAddr, "", "metrics", "", "serve Prometheus metrics on ADDRESS")
	str(&cfg.LogFormat, "", "log-format", "text", "diagnostics as text or json")
	return fs
}

var (
	openRange  = regexp.MustCompile(`^-[0-9]+$`)
	stackedVee = regexp.MustCompile(`^-v{2,}$`)
)

// parseConfig parses args the way getopt does: options and positional
// arguments may be interleaved, "-vvv" counts each v, and "-N" is a port
// range with an open lower bound rather than an option.
func parseConfig(args []string, out io.Writer) (Config, error) {
	var cfg Config
	fs := newFlagSet(&cfg, out)

	rest := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case openRange.MatchString(a):
			rest = append(rest, "1"+a)
		case stackedVee.MatchString(a):
			for range len(a) - 1 {
				rest = append(rest, "-v")
			}
		default:
			rest = append(rest, a)
		}
	}
	for {
		if err := fs.Parse(rest); err != nil {
			return cfg, &usageError{err}
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		cfg.Args = append(cfg.Args, rest[0])
		rest = rest[1:]
	}

	if cfg.ConfigFile != "" {
		if err := applyProfile(&cfg, fs); err != nil {
			return cfg, err
		}
	}
	if cfg.Output != "" {
		cfg.Hexdump = true
	}
	if cfg.PTY && cfg.Exec == "" {
		return cfg, &usageError{errors.New("--pty needs --exec")}
	}
	return cfg, nil
}

// applyProfile loads cfg.ConfigFile over the flag defaults, then restores
// every flag that was set explicitly.
func applyProfile(cfg *Config, fs *flag.FlagSet) error {
	b, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	args, file := cfg.Args, cfg.ConfigFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", file, err)
	}
	cfg.Args, cfg.ConfigFile = args, file
	for name, v := range explicit {
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("restore -%s: %w", name, err)
		}
	}
	return nil
}
