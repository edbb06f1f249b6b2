package obs

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	mu        sync.Mutex
	base      = log.New(os.Stderr, "", 0)
	verbosity int
	jsonOut   bool
)

// SetOutput redirects log lines. Data streams own stdout, so the default is
// stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetVerbosity sets how chatty the logger is: errors are always written,
// Info needs at least 1 and Debug at least 2.
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	verbosity = v
}

// Verbosity returns the current level set by SetVerbosity.
func Verbosity() int {
	mu.Lock()
	defer mu.Unlock()
	return verbosity
}

// SetFormat selects "json" lines or the default "text" format.
func SetFormat(format string) error {
	mu.Lock()
	defer mu.Unlock()
	switch format {
	case "json":
		jsonOut = true
	case "text", "":
		jsonOut = false
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

type Fields map[string]any

func logWith(level, msg string, f Fields) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		f = Fields{}
	}
	if !jsonOut {
		base.Println(formatText(level, msg, f))
		return
	}
	f["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	f["level"] = level
	f["msg"] = msg
	b, err := json.Marshal(f)
	if err != nil {
		base.Printf("{\"level\":\"error\",\"msg\":\"log marshal failure\",\"err\":%q}", err.Error())
		return
	}
	base.Println(string(b))
}

func formatText(level, msg string, f Fields) string {
	var sb strings.Builder
	sb.WriteString(level)
	sb.WriteByte(' ')
	sb.WriteString(msg)
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, f[k])
	}
	return sb.String()
}

func enabled(level int) bool {
	mu.Lock()
	defer mu.Unlock()
	return verbosity >= level
}

func Info(msg string, f Fields) {
	if enabled(1) {
		logWith("info", msg, f)
	}
}

func Error(msg string, f Fields) { logWith("error", msg, f) }

func Debug(msg string, f Fields) {
	if enabled(2) {
		logWith("debug", msg, f)
	}
}

// Say writes a plain sentence for the user once verbosity reaches level. In
// json format it becomes a "notice" event carrying the text.
func Say(level int, format string, args ...any) {
	if !enabled(level) {
		return
	}
	text := fmt.Sprintf(format, args...)
	mu.Lock()
	j := jsonOut
	mu.Unlock()
	if j {
		logWith("info", "notice", Fields{"text": text})
		return
	}
	mu.Lock()
	defer mu.Unlock()
	base.Println(text)
}
