package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestVerbosityGates(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetVerbosity(0)

	SetVerbosity(0)
	Info("hidden.info", nil)
	Debug("hidden.debug", nil)
	Error("shown.error", Fields{"err": "boom"})
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info/debug written at verbosity 0: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "error shown.error err=boom") {
		t.Errorf("error line missing: %q", buf.String())
	}

	buf.Reset()
	SetVerbosity(1)
	Info("shown.info", nil)
	Debug("hidden.debug", nil)
	if !strings.Contains(buf.String(), "shown.info") || strings.Contains(buf.String(), "hidden") {
		t.Errorf("verbosity 1 output: %q", buf.String())
	}

	buf.Reset()
	SetVerbosity(2)
	Debug("shown.debug", nil)
	if !strings.Contains(buf.String(), "shown.debug") {
		t.Errorf("verbosity 2 output: %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	if err := SetFormat("json"); err != nil {
		t.Fatal(err)
	}
	defer SetFormat("text")

	Error("connect.refused", Fields{"port": 80})
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("not a JSON line: %q: %v", buf.String(), err)
	}
	if m["msg"] != "connect.refused" || m["level"] != "error" || m["port"] != float64(80) {
		t.Errorf("unexpected fields: %v", m)
	}
	if _, ok := m["ts"]; !ok {
		t.Error("missing ts field")
	}
}

func TestSetFormatUnknown(t *testing.T) {
	if err := SetFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTextFieldsSorted(t *testing.T) {
	got := formatText("info", "listen.accept", Fields{"remote": "1.2.3.4:5", "local": ":80"})
	want := "info listen.accept local=:80 remote=1.2.3.4:5"
	if got != want {
		t.Errorf("formatText = %q, want %q", got, want)
	}
}

func TestSay(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetVerbosity(0)

	SetVerbosity(1)
	Say(2, "Unwanted connection from %s (refused)", "10.0.0.1:5")
	Say(1, "Connection from %s", "10.0.0.1:4")
	if got := buf.String(); got != "Connection from 10.0.0.1:4\n" {
		t.Errorf("text output = %q", got)
	}

	buf.Reset()
	if err := SetFormat("json"); err != nil {
		t.Fatal(err)
	}
	defer SetFormat("text")
	Say(1, "open")
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if m["msg"] != "notice" || m["text"] != "open" {
		t.Errorf("json notice = %v", m)
	}
}
