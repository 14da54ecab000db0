package logging_test

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/logging"
)

func TestNew_consoleLevels(t *testing.T) {
	tests := []struct {
		verbose   bool
		wantDebug bool
	}{
		{false, false},
		{true, true},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		logger, closeFn, err := logging.New(logging.Options{Verbose: tc.verbose, Console: &buf})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		logger.Debug("debug record")
		logger.Info("info record")
		closeFn()

		out := buf.String()
		if !strings.Contains(out, "info record") {
			t.Errorf("verbose=%v: info record missing from %q", tc.verbose, out)
		}
		if got := strings.Contains(out, "debug record"); got != tc.wantDebug {
			t.Errorf("verbose=%v: debug record present=%v, want %v", tc.verbose, got, tc.wantDebug)
		}
	}
}

func TestNew_fileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "git-audit.log")
	for _, target := range []string{path, "file://" + path} {
		var console bytes.Buffer
		logger, closeFn, err := logging.New(logging.Options{Target: target, Console: &console})
		if err != nil {
			t.Fatalf("New(%q): %v", target, err)
		}
		logger.Named("workflow").Warn("transaction failed", zap.String("tx_hash", "0xabc"))
		closeFn()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records, want 2:\n%s", len(lines), b)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	want := map[string]any{
		"level":   "warn",
		"target":  "git-audit.workflow",
		"message": "transaction failed",
		"tx_hash": "0xabc",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	if _, ok := rec["time"]; !ok {
		t.Error("record has no time")
	}
}

func TestNew_unixTarget(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "log.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unix datagram sockets unavailable: %v", err)
	}
	defer conn.Close()

	var console bytes.Buffer
	logger, closeFn, err := logging.New(logging.Options{Target: "unix://" + sock, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("first")
	logger.Info("second")
	closeFn()

	buf := make([]byte, 4096)
	for _, want := range []string{"first", "second"} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("reading datagram: %v", err)
		}
		var rec map[string]any
		if err := json.Unmarshal(buf[:n], &rec); err != nil {
			t.Fatalf("datagram is not one JSON record: %v (%q)", err, buf[:n])
		}
		if rec["message"] != want {
			t.Errorf("message = %v, want %s", rec["message"], want)
		}
	}
}

func TestNew_badTarget(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such.sock")
	if _, _, err := logging.New(logging.Options{Target: "unix://" + missing, Console: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for an absent socket")
	}
	if _, _, err := logging.New(logging.Options{Target: "unix://", Console: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for a socket URL without a path")
	}
}

func TestStart_attachLater(t *testing.T) {
	var console bytes.Buffer
	logger, target := logging.Start(logging.Options{Verbose: true, Console: &console})
	defer target.Close()

	early := logger.Named("settings").With(zap.String("layer", "global"))
	early.Debug("before attach")

	path := filepath.Join(t.TempDir(), "git-audit.log")
	if err := target.Attach(path); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	early.Debug("after attach")
	target.Close()
	early.Info("after close")

	if !strings.Contains(console.String(), "before attach") || !strings.Contains(console.String(), "after close") {
		t.Errorf("console = %q", console.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d records, want 1:\n%s", len(lines), b)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["message"] != "after attach" || rec["target"] != "git-audit.settings" || rec["layer"] != "global" || rec["level"] != "debug" {
		t.Errorf("record = %v", rec)
	}
}
