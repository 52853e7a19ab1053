package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/tunplex/internal/testutil/testlog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckListsPeers(t *testing.T) {
	testlog.Start(t)

	out, err := runCLI(t, "check", "--config", filepath.Join("..", "..", "tunplex.example.toml"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected interface line plus 4 peers, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "interface tunplex0 address=10.0.0.1/24") {
		t.Fatalf("unexpected interface line: %q", lines[0])
	}
	for _, want := range []string{
		"peer char:/dev/ttyUSB0",
		"peer sock:192.0.2.10:9000",
		"peer sock-listen:0.0.0.0:9000",
		"peer midi:/dev/ttyAMA0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "encryption=chacha20poly1305") || !strings.Contains(out, " reconnect") {
		t.Fatalf("peer options missing from:\n%s", out)
	}
}

func TestCheckRejectsBadConfig(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[interface]\nname = \"tun0\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := runCLI(t, "check", "--config", path); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestUnknownLogLevel(t *testing.T) {
	testlog.Start(t)

	_, err := runCLI(t, "check", "--log-level", "loud", "--config", filepath.Join("..", "..", "tunplex.example.toml"))
	if err == nil || !strings.Contains(err.Error(), "loud") {
		t.Fatalf("expected log level error, got %v", err)
	}
}
