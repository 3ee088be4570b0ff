package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/morezero/weaver/internal/client"
	"github.com/morezero/weaver/internal/transport"
	"github.com/morezero/weaver/pkg/depcheck"
	"github.com/morezero/weaver/pkg/dispatcher"
)

const mainTestPrefix = "cmd/weaver:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	for _, word := range []string{"status", "onboard", "diagnostics", "deps", "methods", "check-socket", "--severity", "--file"} {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    *invocation
		wantErr bool
	}{
		{name: "empty", args: nil, wantErr: true},
		{name: "help", args: []string{"--help"}, want: &invocation{help: true}},
		{name: "shortcut", args: []string{"status"}, want: &invocation{method: "project-status"}},
		{name: "raw method", args: []string{"find-symbol"}, want: &invocation{method: "find-symbol"}},
		{
			name: "diagnostics filters",
			args: []string{"diagnostics", "--severity", "error", "--file", "a.py", "--file=b.py"},
			want: &invocation{method: "list-diagnostics", params: map[string]any{"severity": "error", "files": []string{"a.py", "b.py"}}},
		},
		{name: "severity equals", args: []string{"list-diagnostics", "--severity=warning"}, want: &invocation{method: "list-diagnostics", params: map[string]any{"severity": "warning"}}},
		{name: "missing value", args: []string{"diagnostics", "--file"}, wantErr: true},
		{name: "unknown flag", args: []string{"status", "--verbose"}, wantErr: true},
		{name: "flag first", args: []string{"--severity", "error"}, wantErr: true},
		{name: "check-socket default", args: []string{"check-socket"}, want: &invocation{checkSocket: true}},
		{name: "check-socket path", args: []string{"check-socket", "/tmp/x.sock"}, want: &invocation{checkSocket: true, socketPath: "/tmp/x.sock"}},
		{name: "check-socket extra", args: []string{"check-socket", "a", "b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s - err = %v, wantErr %v", mainTestPrefix, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s - got %+v, want %+v", mainTestPrefix, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   int
		stderr string
	}{
		{name: "ok", err: nil, want: 0},
		{name: "dependency", err: client.ErrDependency, want: 1, stderr: "dependency"},
		{name: "start", err: &client.StartError{Path: "/tmp/w.sock"}, want: 1, stderr: "weaverd failed to start (socket /tmp/w.sock)"},
		{name: "io", err: errors.New("broken pipe"), want: 1, stderr: "broken pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := exitCode(tt.err, &stderr); got != tt.want {
				t.Errorf("%s - exit = %d, want %d", mainTestPrefix, got, tt.want)
			}
			if !strings.Contains(stderr.String(), tt.stderr) {
				t.Errorf("%s - stderr = %q, want %q", mainTestPrefix, stderr.String(), tt.stderr)
			}
		})
	}
}

func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wm")
	if err != nil {
		t.Fatalf("%s - MkdirTemp: %v", mainTestPrefix, err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// setEnv points the CLI at path with a small start budget.
func setEnv(t *testing.T, path string) {
	t.Setenv("WEAVER_SOCKET_PATH", path)
	t.Setenv("WEAVER_DEBUG", "")
	t.Setenv("WEAVERD_BIN", filepath.Join(filepath.Dir(path), "no-such-weaverd"))
	t.Setenv("WEAVER_PROBE_TIMEOUT", "100ms")
	t.Setenv("WEAVER_START_ATTEMPTS", "2")
	t.Setenv("WEAVER_START_INTERVAL", "10ms")
}

type depErr struct{}

func (depErr) Error() string     { return "serena-agent not found on PATH" }
func (depErr) ErrorCode() string { return string(depcheck.AgentNotFound) }

type status struct {
	Type  string `json:"type"`
	Ready bool   `json:"ready"`
}

func startWorker(t *testing.T, path string) {
	t.Helper()
	reg := dispatcher.NewRegistry()
	reg.MustRegister("project-status", dispatcher.Value(func(context.Context, dispatcher.NoParams) (status, error) {
		return status{Type: "project-status", Ready: true}, nil
	}))
	reg.MustRegister("list-diagnostics", dispatcher.Value(func(_ context.Context, p map[string]any) (map[string]any, error) {
		if p["severity"] == "missing" {
			return nil, depErr{}
		}
		return map[string]any{"type": "echo", "params": p}, nil
	}))

	ln, err := transport.Listen(path)
	if err != nil {
		t.Fatalf("%s - Listen: %v", mainTestPrefix, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		transport.NewServer(transport.NewServerParams{Registry: reg}).Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRun_Call(t *testing.T) {
	path := filepath.Join(shortDir(t), "w.sock")
	setEnv(t, path)
	startWorker(t, path)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"status"}, &stdout, &stderr); code != 0 {
		t.Fatalf("%s - exit = %d, stderr %s", mainTestPrefix, code, stderr.String())
	}
	if stdout.String() != `{"type":"project-status","ready":true}`+"\n" {
		t.Errorf("%s - stdout = %q", mainTestPrefix, stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"diagnostics", "--file", "a.py"}, &stdout, &stderr); code != 0 {
		t.Fatalf("%s - exit = %d, stderr %s", mainTestPrefix, code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"params":{"files":["a.py"]}`) {
		t.Errorf("%s - stdout = %q", mainTestPrefix, stdout.String())
	}
}

func TestRun_DependencyError(t *testing.T) {
	path := filepath.Join(shortDir(t), "w.sock")
	setEnv(t, path)
	startWorker(t, path)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"diagnostics", "--severity", "missing"}, &stdout, &stderr); code != 1 {
		t.Errorf("%s - exit = %d, want 1", mainTestPrefix, code)
	}
	if !strings.Contains(stdout.String(), `"error_code":"AGENT_NOT_FOUND"`) {
		t.Errorf("%s - stdout = %q", mainTestPrefix, stdout.String())
	}
}

func TestRun_StartFailure(t *testing.T) {
	path := filepath.Join(shortDir(t), "w.sock")
	setEnv(t, path)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"status"}, &stdout, &stderr); code != 1 {
		t.Errorf("%s - exit = %d, want 1", mainTestPrefix, code)
	}
	if stdout.Len() != 0 || !strings.Contains(stderr.String(), "weaverd failed to start") {
		t.Errorf("%s - stdout %q, stderr %q", mainTestPrefix, stdout.String(), stderr.String())
	}
}

func TestRun_CheckSocket(t *testing.T) {
	path := filepath.Join(shortDir(t), "w.sock")
	setEnv(t, path)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"check-socket"}, &stdout, &stderr); code != 1 || stdout.String() != "socket unavailable: "+path+"\n" {
		t.Errorf("%s - before start: exit %d, stdout %q", mainTestPrefix, code, stdout.String())
	}

	startWorker(t, path)
	stdout.Reset()
	if code := run([]string{"check-socket", path}, &stdout, &stderr); code != 0 || stdout.String() != "socket available: "+path+"\n" {
		t.Errorf("%s - after start: exit %d, stdout %q", mainTestPrefix, code, stdout.String())
	}
}

func TestRun_BadArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"status", "--bogus"}, &stdout, &stderr); code != 1 {
		t.Errorf("%s - exit = %d, want 1", mainTestPrefix, code)
	}
	if !strings.Contains(stderr.String(), "Usage: weaver") {
		t.Errorf("%s - stderr = %q", mainTestPrefix, stderr.String())
	}
}
