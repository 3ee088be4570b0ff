package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/morezero/weaver/pkg/dispatcher"
	"github.com/morezero/weaver/pkg/schema"
)

const callerTestPrefix = "client:caller_test"

type depError struct{ code string }

func (e *depError) Error() string     { return "serena-agent not found on PATH" }
func (e *depError) ErrorCode() string { return e.code }

func callerRegistry() *dispatcher.Registry {
	reg := dispatcher.NewRegistry()
	reg.MustRegister("params", dispatcher.Raw(func(_ context.Context, p map[string]any) ([]byte, error) {
		data, err := json.Marshal(map[string]any{"type": "params", "params": p, "nil": p == nil})
		return data, err
	}))
	reg.MustRegister("items", dispatcher.Stream(func(_ context.Context, _ dispatcher.NoParams, send func(schema.ProjectStatus) error) error {
		for i := 0; i < 2; i++ {
			if err := send(schema.ProjectStatus{Type: schema.KindProjectStatus, PID: i, Ready: true}); err != nil {
				return err
			}
		}
		return nil
	}))
	reg.MustRegister("coded", dispatcher.Value(func(context.Context, dispatcher.NoParams) (schema.ProjectStatus, error) {
		return schema.ProjectStatus{}, &depError{code: "AGENT_NOT_FOUND"}
	}))
	reg.MustRegister("legacy", dispatcher.Stream(func(_ context.Context, _ dispatcher.NoParams, send func(map[string]string) error) error {
		if err := send(map[string]string{"type": "note"}); err != nil {
			return err
		}
		return errors.New("Missing dependency: ruff")
	}))
	reg.MustRegister("plain-error", dispatcher.Value(func(context.Context, dispatcher.NoParams) (schema.ProjectStatus, error) {
		return schema.ProjectStatus{}, errors.New("index corrupted")
	}))
	return reg
}

func newTestCaller(t *testing.T) (*Caller, string) {
	t.Helper()
	path := filepath.Join(shortDir(t), "w.sock")
	sp := &inProcessSpawner{t: t, reg: callerRegistry()}
	sup := NewSupervisor(NewSupervisorParams{
		Spawner:      sp,
		ProbeTimeout: 100 * time.Millisecond,
		Attempts:     200,
		Interval:     10 * time.Millisecond,
	})
	return NewCaller(sup), path
}

func TestCall_AutoStartsAndStreams(t *testing.T) {
	c, path := newTestCaller(t)
	var out bytes.Buffer
	if err := c.Call(context.Background(), "items", nil, path, &out); err != nil {
		t.Fatalf("%s - Call: %v", callerTestPrefix, err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("%s - got %d lines: %q", callerTestPrefix, len(lines), out.String())
	}
	for i, line := range lines {
		if !strings.Contains(line, `"type":"project-status"`) {
			t.Errorf("%s - line %d = %s", callerTestPrefix, i, line)
		}
	}
}

func TestCall_NilParamsSendEmptyObject(t *testing.T) {
	c, path := newTestCaller(t)
	var out bytes.Buffer
	if err := c.Call(context.Background(), "params", nil, path, &out); err != nil {
		t.Fatalf("%s - Call: %v", callerTestPrefix, err)
	}
	if !strings.Contains(out.String(), `"nil":false`) || !strings.Contains(out.String(), `"params":{}`) {
		t.Errorf("%s - output = %s", callerTestPrefix, out.String())
	}
}

func TestCall_ParamsForwarded(t *testing.T) {
	c, path := newTestCaller(t)
	var out bytes.Buffer
	err := c.Call(context.Background(), "params", map[string]any{"severity": "error"}, path, &out)
	if err != nil {
		t.Fatalf("%s - Call: %v", callerTestPrefix, err)
	}
	if !strings.Contains(out.String(), `"severity":"error"`) {
		t.Errorf("%s - output = %s", callerTestPrefix, out.String())
	}
}

func TestCall_Classification(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		wantDep bool
		wantOut string
	}{
		{name: "structured code", method: "coded", wantDep: true, wantOut: `"error_code":"AGENT_NOT_FOUND"`},
		{name: "legacy message after items", method: "legacy", wantDep: true, wantOut: `Missing dependency: ruff`},
		{name: "ordinary error", method: "plain-error", wantDep: false, wantOut: `index corrupted`},
		{name: "unknown method", method: "nope", wantDep: false, wantOut: `unknown method: nope`},
	}

	c, path := newTestCaller(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := c.Call(context.Background(), tt.method, nil, path, &out)
			if got := errors.Is(err, ErrDependency); got != tt.wantDep {
				t.Errorf("%s - ErrDependency = %v (err %v), want %v", callerTestPrefix, got, err, tt.wantDep)
			}
			if !tt.wantDep && err != nil {
				t.Errorf("%s - unexpected err: %v", callerTestPrefix, err)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("%s - output %q missing %q", callerTestPrefix, out.String(), tt.wantOut)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestCall_SinkFailure(t *testing.T) {
	c, path := newTestCaller(t)
	err := c.Call(context.Background(), "items", nil, path, failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "stdout closed") {
		t.Errorf("%s - err = %v, want sink failure", callerTestPrefix, err)
	}
}

func TestCall_StartFailure(t *testing.T) {
	path := filepath.Join(shortDir(t), "w.sock")
	sup := NewSupervisor(NewSupervisorParams{Spawner: noopSpawner{}, Attempts: 2, Interval: 5 * time.Millisecond})
	var out bytes.Buffer
	err := NewCaller(sup).Call(context.Background(), "items", nil, path, &out)

	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Errorf("%s - err = %v, want *StartError", callerTestPrefix, err)
	}
	if out.Len() != 0 {
		t.Errorf("%s - unexpected output %q", callerTestPrefix, out.String())
	}
}
