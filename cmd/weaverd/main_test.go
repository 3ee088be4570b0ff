package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/weaverd:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	for _, word := range []string{"serve", "--socket-path", "migrate", "ensure-db", "import", "clear", "DATABASE_URL", "WEAVERD_BACKEND"} {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestParseServeArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "none", args: nil, want: ""},
		{name: "separate", args: []string{"--socket-path", "/tmp/w.sock"}, want: "/tmp/w.sock"},
		{name: "equals", args: []string{"--socket-path=/tmp/w.sock"}, want: "/tmp/w.sock"},
		{name: "missing value", args: []string{"--socket-path"}, wantErr: true},
		{name: "empty equals", args: []string{"--socket-path="}, wantErr: true},
		{name: "unknown", args: []string{"--verbose"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServeArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s - err = %v, wantErr %v", mainTestPrefix, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("%s - socket path = %q, want %q", mainTestPrefix, got, tt.want)
			}
		})
	}
}

func TestWithDatabase(t *testing.T) {
	base := "postgres://u:p@localhost:5432/weaver?sslmode=disable"
	got, err := withDatabase(base, "")
	if err != nil || got != base {
		t.Errorf("%s - unchanged = %q, %v", mainTestPrefix, got, err)
	}
	got, err = withDatabase(base, "weaver_test")
	if err != nil || got != "postgres://u:p@localhost:5432/weaver_test?sslmode=disable" {
		t.Errorf("%s - renamed = %q, %v", mainTestPrefix, got, err)
	}
}

func TestReadDiagnostics(t *testing.T) {
	in := `{"location":{"file":"a.py","range":{"start":{"line":1,"character":0},"end":{"line":1,"character":4}}},"severity":"Error","code":"E1","message":"bad"}

{"type":"diagnostic","location":{"file":"b.py"},"severity":"Warning","code":null,"message":"meh"}
`
	diags, err := readDiagnostics(strings.NewReader(in))
	if err != nil {
		t.Fatalf("%s - readDiagnostics: %v", mainTestPrefix, err)
	}
	if len(diags) != 2 {
		t.Fatalf("%s - got %d diagnostics, want 2", mainTestPrefix, len(diags))
	}
	if diags[0].Type != "diagnostic" || diags[0].Code == nil || *diags[0].Code != "E1" {
		t.Errorf("%s - first = %+v", mainTestPrefix, diags[0])
	}
	if diags[1].Location.File != "b.py" || diags[1].Code != nil {
		t.Errorf("%s - second = %+v", mainTestPrefix, diags[1])
	}
}

func TestReadDiagnostics_Rejects(t *testing.T) {
	for _, in := range []string{"not json\n", `{"type":"error","message":"x"}` + "\n"} {
		if _, err := readDiagnostics(strings.NewReader(in)); err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Errorf("%s - input %q: err = %v", mainTestPrefix, in, err)
		}
	}
}
