package server

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/morezero/weaver/internal/analysis"
	"github.com/morezero/weaver/pkg/dispatcher"
	"github.com/morezero/weaver/pkg/schema"
	"github.com/morezero/weaver/pkg/wire"
)

// Method names served by weaverd.
const (
	MethodProjectStatus     = "project-status"
	MethodOnboardProject    = "onboard-project"
	MethodListDiagnostics   = "list-diagnostics"
	MethodCheckDependencies = "check-dependencies"
	MethodListMethods       = "list-methods"
)

// DiagnosticsParams filters list-diagnostics.
type DiagnosticsParams struct {
	// Severity keeps diagnostics of one severity, compared case-insensitively.
	Severity string `json:"severity,omitempty"`
	// Files keeps diagnostics of these files, compared after cleaning and
	// lower-casing.
	Files []string `json:"files,omitempty"`
}

var severities = []string{"error", "warning", "info", "hint"}

// Validate rejects unknown severities.
func (p *DiagnosticsParams) Validate() error {
	if p.Severity != "" && !slices.Contains(severities, strings.ToLower(p.Severity)) {
		return fmt.Errorf("unknown severity %q (want one of %s)", p.Severity, strings.Join(severities, ", "))
	}
	return nil
}

func (p *DiagnosticsParams) keep(d schema.Diagnostic, files map[string]struct{}) bool {
	if p.Severity != "" && !strings.EqualFold(d.Severity, p.Severity) {
		return false
	}
	if len(files) > 0 {
		if _, ok := files[normalizePath(d.Location.File)]; !ok {
			return false
		}
	}
	return true
}

func normalizePath(p string) string {
	return strings.ToLower(filepath.Clean(p))
}

// methods holds what the method handlers need.
type methods struct {
	backend analysis.Backend
	reg     *dispatcher.Registry
}

// NewMethodRegistry registers weaverd's methods against backend and seals
// the registry.
func NewMethodRegistry(backend analysis.Backend) (*dispatcher.Registry, error) {
	m := &methods{backend: backend, reg: dispatcher.NewRegistry()}

	for _, r := range []struct {
		name string
		h    dispatcher.Handler
	}{
		{MethodProjectStatus, dispatcher.Value(m.projectStatus)},
		{MethodOnboardProject, dispatcher.Value(m.onboardProject)},
		{MethodListDiagnostics, dispatcher.Stream(m.listDiagnostics)},
		{MethodCheckDependencies, dispatcher.Seq(m.checkDependencies)},
		{MethodListMethods, dispatcher.Raw(m.listMethods)},
	} {
		if err := m.reg.Register(r.name, r.h); err != nil {
			return nil, err
		}
	}
	m.reg.Seal()
	return m.reg, nil
}

// projectStatus is ready only when every backend requirement checks out;
// otherwise the message names the first failing one.
func (m *methods) projectStatus(ctx context.Context, _ dispatcher.NoParams) (schema.ProjectStatus, error) {
	status := schema.ProjectStatus{
		Type:    schema.KindProjectStatus,
		PID:     os.Getpid(),
		RSSMB:   residentMB(),
		Ready:   true,
		Message: "weaverd ready",
		Backend: m.backend.Name(),
	}
	for _, c := range m.backend.Check(ctx) {
		if c.OK {
			continue
		}
		status.Ready = false
		status.Message = c.Message
		if status.Message == "" {
			status.Message = c.Name + " unavailable"
		}
		break
	}
	return status, nil
}

func (m *methods) onboardProject(ctx context.Context, _ dispatcher.NoParams) (schema.OnboardingReport, error) {
	details, err := m.backend.Onboard(ctx)
	if err != nil {
		return schema.OnboardingReport{}, fmt.Errorf("onboarding failed: %w", err)
	}
	return schema.NewOnboardingReport(details), nil
}

func (m *methods) listDiagnostics(ctx context.Context, p DiagnosticsParams, send func(schema.Diagnostic) error) error {
	diags, err := m.backend.ListDiagnostics(ctx)
	if err != nil {
		return fmt.Errorf("diagnostics failed: %w", err)
	}

	files := make(map[string]struct{}, len(p.Files))
	for _, f := range p.Files {
		files[normalizePath(f)] = struct{}{}
	}
	for _, d := range diags {
		if !p.keep(d, files) {
			continue
		}
		if err := send(d); err != nil {
			return err
		}
	}
	return nil
}

func (m *methods) checkDependencies(ctx context.Context, _ dispatcher.NoParams) (iter.Seq2[schema.DependencyCheck, error], error) {
	checks := m.backend.Check(ctx)
	return func(yield func(schema.DependencyCheck, error) bool) {
		for _, c := range checks {
			if !yield(c, nil) {
				return
			}
		}
	}, nil
}

func (m *methods) listMethods(_ context.Context, _ dispatcher.NoParams) ([]byte, error) {
	return wire.Encode(schema.MethodList{Type: schema.KindMethodList, Methods: m.reg.Methods()})
}
