package analysis

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/morezero/weaver/pkg/depcheck"
	"github.com/morezero/weaver/pkg/schema"
	"github.com/morezero/weaver/pkg/semver"
	"github.com/morezero/weaver/pkg/wire"
)

const agentLogPrefix = "analysis:agent"

// DefaultAgentTimeout bounds one agent invocation.
const DefaultAgentTimeout = 5 * time.Minute

// AgentBackend runs an external analysis agent found on PATH. The agent is
// invoked as `<agent> diagnostics --project <dir>` (one JSON diagnostic per
// line on stdout) and `<agent> onboard --project <dir>` (free text).
type AgentBackend struct {
	req        *semver.Requirement
	projectDir string
	timeout    time.Duration
}

// NewAgentBackendParams holds parameters for NewAgentBackend.
type NewAgentBackendParams struct {
	// Requirement is "name@range", e.g. "serena-agent@>=0.1.0".
	Requirement string
	ProjectDir  string
	Timeout     time.Duration
}

// NewAgentBackend creates an AgentBackend. The agent itself is located
// lazily on every call so installing it does not require a restart.
func NewAgentBackend(params NewAgentBackendParams) (*AgentBackend, error) {
	req, err := semver.ParseRequirement(params.Requirement)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", agentLogPrefix, err)
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultAgentTimeout
	}
	return &AgentBackend{req: req, projectDir: params.ProjectDir, timeout: timeout}, nil
}

// Name returns "agent".
func (b *AgentBackend) Name() string { return "agent" }

// locate finds the agent and verifies its version. found is the reported
// version when one could be read.
func (b *AgentBackend) locate(ctx context.Context) (bin string, found *string, err error) {
	bin, err = exec.LookPath(b.req.Name)
	if err != nil {
		return "", nil, &DependencyError{
			Code: depcheck.AgentNotFound,
			Msg:  fmt.Sprintf("%s not found on PATH", b.req.Name),
		}
	}

	out, err := b.run(ctx, bin, "--version")
	if err != nil {
		return bin, nil, &DependencyError{
			Code: depcheck.DependencyUnavailable,
			Msg:  fmt.Sprintf("%s --version failed", b.req.Name),
			Err:  err,
		}
	}
	version, err := b.req.Check(string(out))
	if version != "" {
		found = &version
	}
	if err != nil {
		code := depcheck.DependencyVersionMismatch
		if version == "" {
			code = depcheck.DependencyUnavailable
		}
		return bin, found, &DependencyError{
			Code: code,
			Msg:  fmt.Sprintf("%s does not satisfy %s", b.req.Name, b.req.String()),
			Err:  err,
		}
	}
	return bin, found, nil
}

// Check reports the agent requirement.
func (b *AgentBackend) Check(ctx context.Context) []schema.DependencyCheck {
	_, found, err := b.locate(ctx)
	return []schema.DependencyCheck{checkFromError(b.req.Name, b.req.Range, found, err)}
}

// ListDiagnostics runs the agent's diagnostics command.
func (b *AgentBackend) ListDiagnostics(ctx context.Context) ([]schema.Diagnostic, error) {
	bin, _, err := b.locate(ctx)
	if err != nil {
		return nil, err
	}
	out, err := b.run(ctx, bin, "diagnostics", "--project", b.projectDir)
	if err != nil {
		return nil, err
	}
	return parseDiagnostics(out)
}

// Onboard runs the agent's onboarding command and returns its report.
func (b *AgentBackend) Onboard(ctx context.Context) (string, error) {
	bin, _, err := b.locate(ctx)
	if err != nil {
		return "", err
	}
	out, err := b.run(ctx, bin, "onboard", "--project", b.projectDir)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *AgentBackend) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = b.projectDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug(fmt.Sprintf("%s - running %s %s", agentLogPrefix, bin, strings.Join(args, " ")))
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s - %s %s: %w", agentLogPrefix, b.req.Name, args[0], ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return nil, fmt.Errorf("%s %s: %s", b.req.Name, args[0], msg)
		}
		return nil, fmt.Errorf("%s - %s %s: %w", agentLogPrefix, b.req.Name, args[0], err)
	}
	return out, nil
}

// parseDiagnostics decodes one diagnostic per non-blank line.
func parseDiagnostics(out []byte) ([]schema.Diagnostic, error) {
	var diags []schema.Diagnostic
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var d schema.Diagnostic
		if err := wire.DecodeLine(line, &d); err != nil {
			return nil, fmt.Errorf("%s - agent output line %d: %w", agentLogPrefix, n, err)
		}
		d.Type = schema.KindDiagnostic
		diags = append(diags, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s - read agent output: %w", agentLogPrefix, err)
	}
	return diags, nil
}
