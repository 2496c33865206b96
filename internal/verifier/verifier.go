package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/envfile"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/registry"
)

// DialTimeout bounds the TCP check of a declared port.
const DialTimeout = 5 * time.Second

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one failed check.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result of a verification. Success is false when any issue has error
// severity.
type Result struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Issues  []Issue `json:"issues"`
}

// Verifier runs the checks through the host port.
type Verifier struct {
	host   host.Services
	logger *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New returns a Verifier.
func New(svc host.Services, opts ...Option) *Verifier {
	v := &Verifier{host: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks an executed plan. a may be nil, which skips the port check.
func (v *Verifier) Verify(ctx context.Context, p *plan.Plan, a *analyzer.Analysis) Result {
	var issues []Issue

	issues = append(issues, v.checkInstallPath(ctx, p.InstallPath)...)

	for _, s := range p.Steps {
		switch s := s.(type) {
		case *plan.WriteConfig:
			for _, name := range s.Writable() {
				issues = append(issues, v.checkConfigFile(ctx, host.JoinPath(p.Platform, s.Dir, name))...)
			}
		case *plan.DockerRun:
			issues = append(issues, v.checkContainer(ctx, s.ContainerName)...)
		}
	}

	if a != nil && a.DeclaredPort > 0 {
		issues = append(issues, v.checkPort(ctx, a.DeclaredPort)...)
	}
	return v.result(p.Name, issues)
}

// VerifyEntry checks a registry entry without its plan: the install path
// and, for docker installs, the container.
func (v *Verifier) VerifyEntry(ctx context.Context, e registry.ServerEntry) Result {
	issues := v.checkInstallPath(ctx, e.InstallPath)
	if e.InstallMethod == string(analyzer.MethodDocker) {
		issues = append(issues, v.checkContainer(ctx, plan.ContainerName(e.Name))...)
	}
	return v.result(e.Name, issues)
}

func (v *Verifier) result(name string, issues []Issue) Result {
	res := Result{Success: true, Issues: issues}
	if res.Issues == nil {
		res.Issues = []Issue{}
	}
	var errs int
	for _, is := range issues {
		if is.Severity == SeverityError {
			errs++
		}
	}
	switch {
	case errs > 0:
		res.Success = false
		res.Message = fmt.Sprintf("%s: %d check(s) failed: %s", name, errs, firstError(issues))
	case len(issues) > 0:
		res.Message = fmt.Sprintf("%s verified with %d warning(s)", name, len(issues))
	default:
		res.Message = name + " verified"
	}
	v.logger.Debug("verification finished", "server", name, "success", res.Success, "issues", len(issues))
	return res
}

func firstError(issues []Issue) string {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return is.Message
		}
	}
	return ""
}

func fail(format string, args ...any) []Issue {
	return []Issue{{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}}
}

func (v *Verifier) checkInstallPath(ctx context.Context, path string) []Issue {
	if path == "" || !v.host.Exists(ctx, path) {
		return fail("install path %s does not exist", path)
	}
	names, err := v.host.ListDir(ctx, path)
	if err != nil {
		return fail("install path %s cannot be listed: %v", path, err)
	}
	if len(names) == 0 {
		return fail("install path %s is empty", path)
	}
	return nil
}

func (v *Verifier) checkConfigFile(ctx context.Context, path string) []Issue {
	if !v.host.Exists(ctx, path) {
		return fail("config file %s was not written", path)
	}
	data, err := v.host.ReadFile(ctx, path)
	if err != nil {
		return fail("config file %s cannot be read: %v", path, err)
	}
	if host.BaseName(path) == plan.DotEnv {
		if _, err := envfile.Parse(data); err != nil {
			return fail("config file %s is not a valid env file: %v", path, err)
		}
		return nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail("config file %s is not valid JSON: %v", path, err)
	}
	return nil
}

func (v *Verifier) checkContainer(ctx context.Context, name string) []Issue {
	res, err := v.host.Run(ctx, "docker",
		[]string{"ps", "--filter", "name=^" + name + "$", "--format", "{{.Names}}"},
		host.RunOptions{Timeout: 30 * time.Second})
	if err != nil {
		return fail("listing containers: %v", err)
	}
	if res.ExitCode != 0 {
		return fail("listing containers: %s", strings.TrimSpace(res.Stderr))
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return nil
		}
	}
	return fail("container %s is not running", name)
}

func (v *Verifier) checkPort(ctx context.Context, port int) []Issue {
	addr := "localhost:" + strconv.Itoa(port)
	if err := v.host.DialTCP(ctx, addr, DialTimeout); err != nil {
		return fail("nothing is listening on %s: %v", addr, err)
	}
	return nil
}
