package prereq

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/host"
)

// probeTimeout bounds each "--version" call.
const probeTimeout = 15 * time.Second

// Tool is an executable an installation may need.
type Tool struct {
	Name string
	// Command is the executable; Windows uses WindowsCommand when set.
	Command        string
	WindowsCommand string
	Args           []string
	// Minimum is the lowest acceptable version, empty for any.
	Minimum string
}

// The tools mcpx knows how to probe.
var (
	Git    = Tool{Name: "git", Command: "git", Args: []string{"--version"}, Minimum: "2.25.0"}
	Node   = Tool{Name: "node", Command: "node", Args: []string{"--version"}, Minimum: "18.0.0"}
	Npm    = Tool{Name: "npm", Command: "npm", WindowsCommand: "npm.cmd", Args: []string{"--version"}}
	Python = Tool{Name: "python", Command: "python3", WindowsCommand: "python", Args: []string{"--version"}, Minimum: "3.10.0"}
	UV     = Tool{Name: "uv", Command: "uv", Args: []string{"--version"}}
	Docker = Tool{Name: "docker", Command: "docker", Args: []string{"--version"}, Minimum: "20.10.0"}
)

// All lists every known tool in display order.
var All = []Tool{Git, Node, Npm, Python, UV, Docker}

// Status of a probe.
type Status string

const (
	StatusOK       Status = "ok"
	StatusMissing  Status = "missing"
	StatusOutdated Status = "outdated"
	// StatusUnknown means the tool ran but its version could not be read.
	StatusUnknown Status = "unknown"
)

// Check is the result of probing one tool.
type Check struct {
	Tool    string `json:"tool"`
	Status  Status `json:"status"`
	Version string `json:"version,omitempty"`
	Minimum string `json:"minimum,omitempty"`
	Message string `json:"message"`
}

// OK reports whether the tool is usable.
func (c Check) OK() bool { return c.Status == StatusOK }

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first dotted version from command output such
// as "git version 2.39.2" or "v20.11.0".
func ParseVersion(output string) (*semver.Version, error) {
	m := versionPattern.FindString(output)
	if m == "" {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(output))
	}
	return semver.NewVersion(m)
}

// Checker probes tools through the host port.
type Checker struct {
	host host.Services
}

// NewChecker returns a Checker.
func NewChecker(svc host.Services) *Checker {
	return &Checker{host: svc}
}

// Check probes one tool.
func (c *Checker) Check(ctx context.Context, t Tool) Check {
	chk := Check{Tool: t.Name, Minimum: t.Minimum}
	cmd := t.Command
	if c.host.Platform() == host.PlatformWindows && t.WindowsCommand != "" {
		cmd = t.WindowsCommand
	}

	res, err := c.host.Run(ctx, cmd, t.Args, host.RunOptions{Timeout: probeTimeout})
	if err != nil || res.ExitCode != 0 {
		chk.Status = StatusMissing
		chk.Message = t.Name + " is not installed or not on PATH"
		return chk
	}

	v, err := ParseVersion(res.Stdout + " " + res.Stderr)
	if err != nil {
		chk.Status = StatusUnknown
		chk.Message = fmt.Sprintf("%s is installed but its version could not be read", t.Name)
		return chk
	}
	chk.Version = v.String()

	if t.Minimum != "" {
		min := semver.MustParse(t.Minimum)
		if v.LessThan(min) {
			chk.Status = StatusOutdated
			chk.Message = fmt.Sprintf("%s %s is older than the required %s", t.Name, v, min)
			return chk
		}
	}
	chk.Status = StatusOK
	chk.Message = fmt.Sprintf("%s %s", t.Name, v)
	return chk
}

// CheckAll probes tools in order.
func (c *Checker) CheckAll(ctx context.Context, tools []Tool) []Check {
	out := make([]Check, 0, len(tools))
	for _, t := range tools {
		out = append(out, c.Check(ctx, t))
	}
	return out
}

// ToolsFor returns the tools an installation with method needs. Cloning
// needs git unless the source is local.
func ToolsFor(method analyzer.Method, needsGit bool) []Tool {
	var tools []Tool
	if needsGit {
		tools = append(tools, Git)
	}
	switch method {
	case analyzer.MethodNpx:
		tools = append(tools, Node, Npm)
	case analyzer.MethodUV:
		tools = append(tools, Python, UV)
	case analyzer.MethodPython:
		tools = append(tools, Python)
	case analyzer.MethodDocker:
		tools = append(tools, Docker)
	}
	return tools
}

// Preflight probes the tools for method and checks the repository's runtime
// constraint against the installed runtime. Only problems are returned.
func (c *Checker) Preflight(ctx context.Context, a *analyzer.Analysis, method analyzer.Method, needsGit bool) []Check {
	var problems []Check
	versions := make(map[string]string)
	for _, chk := range c.CheckAll(ctx, ToolsFor(method, needsGit)) {
		versions[chk.Tool] = chk.Version
		if !chk.OK() {
			problems = append(problems, chk)
		}
	}

	if a == nil || a.RuntimeConstraint == "" || method == analyzer.MethodDocker {
		return problems
	}
	runtime := Node.Name
	if a.Language == analyzer.Python {
		runtime = Python.Name
	}
	installed := versions[runtime]
	if installed == "" {
		return problems
	}
	if chk, ok := checkConstraint(runtime, installed, a.RuntimeConstraint); !ok {
		problems = append(problems, chk)
	}
	return problems
}

// checkConstraint reports whether version satisfies constraint. Python's
// compatible-release operator is read as a lower bound; anything semver
// cannot parse is reported as unknown.
func checkConstraint(tool, version, constraint string) (Check, bool) {
	chk := Check{Tool: tool, Version: version, Minimum: constraint}
	c, err := semver.NewConstraint(strings.ReplaceAll(constraint, "~=", ">="))
	if err != nil {
		chk.Status = StatusUnknown
		chk.Message = fmt.Sprintf("cannot interpret %s constraint %q", tool, constraint)
		return chk, false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		chk.Status = StatusUnknown
		chk.Message = fmt.Sprintf("cannot interpret %s version %q", tool, version)
		return chk, false
	}
	if !c.Check(v) {
		chk.Status = StatusOutdated
		chk.Message = fmt.Sprintf("%s %s does not satisfy %q", tool, version, constraint)
		return chk, false
	}
	chk.Status = StatusOK
	return chk, true
}
