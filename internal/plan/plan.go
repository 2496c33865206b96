package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/source"
)

// Plan is an ordered list of steps. Step order is execution order.
type Plan struct {
	Method      analyzer.Method
	InstallPath string
	Steps       []Step
	// Source is the descriptor the user supplied (a template stays a
	// template even though its steps clone a git URL).
	Source source.Descriptor
	// Name is the server name: the template id or the repository name.
	Name string
	// Platform is the OS the plan's paths are written for.
	Platform host.Platform
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Common().ID == id {
			return s, true
		}
	}
	return nil, false
}

// Relocate moves the plan from its current InstallPath to newPath,
// rewriting every step path that lies under the old root and every mention
// of the old root in step descriptions.
func (p *Plan) Relocate(newPath string) {
	old := p.InstallPath
	rewrite := func(path string) string {
		if !host.IsWithin(old, path) {
			return path
		}
		return newPath + path[len(strings.TrimRight(old, `\/`)):]
	}
	for _, s := range p.Steps {
		s.RewritePaths(rewrite)
		if old != "" {
			b := s.Common()
			b.Description = strings.ReplaceAll(b.Description, old, newPath)
		}
	}
	p.InstallPath = newPath
}

// Validate checks the structural invariants of a plan:
//   - the first step establishes InstallPath (PrepareDirectory or Clone);
//   - step ids are unique;
//   - no step except WriteConfig refers to a path outside InstallPath;
//   - at most one WriteConfig step exists;
//   - docker plans have DockerBuild and DockerRun and no npm/pip steps,
//     and other plans have no docker steps.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	switch first := p.Steps[0].(type) {
	case *PrepareDirectory:
		if first.Path != p.InstallPath {
			return fmt.Errorf("first step prepares %s, not install path %s", first.Path, p.InstallPath)
		}
	case *Clone:
		if first.TargetPath != p.InstallPath {
			return fmt.Errorf("first step clones into %s, not install path %s", first.TargetPath, p.InstallPath)
		}
	default:
		return fmt.Errorf("plan must begin with PrepareDirectory or Clone, got %s", first.Kind())
	}

	ids := make(map[string]bool, len(p.Steps))
	counts := make(map[StepKind]int)
	for _, s := range p.Steps {
		id := s.Common().ID
		if id == "" {
			return fmt.Errorf("%s step has no id", s.Kind())
		}
		if ids[id] {
			return fmt.Errorf("duplicate step id %q", id)
		}
		ids[id] = true
		counts[s.Kind()]++

		if s.Kind() == KindWriteConfig {
			continue
		}
		for _, path := range s.Paths() {
			if !host.IsWithin(p.InstallPath, path) {
				return fmt.Errorf("step %s refers to %s outside install path %s", id, path, p.InstallPath)
			}
		}
	}

	if counts[KindWriteConfig] > 1 {
		return fmt.Errorf("plan has %d WriteConfig steps", counts[KindWriteConfig])
	}

	isDocker := p.Method == analyzer.MethodDocker
	hasDocker := counts[KindDockerBuild] > 0 || counts[KindDockerRun] > 0
	hasNative := counts[KindNpmInstall] > 0 || counts[KindPipInstall] > 0
	switch {
	case isDocker && (counts[KindDockerBuild] != 1 || counts[KindDockerRun] != 1):
		return fmt.Errorf("docker plan needs exactly one DockerBuild and one DockerRun")
	case isDocker && hasNative:
		return fmt.Errorf("docker plan must not contain npm or pip steps")
	case !isDocker && hasDocker:
		return fmt.Errorf("%s plan must not contain docker steps", p.Method)
	}
	return nil
}

// Print writes a human-readable rendering of the plan to w.
func (p *Plan) Print(w io.Writer) {
	fmt.Fprintf(w, "Install plan for %s (%s)\n", p.Name, p.Source.String())
	fmt.Fprintf(w, "  Method:       %s\n", p.Method)
	fmt.Fprintf(w, "  Install path: %s\n\n", p.InstallPath)
	for i, s := range p.Steps {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, s.Common().ID, s.Common().Description)
	}
}

type stepEnvelope struct {
	Kind StepKind        `json:"kind"`
	Step json.RawMessage `json:"step"`
}

type planJSON struct {
	Method      analyzer.Method   `json:"method"`
	InstallPath string            `json:"installPath"`
	Steps       []stepEnvelope    `json:"steps"`
	Source      source.Descriptor `json:"source"`
	Name        string            `json:"name"`
	Platform    host.Platform     `json:"platform"`
}

// MarshalJSON encodes each step as {"kind": ..., "step": {...}}.
func (p *Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{
		Method:      p.Method,
		InstallPath: p.InstallPath,
		Steps:       make([]stepEnvelope, 0, len(p.Steps)),
		Source:      p.Source,
		Name:        p.Name,
		Platform:    p.Platform,
	}
	for _, s := range p.Steps {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("encoding step %s: %w", s.Common().ID, err)
		}
		out.Steps = append(out.Steps, stepEnvelope{Kind: s.Kind(), Step: raw})
	}
	return json.Marshal(out)
}

// UnmarshalJSON rehydrates steps into their concrete variants.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var in planJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	steps := make([]Step, 0, len(in.Steps))
	for i, env := range in.Steps {
		s, err := newStep(env.Kind)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := json.Unmarshal(env.Step, s); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, env.Kind, err)
		}
		steps = append(steps, s)
	}
	*p = Plan{
		Method:      in.Method,
		InstallPath: in.InstallPath,
		Steps:       steps,
		Source:      in.Source,
		Name:        in.Name,
		Platform:    in.Platform,
	}
	return nil
}

// Copy returns a deep copy of p, so an executor can patch paths without
// affecting the caller's plan.
func (p *Plan) Copy() (*Plan, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out Plan
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
