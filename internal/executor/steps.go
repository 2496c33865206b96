package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agentx-labs/mcpx/internal/envfile"
	"github.com/agentx-labs/mcpx/internal/events"
	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
)

// runStep performs the action of one step and returns a short detail
// message on success. Host calls are detached from ctx cancellation so a
// running command is never interrupted; the per-step timeout still applies.
func (e *Executor) runStep(ctx context.Context, r *run, step plan.Step) (string, error) {
	ctx = context.WithoutCancel(ctx)

	switch s := step.(type) {
	case *plan.PrepareDirectory:
		return "", e.host.EnsureDir(ctx, s.Path)
	case *plan.Clone:
		return e.clone(ctx, s)
	case *plan.NpmInstall:
		return e.npmInstall(ctx, s)
	case *plan.PipInstall:
		return e.pipInstall(ctx, r.plan.Platform, s)
	case *plan.DockerBuild:
		return "", e.command(ctx, "docker", []string{"build", "-t", s.ImageTag, "."}, host.RunOptions{Dir: s.Cwd})
	case *plan.DockerRun:
		return "", e.command(ctx, "docker", dockerRunArgs(s), host.RunOptions{})
	case *plan.WriteConfig:
		return e.writeConfig(ctx, r.plan.Platform, s)
	case *plan.DetectServerType:
		r.serverType = e.detectServerType(ctx, r.plan.Platform, s)
		return "detected " + string(r.serverType), nil
	case *plan.Verify:
		if !e.host.Exists(ctx, s.Path) {
			e.bus.Logf(events.LevelWarn, s.ID, s.Path+" does not exist")
		}
		return "", nil
	default:
		return "", failure.NewStepError(fmt.Sprintf("unsupported step kind %s", step.Kind()), nil, nil)
	}
}

// command runs name with the command timeout and converts a non-zero exit
// into a StepError.
func (e *Executor) command(ctx context.Context, name string, args []string, opts host.RunOptions) error {
	if opts.Timeout == 0 {
		opts.Timeout = e.timeouts.Command
	}
	res, err := e.host.Run(ctx, name, args, opts)
	if err != nil {
		return failure.FromError(err)
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		if msg == "" {
			msg = host.CommandLine(name, args) + " failed"
		}
		return failure.NewStepError(msg, failure.ExitCode(res.ExitCode), nil)
	}
	return nil
}

func (e *Executor) clone(ctx context.Context, s *plan.Clone) (string, error) {
	args := []string{"clone", "--depth", "1"}
	if s.Ref != "" {
		args = append(args, "--branch", s.Ref)
	}
	args = append(args, s.URL, s.TargetPath)
	return "", e.command(ctx, "git", args, host.RunOptions{})
}

func (e *Executor) npmInstall(ctx context.Context, s *plan.NpmInstall) (string, error) {
	mgr := s.PackageManager()
	opts := host.RunOptions{Dir: s.Cwd, Env: s.Env}
	if err := e.command(ctx, mgr, []string{"install"}, opts); err != nil {
		return "", err
	}
	for _, script := range s.Scripts {
		if err := e.command(ctx, mgr, []string{"run", script}, opts); err != nil {
			return "", err
		}
	}
	if mgr != "npm" {
		return "installed with " + mgr, nil
	}
	return "", nil
}

func (e *Executor) pipInstall(ctx context.Context, p host.Platform, s *plan.PipInstall) (string, error) {
	target := []string{"-r", s.RequirementsFile}
	if s.RequirementsFile == "pyproject.toml" {
		target = []string{"."}
	}

	var name string
	var args []string
	switch s.Installer {
	case "uv":
		name, args = "uv", append([]string{"pip", "install"}, target...)
	case "pip3":
		name, args = "pip3", append([]string{"install"}, target...)
	default:
		name = "python3"
		if p == host.PlatformWindows {
			name = "python"
		}
		args = append([]string{"-m", "pip", "install"}, target...)
	}
	return "", e.command(ctx, name, args, host.RunOptions{Dir: s.Cwd})
}

func dockerRunArgs(s *plan.DockerRun) []string {
	args := []string{"run", "-d", "--name", s.ContainerName}
	for _, b := range s.PortBindings {
		args = append(args, "-p", b.String())
	}
	for _, v := range s.VolumeBindings {
		args = append(args, "-v", v.String())
	}
	for _, k := range sortedKeys(s.Env) {
		args = append(args, "-e", k+"="+s.Env[k])
	}
	return append(args, s.ImageTag)
}

// writeConfig merges the server entry into each writable candidate. Keys
// already present in a file are kept. The whole step is bounded by the config
// timeout; an expired step reports a timeout and leaves further files alone.
func (e *Executor) writeConfig(ctx context.Context, p host.Platform, s *plan.WriteConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Config)
	defer cancel()

	type result struct {
		msg string
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := e.writeConfigFiles(ctx, p, s)
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		msg := fmt.Sprintf("writing configuration in %s: timeout after %s", s.Dir, e.timeouts.Config)
		return "", failure.NewStepError(msg, nil, ctx.Err())
	}
}

func (e *Executor) writeConfigFiles(ctx context.Context, p host.Platform, s *plan.WriteConfig) (string, error) {
	var written []string
	for _, name := range s.Writable() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		path := host.JoinPath(p, s.Dir, name)
		var existing []byte
		if e.host.Exists(ctx, path) {
			data, err := e.host.ReadFile(ctx, path)
			if err != nil {
				return "", failure.FromError(err)
			}
			existing = data
		}

		var data []byte
		var err error
		switch name {
		case plan.DotEnv:
			data, err = mergeDotEnv(existing, s.ServerEntry)
		case plan.EnvironmentJSON:
			data, err = mergeJSON(existing, envObject(s.ServerEntry.Environment))
		default:
			data, err = mergeJSON(existing, settingsObject(s.ServerEntry))
		}
		if errors.Is(err, errNotObject) {
			e.bus.Logf(events.LevelWarn, s.ID, fmt.Sprintf("Leaving %s unchanged: %v", path, err))
			continue
		}
		if err != nil {
			return "", failure.NewStepError(fmt.Sprintf("merging %s: %v", path, err), nil, err)
		}
		if err := host.WriteFileAtomic(ctx, e.host, path, data); err != nil {
			return "", failure.FromError(err)
		}
		written = append(written, name)
	}
	if len(written) == 0 {
		return "no configuration files written", nil
	}
	return "wrote " + strings.Join(written, ", "), nil
}

func settingsObject(s plan.ServerSettings) map[string]any {
	obj := map[string]any{
		"name":      s.Name,
		"autoStart": s.AutoStart,
	}
	if s.Port > 0 {
		obj["port"] = s.Port
	}
	if len(s.Environment) > 0 {
		obj["environment"] = envObject(s.Environment)
	}
	return obj
}

func envObject(env map[string]string) map[string]any {
	obj := make(map[string]any, len(env))
	for k, v := range env {
		obj[k] = v
	}
	return obj
}

// errNotObject marks a well-formed JSON file whose top-level value is not an
// object. Such files belong to the server and are left as they are.
var errNotObject = errors.New("top-level JSON value is not an object")

// mergeJSON adds the keys of add that existing lacks. Malformed JSON is an
// error rather than something to overwrite.
func mergeJSON(existing []byte, add map[string]any) ([]byte, error) {
	doc := map[string]any{}
	if len(strings.TrimSpace(string(existing))) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(existing)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, errNotObject
		}
		doc = obj
	}
	for k, v := range add {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func mergeDotEnv(existing []byte, s plan.ServerSettings) ([]byte, error) {
	entries, err := envfile.Parse(existing)
	if err != nil {
		return nil, err
	}
	add := make(map[string]string, len(s.Environment)+1)
	for k, v := range s.Environment {
		add[k] = v
	}
	if s.Port > 0 {
		add["PORT"] = fmt.Sprint(s.Port)
	}
	return envfile.Format(envfile.Merge(entries, add)), nil
}

func (e *Executor) detectServerType(ctx context.Context, p host.Platform, s *plan.DetectServerType) plan.ServerType {
	switch {
	case e.host.Exists(ctx, host.JoinPath(p, s.Cwd, "package.json")):
		return plan.ServerNode
	case e.host.Exists(ctx, host.JoinPath(p, s.Cwd, "requirements.txt")),
		e.host.Exists(ctx, host.JoinPath(p, s.Cwd, "pyproject.toml")):
		return plan.ServerPython
	default:
		return plan.ServerUnknown
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
