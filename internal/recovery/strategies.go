package recovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentx-labs/mcpx/internal/branding"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/source"
)

// Alternatives probed when the configured installer is missing.
var (
	nodeManagers     = []string{"pnpm", "yarn"}
	pythonInstallers = []string{"uv", "pip3"}
)

func probe(ctx context.Context, svc host.Services, name string) bool {
	res, err := svc.Run(ctx, name, []string{"--version"}, host.RunOptions{Timeout: probeTimeout})
	return err == nil && res.ExitCode == 0
}

// alternativeNodeManager switches the step to the first installed
// alternative to its current package manager.
func alternativeNodeManager(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.NpmInstall)
	current := s.PackageManager()
	for _, m := range nodeManagers {
		if m == current {
			continue
		}
		if probe(ctx, env.Host, m) {
			s.Manager = m
			return Result{Success: true, Retry: true, Message: fmt.Sprintf("%s not available, using %s", current, m)}
		}
	}
	return Result{Message: fmt.Sprintf("%s not available and no alternative package manager found", current)}
}

// alternativePythonInstaller switches to uv or pip3.
func alternativePythonInstaller(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.PipInstall)
	for _, inst := range pythonInstallers {
		if inst == s.Installer {
			continue
		}
		if probe(ctx, env.Host, inst) {
			prev := s.Installer
			s.Installer = inst
			return Result{Success: true, Retry: true, Message: fmt.Sprintf("%s not available, using %s", prev, inst)}
		}
	}
	return Result{Message: "no Python package installer found"}
}

// createConfigDir creates the directory the config files go into.
func createConfigDir(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.WriteConfig)
	if err := env.Host.EnsureDir(ctx, s.Dir); err != nil {
		return Result{Message: fmt.Sprintf("creating %s: %v", s.Dir, err)}
	}
	return Result{Success: true, Retry: true, Message: "created " + s.Dir}
}

// relocateToUserDir moves the installation under the user's home directory
// and patches every later step.
func relocateToUserDir(_ context.Context, _ plan.Step, env *Env) Result {
	p := env.Plan
	if p.Source.Kind == source.KindLocal {
		return Result{Message: "local sources are installed in place and cannot be relocated"}
	}
	home, err := env.Host.HomeDir()
	if err != nil {
		return Result{Message: err.Error()}
	}
	platform := env.Host.Platform()
	root := host.UserInstallRoot(platform, home)
	target := host.JoinPath(platform, root, host.BaseName(p.InstallPath))
	if host.IsWithin(root, p.InstallPath) {
		return Result{Message: fmt.Sprintf("no permission to write %s", p.InstallPath)}
	}
	old := p.InstallPath
	p.Relocate(target)
	return Result{Success: true, Retry: true, Message: fmt.Sprintf("no permission for %s, installing to %s", old, target)}
}

// userNpmCache points npm at a cache directory owned by the user.
func userNpmCache(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.NpmInstall)
	home, err := env.Host.HomeDir()
	if err != nil {
		return Result{Message: err.Error()}
	}
	cache := host.JoinPath(env.Host.Platform(), home, branding.HomeDir(), "npm-cache")
	if s.Env["npm_config_cache"] == cache {
		return Result{Message: "permission denied even with a user-owned npm cache"}
	}
	if err := env.Host.EnsureDir(ctx, cache); err != nil {
		return Result{Message: fmt.Sprintf("creating npm cache: %v", err)}
	}
	if s.Env == nil {
		s.Env = make(map[string]string)
	}
	s.Env["npm_config_cache"] = cache
	return Result{Success: true, Retry: true, Message: "using npm cache " + cache}
}

// directoryExists accepts an existing install directory.
func directoryExists(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.PrepareDirectory)
	if !env.Host.Exists(ctx, s.Path) {
		return Result{Message: s.Path + " reported as existing but not found"}
	}
	return Result{Success: true, Message: s.Path + " already exists"}
}

// matchingClone accepts an existing checkout whose origin is the URL the
// step would have cloned.
func matchingClone(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.Clone)
	res, err := env.Host.Run(ctx, "git", []string{"-C", s.TargetPath, "remote", "get-url", "origin"},
		host.RunOptions{Timeout: probeTimeout})
	if err != nil || res.ExitCode != 0 {
		return Result{Message: fmt.Sprintf("%s exists but is not a git checkout", s.TargetPath)}
	}
	origin := strings.TrimSpace(res.Stdout)
	if normalizeRemote(origin) != normalizeRemote(s.URL) {
		return Result{Message: fmt.Sprintf("%s is a clone of %s, not %s", s.TargetPath, origin, s.URL)}
	}
	return Result{Success: true, Message: "existing clone of " + s.URL + " reused"}
}

// normalizeRemote makes https and scp-style URLs of the same repository
// compare equal.
func normalizeRemote(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimSuffix(strings.TrimRight(u, "/"), ".git")
	for _, p := range []string{"https://", "http://", "ssh://", "git://"} {
		u = strings.TrimPrefix(u, p)
	}
	u = strings.TrimPrefix(u, "git@")
	if i := strings.Index(u, ":"); i >= 0 && !strings.Contains(u[:i], "/") {
		u = u[:i] + "/" + u[i+1:]
	}
	return u
}

// replaceContainer removes a stale container that holds the name.
func replaceContainer(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.DockerRun)
	res, err := env.Host.Run(ctx, "docker", []string{"rm", "-f", s.ContainerName}, host.RunOptions{Timeout: probeTimeout})
	if err != nil {
		return Result{Message: err.Error()}
	}
	if res.ExitCode != 0 {
		return Result{Message: fmt.Sprintf("removing container %s: %s", s.ContainerName, strings.TrimSpace(res.Stderr))}
	}
	return Result{Success: true, Retry: true, Message: "removed existing container " + s.ContainerName}
}

// cleanNpmCache frees space held by the npm cache.
func cleanNpmCache(ctx context.Context, step plan.Step, env *Env) Result {
	s := step.(*plan.NpmInstall)
	if env.Failures > 1 {
		return Result{Message: "still out of disk space after cleaning the npm cache"}
	}
	res, err := env.Host.Run(ctx, s.PackageManager(), []string{"cache", "clean", "--force"},
		host.RunOptions{Dir: s.Cwd, Env: s.Env, Timeout: probeTimeout})
	if err != nil || res.ExitCode != 0 {
		return Result{Message: "cleaning the npm cache failed"}
	}
	return Result{Success: true, Retry: true, Message: "cleaned npm cache"}
}
