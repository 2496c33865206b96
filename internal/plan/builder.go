package plan

import (
	"fmt"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/source"
)

// Step ids. Every plan uses each id at most once.
const (
	IDPrepareDirectory = "prepare-directory"
	IDClone            = "clone"
	IDNpmInstall       = "npm-install"
	IDPipInstall       = "pip-install"
	IDDockerBuild      = "docker-build"
	IDDockerRun        = "docker-run"
	IDWriteConfig      = "write-config"
	IDDetectServerType = "detect-server-type"
	IDVerify           = "verify"
)

// Docker defaults.
const (
	defaultContainerPort = 3000
	containerDataPath    = "/app/data"
	buildScript          = "build"
)

// ContainerName returns the image tag and container name for a server.
func ContainerName(name string) string { return "mcp-" + name }

// Builder turns an analysis into a plan. It is pure apart from the
// platform it was constructed with.
type Builder struct {
	platform    host.Platform
	installRoot string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithInstallRoot replaces the platform's default install root.
func WithInstallRoot(root string) BuilderOption {
	return func(b *Builder) { b.installRoot = root }
}

// NewBuilder returns a Builder for platform p.
func NewBuilder(p host.Platform, opts ...BuilderOption) *Builder {
	b := &Builder{platform: p}
	for _, opt := range opts {
		opt(b)
	}
	if b.installRoot == "" {
		b.installRoot = host.DefaultInstallRoot(p)
	}
	return b
}

// DefaultInstallPath returns <install root>/<name>.
func (b *Builder) DefaultInstallPath(name string) string {
	return host.JoinPath(b.platform, b.installRoot, name)
}

// Build produces the plan for a. The same analysis, options and platform
// always yield the same plan.
func (b *Builder) Build(a *analyzer.Analysis, opts Options) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	src := a.Source
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Kind == source.KindTemplate {
		return nil, fmt.Errorf("template %s must be resolved before planning", src.TemplateID)
	}

	name := opts.Name
	if name == "" {
		name = src.RepoName()
	}
	if name == "" {
		return nil, fmt.Errorf("%w: cannot derive a server name from %s", source.ErrInvalidSource, src.String())
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q derived from %s is not a usable server name; set one explicitly",
			source.ErrInvalidSource, name, src.String())
	}

	method := a.RecommendedMethod
	if opts.Method != "" {
		method = opts.Method
	}

	installPath, err := b.installPath(src, name, opts)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Method:      method,
		InstallPath: installPath,
		Source:      src,
		Name:        name,
		Platform:    b.platform,
	}
	add := func(s Step) { p.Steps = append(p.Steps, s) }

	// 1. Always establish the install path.
	add(&PrepareDirectory{
		StepBase: StepBase{ID: IDPrepareDirectory, Description: "Prepare directory " + installPath},
		Path:     installPath,
	})

	// 2. Clone git sources.
	if src.Kind == source.KindGit {
		ref := src.Ref
		if opts.Ref != "" {
			ref = opts.Ref
		}
		add(&Clone{
			StepBase:   StepBase{ID: IDClone, Description: "Clone " + src.URL},
			URL:        src.URL,
			Ref:        ref,
			TargetPath: installPath,
		})
	}

	// 3/4. Build or install.
	if method == analyzer.MethodDocker {
		tag := ContainerName(name)
		hostPort := defaultContainerPort
		if a.DeclaredPort > 0 {
			hostPort = a.DeclaredPort
		}
		add(&DockerBuild{
			StepBase: StepBase{ID: IDDockerBuild, Description: "Build image " + tag, WorkingDirectory: installPath},
			Cwd:      installPath,
			ImageTag: tag,
		})
		add(&DockerRun{
			StepBase:       StepBase{ID: IDDockerRun, Description: "Start container " + tag},
			ImageTag:       tag,
			ContainerName:  tag,
			PortBindings:   []PortBinding{{Host: hostPort, Container: hostPort}},
			VolumeBindings: []VolumeBinding{{HostPath: installPath, ContainerPath: containerDataPath}},
			Env:            copyEnv(opts.Env),
		})
	} else {
		switch {
		case a.Language.IsNode():
			add(b.npmStep(a, opts, installPath, ""))
		case a.Language == analyzer.Python:
			add(b.pipStep(a, method, installPath, ""))
		default:
			add(&DetectServerType{
				StepBase: StepBase{ID: IDDetectServerType, Description: "Detect server type", WorkingDirectory: installPath},
				Cwd:      installPath,
			})
			add(b.npmStep(a, opts, installPath, ServerNode))
			add(b.pipStep(a, method, installPath, ServerPython))
		}
	}

	// 5. Server-local configuration.
	if len(a.ConfigFileCandidates) > 0 && !opts.SkipConfigWrite {
		add(&WriteConfig{
			StepBase:             StepBase{ID: IDWriteConfig, Description: "Write server configuration"},
			Dir:                  installPath,
			ConfigFileCandidates: append([]string(nil), a.ConfigFileCandidates...),
			ServerEntry: ServerSettings{
				Name:        name,
				Port:        opts.Port,
				AutoStart:   opts.AutoStart,
				Environment: copyEnv(opts.Env),
			},
		})
	}

	// 6. Verify.
	add(&Verify{
		StepBase: StepBase{ID: IDVerify, Description: "Verify installation"},
		Path:     installPath,
	})

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("built an invalid plan: %w", err)
	}
	return p, nil
}

func (b *Builder) installPath(src source.Descriptor, name string, opts Options) (string, error) {
	if src.Kind == source.KindLocal {
		if opts.InstallPath != "" && opts.InstallPath != src.Path {
			return "", fmt.Errorf("local sources are installed in place; --path %s differs from %s", opts.InstallPath, src.Path)
		}
		return src.Path, nil
	}
	if opts.InstallPath != "" {
		return opts.InstallPath, nil
	}
	return b.DefaultInstallPath(name), nil
}

func (b *Builder) npmStep(a *analyzer.Analysis, opts Options, installPath string, guard ServerType) *NpmInstall {
	var scripts []string
	seen := make(map[string]bool)
	if a.HasHint("npm run build") {
		scripts = append(scripts, buildScript)
		seen[buildScript] = true
	}
	for _, s := range opts.Scripts {
		if !seen[s] {
			scripts = append(scripts, s)
			seen[s] = true
		}
	}
	return &NpmInstall{
		StepBase: StepBase{ID: IDNpmInstall, Description: "Install Node dependencies", WorkingDirectory: installPath},
		Cwd:      installPath,
		Scripts:  scripts,
		OnlyFor:  guard,
	}
}

func (b *Builder) pipStep(a *analyzer.Analysis, method analyzer.Method, installPath string, guard ServerType) *PipInstall {
	req := a.PythonManifest
	if req == "" {
		req = "requirements.txt"
	}
	installer := "pip"
	if method == analyzer.MethodUV {
		installer = "uv"
	}
	return &PipInstall{
		StepBase:         StepBase{ID: IDPipInstall, Description: "Install Python dependencies", WorkingDirectory: installPath},
		Cwd:              installPath,
		RequirementsFile: req,
		Installer:        installer,
		OnlyFor:          guard,
	}
}

func copyEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
