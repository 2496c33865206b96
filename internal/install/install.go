package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/branding"
	"github.com/agentx-labs/mcpx/internal/catalog"
	"github.com/agentx-labs/mcpx/internal/events"
	"github.com/agentx-labs/mcpx/internal/executor"
	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/hostconfig"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/prereq"
	"github.com/agentx-labs/mcpx/internal/registry"
	"github.com/agentx-labs/mcpx/internal/source"
	"github.com/agentx-labs/mcpx/internal/verifier"
)

// Pseudo step ids reported on failed events raised after the plan ran.
const (
	StepHostConfig = "host-config"
	StepRegistry   = "registry"
)

// Installation is a configured pipeline. It holds no per-install state and
// may run several installs.
type Installation struct {
	host     host.Services
	bus      *events.Bus
	logger   *slog.Logger
	catalog  *catalog.Catalog
	analyzer *analyzer.Analyzer
	builder  *plan.Builder
	executor *executor.Executor
	verifier *verifier.Verifier
	prereq   *prereq.Checker
	hostCfg  *hostconfig.Reconciler
	registry *registry.Store

	installRoot    string
	registryPath   string
	hostConfigPath string
	execOpts       []executor.Option
	registryOpts   []registry.StoreOption
}

// Option configures an Installation.
type Option func(*Installation)

// WithBus sets the bus progress, log, installed and failed events go to.
func WithBus(b *events.Bus) Option {
	return func(i *Installation) { i.bus = b }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(i *Installation) { i.logger = l }
}

// WithCatalog sets the template catalog. The builtin catalog is the default.
func WithCatalog(c *catalog.Catalog) Option {
	return func(i *Installation) { i.catalog = c }
}

// WithInstallRoot replaces the platform's default install root.
func WithInstallRoot(root string) Option {
	return func(i *Installation) { i.installRoot = root }
}

// WithRegistryPath sets the registry file. Defaults to ~/.mcpx/registry.json.
func WithRegistryPath(path string) Option {
	return func(i *Installation) { i.registryPath = path }
}

// WithRegistryOptions passes options to the registry store.
func WithRegistryOptions(opts ...registry.StoreOption) Option {
	return func(i *Installation) { i.registryOpts = append(i.registryOpts, opts...) }
}

// WithHostConfigPath sets the host application's config file. Defaults to
// the platform location.
func WithHostConfigPath(path string) Option {
	return func(i *Installation) { i.hostConfigPath = path }
}

// WithExecutorOptions passes options to the executor. The bus and logger
// are always set from the Installation.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(i *Installation) { i.execOpts = append(i.execOpts, opts...) }
}

// New assembles an Installation on top of svc.
func New(svc host.Services, opts ...Option) (*Installation, error) {
	i := &Installation{host: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}

	p := svc.Platform()
	if i.registryPath == "" || i.hostConfigPath == "" {
		home, err := svc.HomeDir()
		if err != nil {
			return nil, err
		}
		if i.registryPath == "" {
			i.registryPath = host.JoinPath(p, home, branding.HomeDir(), "registry.json")
		}
		if i.hostConfigPath == "" {
			i.hostConfigPath = host.HostConfigPath(p, home, svc.Getenv)
		}
	}
	if i.catalog == nil {
		i.catalog = catalog.Builtin()
	}

	var builderOpts []plan.BuilderOption
	if i.installRoot != "" {
		builderOpts = append(builderOpts, plan.WithInstallRoot(i.installRoot))
	}
	i.builder = plan.NewBuilder(p, builderOpts...)
	i.analyzer = analyzer.New(analyzer.WithLogger(i.logger))
	i.executor = executor.New(svc, append(i.execOpts,
		executor.WithBus(i.bus),
		executor.WithLogger(i.logger),
	)...)
	i.verifier = verifier.New(svc, verifier.WithLogger(i.logger))
	i.prereq = prereq.NewChecker(svc)
	i.hostCfg = hostconfig.New(svc, i.hostConfigPath, hostconfig.WithLogger(i.logger))
	i.registry = registry.NewStore(svc, i.registryPath, i.registryOpts...)
	return i, nil
}

// Registry returns the registry store.
func (i *Installation) Registry() *registry.Store { return i.registry }

// HostConfig returns the host config reconciler.
func (i *Installation) HostConfig() *hostconfig.Reconciler { return i.hostCfg }

// Report is the session state of one install: the analysis, the plan and
// its outcome log, and what was committed. It is returned on failure too,
// filled as far as the install got.
type Report struct {
	Analysis     *analyzer.Analysis
	Plan         *plan.Plan
	Outcomes     []executor.Outcome
	ServerType   plan.ServerType
	Preflight    []prereq.Check
	Verification *verifier.Result
	Entry        *registry.ServerEntry
}

// Analyze resolves d and inspects it. Template descriptors are analyzed as
// the repository they point at.
func (i *Installation) Analyze(ctx context.Context, d source.Descriptor) (*analyzer.Analysis, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	resolved, err := i.catalog.Resolve(d)
	if err != nil {
		return nil, err
	}

	a, err := i.analyzer.Analyze(ctx, resolved, source.TreeFor(i.host, resolved))
	if err != nil && resolved.Kind == source.KindGit {
		// Remote listings are a convenience; the clone is analyzed later.
		i.logger.Warn("remote analysis failed, deciding after clone", "source", resolved.String(), "error", err)
		i.bus.Logf(events.LevelWarn, "", fmt.Sprintf("Could not inspect %s remotely; detecting server type after clone", resolved.URL))
		return i.analyzer.Analyze(ctx, resolved, source.EmptyTree{})
	}
	return a, err
}

// Plan analyzes d and builds its plan without running it. Template defaults
// (method, port, env, name) fill the options the user left empty.
func (i *Installation) Plan(ctx context.Context, d source.Descriptor, opts plan.Options) (*analyzer.Analysis, *plan.Plan, error) {
	a, err := i.Analyze(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	opts, err = i.applyTemplate(d, opts)
	if err != nil {
		return a, nil, err
	}
	p, err := i.builder.Build(a, opts)
	if err != nil {
		return a, nil, err
	}
	p.Source = d
	return a, p, nil
}

func (i *Installation) applyTemplate(d source.Descriptor, opts plan.Options) (plan.Options, error) {
	if d.Kind != source.KindTemplate {
		return opts, nil
	}
	t, err := i.catalog.Get(d.TemplateID)
	if err != nil {
		return opts, err
	}
	if opts.Name == "" {
		opts.Name = t.ID
	}
	if opts.Method == "" && t.Method != "" {
		m, err := analyzer.ParseMethod(t.Method)
		if err != nil {
			return opts, fmt.Errorf("template %s: %w", t.ID, err)
		}
		opts.Method = m
	}
	if opts.Port == 0 {
		opts.Port = t.Port
	}
	if len(t.Env) > 0 {
		env := make(map[string]string, len(t.Env)+len(opts.Env))
		for k, v := range t.Env {
			env[k] = v
		}
		for k, v := range opts.Env {
			env[k] = v
		}
		opts.Env = env
	}
	return opts, nil
}

// Install plans and runs d. See Run.
func (i *Installation) Install(ctx context.Context, d source.Descriptor, opts plan.Options) (*Report, error) {
	a, p, err := i.Plan(ctx, d, opts)
	if err != nil {
		return &Report{Analysis: a}, err
	}
	return i.Run(ctx, a, p, opts)
}

// Run executes a plan produced by Plan, verifies it and commits it to the
// host config and the registry. On a step failure the error is the
// executor's *AbortError and the report carries the outcome log. A failed
// verification is reported but does not stop the commit.
func (i *Installation) Run(ctx context.Context, a *analyzer.Analysis, p *plan.Plan, opts plan.Options) (*Report, error) {
	rep := &Report{Analysis: a, Plan: p}
	logger := i.logger.With("server", p.Name)

	rep.Preflight = i.prereq.Preflight(ctx, a, p.Method, p.Source.Kind != source.KindLocal)
	for _, chk := range rep.Preflight {
		logger.Warn("prerequisite check", "tool", chk.Tool, "status", chk.Status, "version", chk.Version)
		i.bus.Logf(events.LevelWarn, "", chk.Message)
	}

	res, err := i.executor.Execute(ctx, p)
	if err != nil {
		var abort *executor.AbortError
		if errors.As(err, &abort) {
			rep.Outcomes = abort.Outcomes
		}
		return rep, err
	}
	rep.Outcomes = res.Outcomes
	rep.ServerType = res.ServerType

	// Every step has completed; a late cancellation must not leave the host
	// config and the registry out of step with what is on disk.
	ctx = context.WithoutCancel(ctx)

	vr := i.verifier.Verify(ctx, p, a)
	rep.Verification = &vr
	if !vr.Success {
		i.bus.Logf(events.LevelWarn, plan.IDVerify, vr.Message)
	}

	port := opts.Port
	if port == 0 && p.Source.Kind == source.KindTemplate {
		port = i.templatePort(p.Source.TemplateID)
	}
	if !opts.SkipHostConfig {
		doc, err := i.hostCfg.Upsert(ctx, p.Name, hostconfig.Entry{
			Port:          port,
			InstallPath:   res.InstallPath,
			InstallMethod: string(p.Method),
		})
		if err != nil {
			return rep, i.commitFailed(StepHostConfig, writeKind(err), err)
		}
		if got, ok := doc.Port(p.Name); ok {
			port = got
		}
	} else if port == 0 {
		port = i.choosePort(ctx, p.Name)
	}

	entry := i.entryFor(a, p, res, opts, port)
	stored, err := i.registry.Upsert(ctx, entry)
	if err != nil {
		return rep, i.commitFailed(StepRegistry, failure.KindOf(err), err)
	}
	rep.Entry = &stored
	i.bus.Logf(events.LevelSuccess, "", fmt.Sprintf("Installed %s at %s", stored.Name, stored.InstallPath))
	i.bus.Emit(events.Installed{Entry: stored})
	return rep, nil
}

func (i *Installation) templatePort(id string) int {
	t, err := i.catalog.Get(id)
	if err != nil {
		return 0
	}
	return t.Port
}

// choosePort picks the port recorded in the registry when the host config is
// left alone: the existing host-config port, the required mapping, or the
// hashed default.
func (i *Installation) choosePort(ctx context.Context, name string) int {
	doc := i.hostCfg.Load(ctx)
	if p, ok := doc.Port(name); ok && p >= plan.MinPort && p <= plan.MaxPort {
		return p
	}
	if p, ok := hostconfig.RequiredPort(name); ok {
		return p
	}
	return hostconfig.DefaultPort(name, doc.UsedPorts(name))
}

func (i *Installation) commitFailed(stepID string, kind failure.Kind, err error) error {
	i.bus.Emit(events.Failed{StepID: stepID, Kind: kind, Message: err.Error()})
	return &failure.StepError{Kind: kind, Message: err.Error(), Err: err}
}

func writeKind(err error) failure.Kind {
	var we *hostconfig.WriteError
	if errors.As(err, &we) {
		return we.Kind()
	}
	return failure.Unknown
}

func (i *Installation) entryFor(a *analyzer.Analysis, p *plan.Plan, res *executor.Result, opts plan.Options, port int) registry.ServerEntry {
	origin := a.Source
	env := make(map[string]string)
	for k, v := range planEnv(p, opts) {
		env[k] = v
	}
	return registry.ServerEntry{
		ID:            registry.EntryID(p.Name),
		Name:          p.Name,
		Type:          serverType(a, p, res),
		InstallPath:   res.InstallPath,
		InstallMethod: string(p.Method),
		Source:        p.Source,
		Owner:         origin.Owner(),
		Repo:          repoOf(origin),
		Status:        registry.StatusInstalled,
		Config: registry.ServerConfig{
			AutoStart:   opts.AutoStart,
			Port:        port,
			Environment: env,
		},
	}
}

// planEnv is the environment the plan hands to the server, which includes
// template defaults.
func planEnv(p *plan.Plan, opts plan.Options) map[string]string {
	if s, ok := p.Step(plan.IDWriteConfig); ok {
		return s.(*plan.WriteConfig).ServerEntry.Environment
	}
	if s, ok := p.Step(plan.IDDockerRun); ok {
		return s.(*plan.DockerRun).Env
	}
	return opts.Env
}

func repoOf(d source.Descriptor) string {
	if d.Kind != source.KindGit {
		return ""
	}
	return d.RepoName()
}

// serverType names the runtime of an installation: docker, node, python or
// unknown.
func serverType(a *analyzer.Analysis, p *plan.Plan, res *executor.Result) string {
	switch {
	case p.Method == analyzer.MethodDocker:
		return "docker"
	case a.Language.IsNode():
		return string(plan.ServerNode)
	case a.Language == analyzer.Python:
		return string(plan.ServerPython)
	case res.ServerType != "":
		return string(res.ServerType)
	}
	return string(plan.ServerUnknown)
}

// Uninstall stops the container of docker installs and marks the entry
// removed. With purge the install directory is deleted (never for local
// sources, which were installed in place) and the entry is dropped. The host
// config is not modified.
func (i *Installation) Uninstall(ctx context.Context, id string, purge bool) (registry.ServerEntry, error) {
	e, err := i.registry.Get(ctx, id)
	if err != nil {
		return registry.ServerEntry{}, err
	}
	logger := i.logger.With("id", id)

	if e.InstallMethod == string(analyzer.MethodDocker) {
		name := plan.ContainerName(e.Name)
		res, err := i.host.Run(ctx, "docker", []string{"rm", "-f", name}, host.RunOptions{})
		switch {
		case err != nil:
			return e, fmt.Errorf("removing container %s: %w", name, err)
		case res.ExitCode != 0 && !strings.Contains(strings.ToLower(res.Stderr), "no such container"):
			return e, fmt.Errorf("removing container %s: %s", name, strings.TrimSpace(res.Stderr))
		}
		logger.Info("container removed", "container", name)
	}

	if purge {
		if e.Source.Kind == source.KindLocal {
			logger.Warn("not deleting local source directory", "path", e.InstallPath)
		} else if e.InstallPath != "" {
			if err := i.host.Remove(ctx, e.InstallPath, true); err != nil {
				return e, err
			}
			logger.Info("install directory deleted", "path", e.InstallPath)
		}
		if err := i.registry.Remove(ctx, id); err != nil {
			return e, err
		}
		e.Status = registry.StatusRemoved
		return e, nil
	}
	return i.registry.MarkRemoved(ctx, id)
}

// List returns the registry entries sorted by id. Removed entries are
// included only when all is set.
func (i *Installation) List(ctx context.Context, all bool) ([]registry.ServerEntry, error) {
	entries, err := i.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if all || e.Status == registry.StatusInstalled {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// Verify checks an installed entry through the verifier.
func (i *Installation) Verify(ctx context.Context, e registry.ServerEntry) verifier.Result {
	return i.verifier.VerifyEntry(ctx, e)
}
