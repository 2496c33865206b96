package install

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/events"
	"github.com/agentx-labs/mcpx/internal/executor"
	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/host/hosttest"
	"github.com/agentx-labs/mcpx/internal/hostconfig"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/registry"
	"github.com/agentx-labs/mcpx/internal/source"
)

const (
	home           = "/home/u"
	fooURL         = "https://github.com/example/foo-mcp"
	fooPath        = "/opt/mcp/servers/foo-mcp"
	registryPath   = "/home/u/.mcpx/registry.json"
	hostConfigPath = "/home/u/.config/claude/config.json"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

type harness struct {
	fake  *hosttest.Fake
	bus   *events.Bus
	rec   *events.Recorder
	clock *fakeClock
	inst  *Installation
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := hosttest.New(host.PlatformLinux, home)
	f.OnCommand("git", hosttest.OK("git version 2.43.0"))
	f.OnCommand("node", hosttest.OK("v20.11.0"))
	f.OnCommand("npm", hosttest.OK("10.2.4"))
	f.OnCommand("docker", hosttest.OK("Docker version 24.0.7, build afdd53b"))

	bus := events.NewBus(nil)
	rec := &events.Recorder{}
	bus.Subscribe(rec.Observe)
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	inst, err := New(f,
		WithBus(bus),
		WithRegistryOptions(registry.WithClock(clock.now)),
		WithExecutorOptions(executor.WithPacing(0)),
	)
	require.NoError(t, err)
	return &harness{fake: f, bus: bus, rec: rec, clock: clock, inst: inst}
}

// serveFooRepo publishes a node repository with a config.json through the
// GitHub endpoints the analyzer browses.
func (h *harness) serveFooRepo() {
	h.fake.SetHTTP("https://api.github.com/repos/example/foo-mcp/contents",
		`[{"name":"package.json","type":"file"},{"name":"config.json","type":"file"}]`)
	h.fake.SetHTTP("https://raw.githubusercontent.com/example/foo-mcp/HEAD/package.json",
		`{"name":"foo-mcp","dependencies":{"@modelcontextprotocol/sdk":"^1.0.0"}}`)
	h.fake.SetHTTP("https://raw.githubusercontent.com/example/foo-mcp/HEAD/config.json", `{}`)
}

func requiredPorts() map[int]bool {
	used := make(map[int]bool)
	for _, s := range hostconfig.RequiredServers {
		used[s.Port] = true
	}
	return used
}

func TestNew_DefaultPaths(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, registryPath, h.inst.Registry().Path())
	assert.Equal(t, hostConfigPath, h.inst.HostConfig().Path())
}

func TestNew_NoHomeDir(t *testing.T) {
	_, err := New(hosttest.New(host.PlatformLinux, ""))
	assert.Error(t, err)
}

func TestInstall_GitHubNodeCommitsEverything(t *testing.T) {
	h := newHarness(t)
	h.serveFooRepo()

	rep, err := h.inst.Install(context.Background(), source.Git(fooURL, ""), plan.Options{
		Env: map[string]string{"API_KEY": "x"},
	})
	require.NoError(t, err)

	assert.Equal(t, analyzer.JavaScript, rep.Analysis.Language)
	assert.Equal(t, fooPath, rep.Plan.InstallPath)
	assert.Len(t, rep.Outcomes, len(rep.Plan.Steps))
	assert.Empty(t, rep.Preflight)
	require.NotNil(t, rep.Verification)
	assert.True(t, rep.Verification.Success, rep.Verification.Message)

	wantPort := hostconfig.DefaultPort("foo-mcp", requiredPorts())
	require.NotNil(t, rep.Entry)
	e := *rep.Entry
	assert.Equal(t, "mcp-foo-mcp", e.ID)
	assert.Equal(t, "foo-mcp", e.Name)
	assert.Equal(t, "node", e.Type)
	assert.Equal(t, "example", e.Owner)
	assert.Equal(t, "foo-mcp", e.Repo)
	assert.Equal(t, "npx", e.InstallMethod)
	assert.Equal(t, registry.StatusInstalled, e.Status)
	assert.Equal(t, wantPort, e.Config.Port)
	assert.Equal(t, map[string]string{"API_KEY": "x"}, e.Config.Environment)

	data, ok := h.fake.File(hostConfigPath)
	require.True(t, ok)
	doc, err := hostconfig.Parse([]byte(data))
	require.NoError(t, err)
	port, ok := doc.Port("foo-mcp")
	require.True(t, ok)
	assert.Equal(t, wantPort, port)
	srv, _ := doc.Server("foo-mcp")
	assert.Equal(t, fooPath, srv["installPath"])
	for _, s := range hostconfig.RequiredServers {
		_, ok := doc.Server(s.Name)
		assert.True(t, ok, s.Name)
	}

	stored, err := h.inst.Registry().Get(context.Background(), "mcp-foo-mcp")
	require.NoError(t, err)
	assert.Equal(t, e, stored)

	installed, ok := h.rec.Last().(events.Installed)
	require.True(t, ok, "last event should be installed, got %T", h.rec.Last())
	assert.Equal(t, "mcp-foo-mcp", installed.Entry.ID)
	assert.Equal(t, "npx", installed.Entry.InstallMethod)
}

func TestInstall_ExplicitPortWins(t *testing.T) {
	h := newHarness(t)
	h.serveFooRepo()

	rep, err := h.inst.Install(context.Background(), source.Git(fooURL, ""), plan.Options{Port: 3042})
	require.NoError(t, err)
	assert.Equal(t, 3042, rep.Entry.Config.Port)
}

func TestInstall_ReinstallUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	h.serveFooRepo()
	ctx := context.Background()

	first, err := h.inst.Install(ctx, source.Git(fooURL, ""), plan.Options{})
	require.NoError(t, err)

	h.clock.t = h.clock.t.Add(time.Hour)
	h.fake.OnCommand("git clone", hosttest.Fail("fatal: destination path 'foo-mcp' already exists and is not an empty directory.", 128))
	h.fake.OnCommand("git -C", hosttest.OK(fooURL+".git\n"))
	second, err := h.inst.Install(ctx, source.Git(fooURL, ""), plan.Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, first.Entry.InstalledAt, second.Entry.InstalledAt)
	assert.True(t, second.Entry.UpdatedAt.After(first.Entry.UpdatedAt))
	assert.Equal(t, first.Entry.Config.Port, second.Entry.Config.Port)

	clone, ok := (&executor.Result{Outcomes: second.Outcomes}).Outcome(plan.IDClone)
	require.True(t, ok)
	assert.Equal(t, executor.StatusSucceeded, clone.Status)
	assert.Equal(t, failure.Exists, clone.ErrorKind)

	entries, err := h.inst.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInstall_TemplateKeepsTemplateSource(t *testing.T) {
	h := newHarness(t)

	rep, err := h.inst.Install(context.Background(), source.Template("filesystem"), plan.Options{})
	require.NoError(t, err)

	assert.Equal(t, source.Template("filesystem"), rep.Plan.Source)
	assert.Equal(t, "filesystem", rep.Plan.Name)
	assert.Equal(t, analyzer.MethodNpx, rep.Plan.Method)
	assert.Equal(t, "/opt/mcp/servers/filesystem", rep.Plan.InstallPath)

	clone, ok := rep.Plan.Step(plan.IDClone)
	require.True(t, ok)
	assert.Equal(t, "https://github.com/modelcontextprotocol/servers", clone.(*plan.Clone).URL)

	// Nothing could be browsed remotely, so the type is decided after clone.
	_, ok = rep.Plan.Step(plan.IDDetectServerType)
	assert.True(t, ok)

	assert.Equal(t, "mcp-filesystem", rep.Entry.ID)
	assert.Equal(t, 3010, rep.Entry.Config.Port)
	assert.Equal(t, source.KindTemplate, rep.Entry.Source.Kind)

	// The clone produced nothing on the fake host: verification fails but
	// the install is still committed.
	require.NotNil(t, rep.Verification)
	assert.False(t, rep.Verification.Success)
	var warned bool
	for _, l := range h.rec.Logs() {
		if l.Level == events.LevelWarn && l.StepID == plan.IDVerify {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestPlan_TemplateDefaultsYieldToOptions(t *testing.T) {
	h := newHarness(t)

	_, p, err := h.inst.Plan(context.Background(), source.Template("github"), plan.Options{
		Env: map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "ghp_x", "EXTRA": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, analyzer.MethodDocker, p.Method)
	assert.Equal(t, "github", p.Name)
	run, ok := p.Step(plan.IDDockerRun)
	require.True(t, ok)
	assert.Equal(t, "mcp-github", run.(*plan.DockerRun).ContainerName)
	assert.Equal(t, map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "ghp_x", "EXTRA": "1"}, run.(*plan.DockerRun).Env)
}

func TestPlan_UnknownTemplate(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.inst.Plan(context.Background(), source.Template("nope"), plan.Options{})
	assert.Error(t, err)
}

func TestInstall_StepFailureReturnsOutcomeLog(t *testing.T) {
	h := newHarness(t)
	h.serveFooRepo()
	h.fake.OnCommand("git clone", hosttest.Fail("remote: Repository not found.", 128))

	rep, err := h.inst.Install(context.Background(), source.Git(fooURL, ""), plan.Options{})
	require.Error(t, err)

	var abort *executor.AbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, plan.IDClone, abort.StepID)
	assert.Equal(t, failure.Missing, abort.Kind)

	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, executor.StatusFailed, rep.Outcomes[1].Status)
	assert.Nil(t, rep.Entry)

	_, ok := h.fake.File(registryPath)
	assert.False(t, ok)
	_, ok = h.fake.File(hostConfigPath)
	assert.False(t, ok)

	failed, ok := h.rec.Last().(events.Failed)
	require.True(t, ok)
	assert.Equal(t, failure.Missing, failed.Kind)
}

func TestInstall_HostConfigWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.serveFooRepo()
	h.fake.FailWrite(hostConfigPath+".tmp", errors.New("write: no space left on device"))

	rep, err := h.inst.Install(context.Background(), source.Git(fooURL, ""), plan.Options{})
	require.Error(t, err)
	assert.Equal(t, failure.Disk, failure.KindOf(err))
	assert.Nil(t, rep.Entry)

	_, ok := h.fake.File(registryPath)
	assert.False(t, ok, "registry must not be written when the host config fails")

	failed, ok := h.rec.Last().(events.Failed)
	require.True(t, ok)
	assert.Equal(t, StepHostConfig, failed.StepID)
	assert.Equal(t, failure.Disk, failed.Kind)
}

func TestInstall_LocalSkipHostConfig(t *testing.T) {
	h := newHarness(t)
	h.fake.AddFile("/work/redis/package.json", `{"name":"redis"}`)

	rep, err := h.inst.Install(context.Background(), source.Local("/work/redis"), plan.Options{SkipHostConfig: true})
	require.NoError(t, err)

	assert.Equal(t, "/work/redis", rep.Entry.InstallPath)
	assert.Equal(t, "mcp-redis", rep.Entry.ID)
	assert.Empty(t, rep.Entry.Owner)
	assert.Empty(t, rep.Entry.Repo)
	// Required-server mapping applies even without a host config.
	assert.Equal(t, 3013, rep.Entry.Config.Port)

	_, ok := h.fake.File(hostConfigPath)
	assert.False(t, ok)
	for _, line := range h.fake.CallLines() {
		assert.NotEqual(t, "git --version", line, "local installs do not need git")
	}
}

func TestInstall_CancelAfterLastStepStillCommits(t *testing.T) {
	h := newHarness(t)
	h.fake.AddFile("/work/redis/package.json", `{"name":"redis"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.bus.Subscribe(func(e events.Event) {
		if p, ok := e.(events.Progress); ok && p.Phase == events.PhaseDone {
			cancel()
		}
	})

	rep, err := h.inst.Install(ctx, source.Local("/work/redis"), plan.Options{})
	require.NoError(t, err)
	require.NotNil(t, rep.Entry)

	_, ok := h.fake.File(hostConfigPath)
	assert.True(t, ok)
	_, err = h.inst.Registry().Get(context.Background(), "mcp-redis")
	assert.NoError(t, err)
}

func TestInstall_PreflightProblemsAreWarnings(t *testing.T) {
	h := newHarness(t)
	h.serveFooRepo()
	h.fake.OnCommand("node", hosttest.OK("v16.20.0"))

	rep, err := h.inst.Install(context.Background(), source.Git(fooURL, ""), plan.Options{})
	require.NoError(t, err)
	require.Len(t, rep.Preflight, 1)
	assert.Equal(t, "node", rep.Preflight[0].Tool)
	assert.NotNil(t, rep.Entry)
}

func seed(t *testing.T, h *harness, e registry.ServerEntry) {
	t.Helper()
	_, err := h.inst.Registry().Upsert(context.Background(), e)
	require.NoError(t, err)
}

func TestUninstall_DockerMarksRemoved(t *testing.T) {
	h := newHarness(t)
	h.fake.AddFile("/opt/mcp/servers/github/Dockerfile", "FROM node:20")
	seed(t, h, registry.ServerEntry{
		ID: "mcp-github", Name: "github", InstallMethod: "docker",
		InstallPath: "/opt/mcp/servers/github", Source: source.Template("github"),
	})

	e, err := h.inst.Uninstall(context.Background(), "mcp-github", false)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusRemoved, e.Status)
	assert.Contains(t, h.fake.CallLines(), "docker rm -f mcp-github")
	assert.True(t, h.fake.Exists(context.Background(), "/opt/mcp/servers/github"))

	all, err := h.inst.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	active, err := h.inst.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUninstall_MissingContainerIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.fake.OnCommand("docker rm", hosttest.Fail("Error: No such container: mcp-github", 1))
	seed(t, h, registry.ServerEntry{ID: "mcp-github", Name: "github", InstallMethod: "docker"})

	_, err := h.inst.Uninstall(context.Background(), "mcp-github", false)
	assert.NoError(t, err)
}

func TestUninstall_PurgeDeletesDirectoryAndEntry(t *testing.T) {
	h := newHarness(t)
	h.fake.AddFile(fooPath+"/package.json", "{}")
	seed(t, h, registry.ServerEntry{
		ID: "mcp-foo-mcp", Name: "foo-mcp", InstallMethod: "npx",
		InstallPath: fooPath, Source: source.Git(fooURL, ""),
	})

	_, err := h.inst.Uninstall(context.Background(), "mcp-foo-mcp", true)
	require.NoError(t, err)
	assert.False(t, h.fake.Exists(context.Background(), fooPath))

	_, err = h.inst.Registry().Get(context.Background(), "mcp-foo-mcp")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	for _, line := range h.fake.CallLines() {
		assert.NotContains(t, line, "docker rm")
	}
}

func TestUninstall_PurgeKeepsLocalSource(t *testing.T) {
	h := newHarness(t)
	h.fake.AddFile("/work/redis/package.json", "{}")
	seed(t, h, registry.ServerEntry{
		ID: "mcp-redis", Name: "redis", InstallMethod: "npx",
		InstallPath: "/work/redis", Source: source.Local("/work/redis"),
	})

	_, err := h.inst.Uninstall(context.Background(), "mcp-redis", true)
	require.NoError(t, err)
	assert.True(t, h.fake.Exists(context.Background(), "/work/redis/package.json"))
}

func TestUninstall_UnknownID(t *testing.T) {
	h := newHarness(t)
	_, err := h.inst.Uninstall(context.Background(), "mcp-nope", false)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
