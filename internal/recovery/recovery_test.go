package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/host/hosttest"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/source"
)

const (
	fooURL  = "https://github.com/example/foo-mcp"
	fooPath = "/opt/mcp/servers/foo-mcp"
	home    = "/home/u"
)

func nodePlan(t *testing.T) *plan.Plan {
	t.Helper()
	a := &analyzer.Analysis{
		Source:               source.Git(fooURL, ""),
		Language:             analyzer.JavaScript,
		DeclaredDependencies: []analyzer.Dependency{},
		ConfigFileCandidates: []string{"config.json"},
		RecommendedMethod:    analyzer.MethodNpx,
	}
	p, err := plan.NewBuilder(host.PlatformLinux).Build(a, plan.Options{})
	require.NoError(t, err)
	return p
}

func step(t *testing.T, p *plan.Plan, id string) plan.Step {
	t.Helper()
	s, ok := p.Step(id)
	require.True(t, ok, "step %s", id)
	return s
}

func newEnv(f *hosttest.Fake, p *plan.Plan) *Env {
	return &Env{Host: f, Plan: p, Failures: 1}
}

func TestDefaultTable_HasEveryCell(t *testing.T) {
	table := DefaultTable(DefaultBackoff())
	for _, k := range failure.Kinds {
		row, ok := table[k]
		require.True(t, ok, "row for %s", k)
		for _, sk := range plan.Kinds {
			_, ok := row[sk]
			assert.True(t, ok, "cell (%s, %s) must be explicit", k, sk)
		}
		assert.Len(t, row, len(plan.Kinds))
	}
}

func TestRecover_NeverPanicsAndMissingCellsFail(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // keeps network backoff from sleeping for real

	p := nodePlan(t)
	samples := map[plan.StepKind]plan.Step{
		plan.KindPrepareDirectory: &plan.PrepareDirectory{Path: fooPath},
		plan.KindClone:            &plan.Clone{URL: fooURL, TargetPath: fooPath},
		plan.KindNpmInstall:       &plan.NpmInstall{Cwd: fooPath},
		plan.KindPipInstall:       &plan.PipInstall{Cwd: fooPath, Installer: "pip"},
		plan.KindDockerBuild:      &plan.DockerBuild{Cwd: fooPath},
		plan.KindDockerRun:        &plan.DockerRun{ContainerName: "mcp-foo-mcp"},
		plan.KindWriteConfig:      &plan.WriteConfig{Dir: fooPath},
		plan.KindDetectServerType: &plan.DetectServerType{Cwd: fooPath},
		plan.KindVerify:           &plan.Verify{Path: fooPath},
	}
	require.Len(t, samples, len(plan.Kinds))

	for _, k := range failure.Kinds {
		for _, sk := range plan.Kinds {
			f := hosttest.New(host.PlatformLinux, home)
			f.OnCommand("", hosttest.Fail("boom", 1))
			assert.NotPanics(t, func() {
				res := e.Recover(ctx, k, samples[sk], newEnv(f, p))
				if e.Lookup(k, sk) == nil {
					assert.False(t, res.Success, "(%s, %s)", k, sk)
					assert.False(t, res.Retry, "(%s, %s)", k, sk)
				}
				if !res.Success {
					assert.False(t, res.Retry)
				}
			})
		}
	}
}

func TestRecover_PanickingStrategyFails(t *testing.T) {
	table := Table{failure.Unknown: {plan.KindVerify: StrategyFunc(func(context.Context, plan.Step, *Env) Result {
		panic("strategy bug")
	})}}
	e := NewEngine(WithTable(table))
	res := e.Recover(context.Background(), failure.Unknown, &plan.Verify{Path: fooPath},
		newEnv(hosttest.New(host.PlatformLinux, home), nil))
	assert.False(t, res.Success)
	assert.False(t, res.Retry)
	assert.Contains(t, res.Message, "strategy bug")
}

func TestExponentialSchedule(t *testing.T) {
	s := DefaultBackoff()
	assert.Equal(t, 500*time.Millisecond, s(1))
	assert.Equal(t, time.Second, s(2))
	assert.Equal(t, 2*time.Second, s(3))
}

func TestNetwork_BacksOffThroughHost(t *testing.T) {
	e := NewEngine()
	f := hosttest.New(host.PlatformLinux, home)
	p := nodePlan(t)
	clone := step(t, p, plan.IDClone)

	for n := 1; n <= MaxNetworkRetries; n++ {
		env := newEnv(f, p)
		env.Failures = n
		res := e.Recover(context.Background(), failure.Network, clone, env)
		assert.True(t, res.Success)
		assert.True(t, res.Retry)
	}
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, f.Sleeps())

	env := newEnv(f, p)
	env.Failures = MaxNetworkRetries + 1
	res := e.Recover(context.Background(), failure.Network, clone, env)
	assert.False(t, res.Success)
	assert.Len(t, f.Sleeps(), MaxNetworkRetries)
}

func TestNetwork_CanceledSleepFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := hosttest.New(host.PlatformLinux, home)
	p := nodePlan(t)
	res := NewEngine().Recover(ctx, failure.Network, step(t, p, plan.IDClone), newEnv(f, p))
	assert.False(t, res.Success)
}

func TestMissingNpm_SwitchesToAvailableManager(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	f.OnCommand("pnpm", hosttest.Err(assert.AnError))
	f.OnCommand("yarn --version", hosttest.OK("1.22.19\n"))
	p := nodePlan(t)
	s := step(t, p, plan.IDNpmInstall).(*plan.NpmInstall)

	res := NewEngine().Recover(context.Background(), failure.Missing, s, newEnv(f, p))
	assert.True(t, res.Success)
	assert.True(t, res.Retry)
	assert.Equal(t, "yarn", s.PackageManager())
	assert.Equal(t, []string{"pnpm --version", "yarn --version"}, f.CallLines())
}

func TestMissingNpm_NoAlternative(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	f.OnCommand("", hosttest.Fail("command not found", 127))
	p := nodePlan(t)
	s := step(t, p, plan.IDNpmInstall).(*plan.NpmInstall)

	res := NewEngine().Recover(context.Background(), failure.Missing, s, newEnv(f, p))
	assert.False(t, res.Success)
	assert.Equal(t, "npm", s.PackageManager(), "failed recovery leaves the step untouched")
}

func TestMissingPip_PrefersUV(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	s := &plan.PipInstall{Cwd: fooPath, RequirementsFile: "requirements.txt", Installer: "pip"}
	res := NewEngine().Recover(context.Background(), failure.Missing, s, newEnv(f, nil))
	assert.True(t, res.Success)
	assert.Equal(t, "uv", s.Installer)
}

func TestMissingWriteConfig_CreatesDir(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	s := &plan.WriteConfig{Dir: fooPath, ConfigFileCandidates: []string{"config.json"}}
	res := NewEngine().Recover(context.Background(), failure.Missing, s, newEnv(f, nil))
	assert.True(t, res.Success)
	assert.True(t, res.Retry)
	assert.True(t, f.Exists(context.Background(), fooPath))
}

func TestPermission_RelocatesPlan(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	p := nodePlan(t)

	res := NewEngine().Recover(context.Background(), failure.Permission, p.Steps[0], newEnv(f, p))
	require.True(t, res.Success)
	assert.True(t, res.Retry)

	want := "/home/u/.local/mcp/servers/foo-mcp"
	assert.Equal(t, want, p.InstallPath)
	assert.Equal(t, want, step(t, p, plan.IDPrepareDirectory).(*plan.PrepareDirectory).Path)
	assert.Equal(t, want, step(t, p, plan.IDClone).(*plan.Clone).TargetPath)
	assert.Equal(t, want, step(t, p, plan.IDNpmInstall).(*plan.NpmInstall).Cwd)
	assert.Equal(t, want, step(t, p, plan.IDWriteConfig).(*plan.WriteConfig).Dir)
	assert.Equal(t, want, step(t, p, plan.IDVerify).(*plan.Verify).Path)
	require.NoError(t, p.Validate())

	// A second permission failure under the user root is final.
	res = NewEngine().Recover(context.Background(), failure.Permission, p.Steps[0], newEnv(f, p))
	assert.False(t, res.Success)
	assert.Equal(t, want, p.InstallPath)
}

func TestPermission_LocalSourceIsNotRelocated(t *testing.T) {
	a := &analyzer.Analysis{
		Source:               source.Local("/srv/bar"),
		Language:             analyzer.Python,
		DeclaredDependencies: []analyzer.Dependency{},
		RecommendedMethod:    analyzer.MethodPython,
	}
	p, err := plan.NewBuilder(host.PlatformLinux).Build(a, plan.Options{})
	require.NoError(t, err)

	res := NewEngine().Recover(context.Background(), failure.Permission, p.Steps[0],
		newEnv(hosttest.New(host.PlatformLinux, home), p))
	assert.False(t, res.Success)
	assert.Equal(t, "/srv/bar", p.InstallPath)
}

func TestPermissionNpm_UsesUserCache(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	s := &plan.NpmInstall{Cwd: fooPath}
	e := NewEngine()

	res := e.Recover(context.Background(), failure.Permission, s, newEnv(f, nil))
	require.True(t, res.Success)
	assert.Equal(t, "/home/u/.mcpx/npm-cache", s.Env["npm_config_cache"])
	assert.True(t, f.Exists(context.Background(), "/home/u/.mcpx/npm-cache"))

	res = e.Recover(context.Background(), failure.Permission, s, newEnv(f, nil))
	assert.False(t, res.Success)
}

func TestExistsClone_MatchingRemote(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	f.OnCommand("git -C "+fooPath+" remote get-url origin", hosttest.OK("git@github.com:example/foo-mcp.git\n"))
	p := nodePlan(t)

	res := NewEngine().Recover(context.Background(), failure.Exists, step(t, p, plan.IDClone), newEnv(f, p))
	assert.True(t, res.Success)
	assert.False(t, res.Retry)
}

func TestExistsClone_DifferentRemote(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	f.OnCommand("git -C", hosttest.OK("https://github.com/other/foo-mcp\n"))
	p := nodePlan(t)

	res := NewEngine().Recover(context.Background(), failure.Exists, step(t, p, plan.IDClone), newEnv(f, p))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "other/foo-mcp")
}

func TestExistsClone_NotACheckout(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	f.OnCommand("git -C", hosttest.Fail("fatal: not a git repository", 128))
	p := nodePlan(t)

	res := NewEngine().Recover(context.Background(), failure.Exists, step(t, p, plan.IDClone), newEnv(f, p))
	assert.False(t, res.Success)
}

func TestNormalizeRemote(t *testing.T) {
	for _, u := range []string{
		"https://github.com/example/foo-mcp",
		"https://github.com/example/foo-mcp.git",
		"https://GitHub.com/example/foo-mcp/",
		"git@github.com:example/foo-mcp.git",
		"ssh://git@github.com/example/foo-mcp",
	} {
		assert.Equal(t, "github.com/example/foo-mcp", normalizeRemote(u), u)
	}
}

func TestExistsPrepareDirectory_Accepted(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	f.AddDir(fooPath)
	res := NewEngine().Recover(context.Background(), failure.Exists, &plan.PrepareDirectory{Path: fooPath}, newEnv(f, nil))
	assert.True(t, res.Success)
	assert.False(t, res.Retry)
}

func TestExistsDockerRun_RemovesContainer(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	s := &plan.DockerRun{ImageTag: "mcp-foo-mcp", ContainerName: "mcp-foo-mcp"}
	res := NewEngine().Recover(context.Background(), failure.Exists, s, newEnv(f, nil))
	assert.True(t, res.Success)
	assert.True(t, res.Retry)
	assert.Equal(t, []string{"docker rm -f mcp-foo-mcp"}, f.CallLines())
}

func TestDiskNpm_CleansCacheOnce(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, home)
	s := &plan.NpmInstall{Cwd: fooPath}
	e := NewEngine()

	res := e.Recover(context.Background(), failure.Disk, s, newEnv(f, nil))
	assert.True(t, res.Success)
	assert.Equal(t, []string{"npm cache clean --force"}, f.CallLines())

	env := newEnv(f, nil)
	env.Failures = 2
	res = e.Recover(context.Background(), failure.Disk, s, env)
	assert.False(t, res.Success)
}
