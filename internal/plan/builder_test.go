package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/source"
)

const fooURL = "https://github.com/example/foo-mcp"

func nodeAnalysis() *analyzer.Analysis {
	return &analyzer.Analysis{
		Source:               source.Git(fooURL, ""),
		Language:             analyzer.JavaScript,
		DeclaredDependencies: []analyzer.Dependency{},
		ConfigFileCandidates: []string{"config.json"},
		RecommendedMethod:    analyzer.MethodNpx,
		InstallCommandsHint:  []string{"npm install"},
	}
}

func stepIDs(p *Plan) []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.Common().ID
	}
	return ids
}

func TestBuild_GitNodeSuccessPlan(t *testing.T) {
	p, err := NewBuilder(host.PlatformLinux).Build(nodeAnalysis(), Options{})
	require.NoError(t, err)

	assert.Equal(t, analyzer.MethodNpx, p.Method)
	assert.Equal(t, "/opt/mcp/servers/foo-mcp", p.InstallPath)
	assert.Equal(t, "foo-mcp", p.Name)
	assert.Equal(t, []string{"prepare-directory", "clone", "npm-install", "write-config", "verify"}, stepIDs(p))

	prep := p.Steps[0].(*PrepareDirectory)
	assert.Equal(t, "/opt/mcp/servers/foo-mcp", prep.Path)

	clone := p.Steps[1].(*Clone)
	assert.Equal(t, fooURL, clone.URL)
	assert.Equal(t, "/opt/mcp/servers/foo-mcp", clone.TargetPath)

	npm := p.Steps[2].(*NpmInstall)
	assert.Equal(t, "/opt/mcp/servers/foo-mcp", npm.Cwd)
	assert.Empty(t, npm.Scripts)
	assert.Equal(t, "npm", npm.PackageManager())

	wc := p.Steps[3].(*WriteConfig)
	assert.Equal(t, []string{"config.json"}, wc.ConfigFileCandidates)
	assert.Equal(t, "foo-mcp", wc.ServerEntry.Name)

	assert.Equal(t, "/opt/mcp/servers/foo-mcp", p.Steps[4].(*Verify).Path)
}

func TestBuild_BuildScriptFromHints(t *testing.T) {
	a := nodeAnalysis()
	a.InstallCommandsHint = []string{"npm install", "npm run build"}

	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{Scripts: []string{"build", "postinstall"}})
	require.NoError(t, err)

	npm := p.Steps[2].(*NpmInstall)
	assert.Equal(t, []string{"build", "postinstall"}, npm.Scripts)
}

func TestBuild_DockerPlan(t *testing.T) {
	a := nodeAnalysis()
	a.HasContainerManifest = true
	a.RecommendedMethod = analyzer.MethodDocker

	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
	require.NoError(t, err)

	assert.Equal(t, analyzer.MethodDocker, p.Method)
	assert.Equal(t, []string{"prepare-directory", "clone", "docker-build", "docker-run", "write-config", "verify"}, stepIDs(p))

	build := p.Steps[2].(*DockerBuild)
	assert.Equal(t, "mcp-foo-mcp", build.ImageTag)

	run := p.Steps[3].(*DockerRun)
	assert.Equal(t, "mcp-foo-mcp", run.ContainerName)
	assert.Equal(t, "mcp-foo-mcp", run.ImageTag)
	assert.Equal(t, []PortBinding{{Host: 3000, Container: 3000}}, run.PortBindings)
	assert.Equal(t, []VolumeBinding{{HostPath: "/opt/mcp/servers/foo-mcp", ContainerPath: "/app/data"}}, run.VolumeBindings)

	for _, s := range p.Steps {
		assert.NotEqual(t, KindNpmInstall, s.Kind())
		assert.NotEqual(t, KindPipInstall, s.Kind())
	}
}

func TestBuild_DockerUsesDeclaredPort(t *testing.T) {
	a := nodeAnalysis()
	a.RecommendedMethod = analyzer.MethodDocker
	a.DeclaredPort = 8080

	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
	require.NoError(t, err)
	run := p.Steps[3].(*DockerRun)
	assert.Equal(t, []PortBinding{{Host: 8080, Container: 8080}}, run.PortBindings)
}

func TestBuild_Python(t *testing.T) {
	a := &analyzer.Analysis{
		Source:            source.Git(fooURL, "v2"),
		Language:          analyzer.Python,
		RecommendedMethod: analyzer.MethodPython,
		PythonManifest:    "requirements.txt",
	}

	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"prepare-directory", "clone", "pip-install", "verify"}, stepIDs(p), "no WriteConfig without candidates")
	assert.Equal(t, "v2", p.Steps[1].(*Clone).Ref)

	pip := p.Steps[2].(*PipInstall)
	assert.Equal(t, "requirements.txt", pip.RequirementsFile)
	assert.Equal(t, "pip", pip.Installer)

	p, err = NewBuilder(host.PlatformLinux).Build(a, Options{Method: analyzer.MethodUV})
	require.NoError(t, err)
	assert.Equal(t, "uv", p.Steps[2].(*PipInstall).Installer)
}

func TestBuild_UnknownLanguageDetectsServerType(t *testing.T) {
	a := &analyzer.Analysis{
		Source:            source.Git("https://gitlab.com/team/bar", ""),
		Language:          analyzer.Unknown,
		RecommendedMethod: analyzer.MethodNpx,
	}
	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"prepare-directory", "clone", "detect-server-type", "npm-install", "pip-install", "verify"}, stepIDs(p))
	assert.Equal(t, ServerNode, Guard(p.Steps[3]))
	assert.Equal(t, ServerPython, Guard(p.Steps[4]))
}

func TestBuild_WindowsDefaultPath(t *testing.T) {
	p, err := NewBuilder(host.PlatformWindows).Build(nodeAnalysis(), Options{})
	require.NoError(t, err)
	assert.Equal(t, `C:\MCP\Servers\foo-mcp`, p.InstallPath)
}

func TestBuild_InstallRootAndOverrides(t *testing.T) {
	b := NewBuilder(host.PlatformLinux, WithInstallRoot("/srv/mcp"))
	p, err := b.Build(nodeAnalysis(), Options{Name: "foo"})
	require.NoError(t, err)
	assert.Equal(t, "/srv/mcp/foo", p.InstallPath)

	p, err = b.Build(nodeAnalysis(), Options{InstallPath: "/data/foo"})
	require.NoError(t, err)
	assert.Equal(t, "/data/foo", p.InstallPath)
}

func TestBuild_LocalInstallsInPlace(t *testing.T) {
	a := nodeAnalysis()
	a.Source = source.Local("/home/u/src/bar")

	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
	require.NoError(t, err)
	assert.Equal(t, "/home/u/src/bar", p.InstallPath)
	assert.Equal(t, []string{"prepare-directory", "npm-install", "write-config", "verify"}, stepIDs(p))

	_, err = NewBuilder(host.PlatformLinux).Build(a, Options{InstallPath: "/elsewhere"})
	assert.Error(t, err)
}

func TestBuild_SkipConfigWrite(t *testing.T) {
	p, err := NewBuilder(host.PlatformLinux).Build(nodeAnalysis(), Options{SkipConfigWrite: true})
	require.NoError(t, err)
	_, ok := p.Step(IDWriteConfig)
	assert.False(t, ok)
}

func TestBuild_RejectsUnresolvedTemplate(t *testing.T) {
	a := nodeAnalysis()
	a.Source = source.Template("memory")
	_, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
	assert.Error(t, err)
}

func TestBuild_InvalidOptions(t *testing.T) {
	_, err := NewBuilder(host.PlatformLinux).Build(nodeAnalysis(), Options{Port: 80, Method: "brew"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Port")
	assert.Contains(t, err.Error(), "Method")
}

func TestBuild_RejectsUnsafeDerivedNames(t *testing.T) {
	for _, src := range []source.Descriptor{
		source.Git("https://github.com/example/..", ""),
		source.Git("https://github.com/example/.hidden", ""),
		source.Local("/work/.cache"),
	} {
		t.Run(src.String(), func(t *testing.T) {
			a := nodeAnalysis()
			a.Source = src
			p, err := NewBuilder(host.PlatformLinux).Build(a, Options{})
			require.ErrorIs(t, err, source.ErrInvalidSource)
			assert.Nil(t, p)
		})
	}

	// An explicit name makes the same source installable.
	a := nodeAnalysis()
	a.Source = source.Git("https://github.com/example/..", "")
	p, err := NewBuilder(host.PlatformLinux).Build(a, Options{Name: "example"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/mcp/servers/example", p.InstallPath)
}

func TestOptionsValidate_Name(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"foo-mcp", true},
		{"mcp_server.v2", true},
		{"..", false},
		{".", false},
		{".env", false},
		{"a/b", false},
		{`a\b`, false},
		{"a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Options{Name: tt.name}.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBuild_DeterministicAndValid(t *testing.T) {
	variants := []func(*analyzer.Analysis){
		func(a *analyzer.Analysis) {},
		func(a *analyzer.Analysis) { a.RecommendedMethod = analyzer.MethodDocker },
		func(a *analyzer.Analysis) { a.Language = analyzer.Python; a.RecommendedMethod = analyzer.MethodPython },
		func(a *analyzer.Analysis) { a.Language = analyzer.Unknown },
		func(a *analyzer.Analysis) { a.ConfigFileCandidates = nil },
		func(a *analyzer.Analysis) { a.Source = source.Local("/x/y") },
	}
	for _, platform := range []host.Platform{host.PlatformLinux, host.PlatformMacOS, host.PlatformWindows} {
		for i, mutate := range variants {
			a1, a2 := nodeAnalysis(), nodeAnalysis()
			mutate(a1)
			mutate(a2)
			p1, err := NewBuilder(platform).Build(a1, Options{})
			require.NoError(t, err, "variant %d on %s", i, platform)
			p2, err := NewBuilder(platform).Build(a2, Options{})
			require.NoError(t, err)

			assert.NoError(t, p1.Validate())
			assert.Equal(t, p1, p2, "variant %d on %s", i, platform)

			seen := map[string]bool{}
			for _, s := range p1.Steps {
				assert.False(t, seen[s.Common().ID], "duplicate id %s", s.Common().ID)
				seen[s.Common().ID] = true
			}
		}
	}
}
