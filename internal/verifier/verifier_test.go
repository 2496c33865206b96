package verifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/host/hosttest"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/registry"
	"github.com/agentx-labs/mcpx/internal/source"
)

const fooPath = "/opt/mcp/servers/foo-mcp"

func buildPlan(t *testing.T, method analyzer.Method, port int, candidates ...string) (*plan.Plan, *analyzer.Analysis) {
	t.Helper()
	a := &analyzer.Analysis{
		Source:               source.Git("https://github.com/example/foo-mcp", ""),
		Language:             analyzer.JavaScript,
		DeclaredDependencies: []analyzer.Dependency{},
		ConfigFileCandidates: candidates,
		RecommendedMethod:    method,
		DeclaredPort:         port,
	}
	p, err := plan.NewBuilder(host.PlatformLinux).Build(a, plan.Options{})
	require.NoError(t, err)
	return p, a
}

func TestVerify_AllChecksPass(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.AddFile(fooPath+"/package.json", "{}")
	f.AddFile(fooPath+"/config.json", `{"name":"foo-mcp"}`)
	f.AddFile(fooPath+"/.env", "PORT=3000\n")
	f.OpenPort("localhost:3000")
	p, a := buildPlan(t, analyzer.MethodNpx, 3000, "config.json", ".env", "docker-compose.yml")

	res := New(f).Verify(context.Background(), p, a)
	assert.True(t, res.Success, res.Message)
	assert.Empty(t, res.Issues)
	assert.Equal(t, "foo-mcp verified", res.Message)
}

func TestVerify_ReportsEachFailure(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.AddFile(fooPath+"/config.json", `{broken`)
	p, a := buildPlan(t, analyzer.MethodNpx, 3000, "config.json", ".env")

	res := New(f).Verify(context.Background(), p, a)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 3)
	assert.Contains(t, res.Issues[0].Message, "not valid JSON")
	assert.Contains(t, res.Issues[1].Message, ".env was not written")
	assert.Contains(t, res.Issues[2].Message, "localhost:3000")
	for _, is := range res.Issues {
		assert.Equal(t, SeverityError, is.Severity)
	}
	assert.Contains(t, res.Message, "3 check(s) failed")
}

func TestVerify_EmptyInstallPath(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.AddDir(fooPath)
	p, _ := buildPlan(t, analyzer.MethodNpx, 0)

	res := New(f).Verify(context.Background(), p, nil)
	assert.False(t, res.Success)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0].Message, "is empty")
}

func TestVerify_DockerContainer(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.AddFile(fooPath+"/Dockerfile", "FROM node")
	f.OnCommand("docker ps", hosttest.OK("mcp-foo-mcp\n"))
	p, _ := buildPlan(t, analyzer.MethodDocker, 0)

	res := New(f).Verify(context.Background(), p, nil)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"docker ps --filter name=^mcp-foo-mcp$ --format {{.Names}}"}, f.CallLines())

	f.OnCommand("docker ps", hosttest.OK("mcp-other\n"))
	res = New(f).Verify(context.Background(), p, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "container mcp-foo-mcp is not running")
}

func TestVerifyEntry(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.AddFile(fooPath+"/index.js", "")
	e := registry.ServerEntry{ID: "mcp-foo-mcp", Name: "foo-mcp", InstallPath: fooPath, InstallMethod: "npx"}

	assert.True(t, New(f).VerifyEntry(context.Background(), e).Success)

	e.InstallPath = "/missing"
	res := New(f).VerifyEntry(context.Background(), e)
	assert.False(t, res.Success)
	assert.Contains(t, res.Issues[0].Message, "/missing does not exist")
}
