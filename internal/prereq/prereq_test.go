package prereq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/host/hosttest"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"git version 2.39.2\n", "2.39.2"},
		{"v20.11.0\n", "20.11.0"},
		{"Python 3.11.4", "3.11.4"},
		{"Docker version 24.0.6, build ed223bc", "24.0.6"},
		{"uv 0.4.18 (Homebrew 2024-09-28)", "0.4.18"},
		{"10.2", "10.2.0"},
	}
	for _, tt := range tests {
		v, err := ParseVersion(tt.output)
		require.NoError(t, err, tt.output)
		assert.Equal(t, tt.want, v.String())
	}

	_, err := ParseVersion("command not found")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.OnCommand("git --version", hosttest.OK("git version 2.20.1\n"))
	f.OnCommand("node --version", hosttest.OK("v20.11.0\n"))
	f.OnCommand("docker", hosttest.Fail("docker: command not found", 127))
	f.OnCommand("uv", hosttest.OK("uv installed\n"))
	c := NewChecker(f)

	git := c.Check(context.Background(), Git)
	assert.Equal(t, StatusOutdated, git.Status)
	assert.Equal(t, "2.20.1", git.Version)

	node := c.Check(context.Background(), Node)
	assert.True(t, node.OK())

	assert.Equal(t, StatusMissing, c.Check(context.Background(), Docker).Status)
	assert.Equal(t, StatusUnknown, c.Check(context.Background(), UV).Status)
}

func TestCheck_WindowsCommand(t *testing.T) {
	f := hosttest.New(host.PlatformWindows, `C:\Users\u`)
	f.OnCommand("python --version", hosttest.OK("Python 3.12.1"))
	chk := NewChecker(f).Check(context.Background(), Python)
	assert.True(t, chk.OK())
	assert.Equal(t, []string{"python --version"}, f.CallLines())
}

func TestToolsFor(t *testing.T) {
	names := func(ts []Tool) []string {
		var out []string
		for _, t := range ts {
			out = append(out, t.Name)
		}
		return out
	}
	assert.Equal(t, []string{"git", "node", "npm"}, names(ToolsFor(analyzer.MethodNpx, true)))
	assert.Equal(t, []string{"python", "uv"}, names(ToolsFor(analyzer.MethodUV, false)))
	assert.Equal(t, []string{"git", "docker"}, names(ToolsFor(analyzer.MethodDocker, true)))
}

func TestPreflight_RuntimeConstraint(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.OnCommand("git", hosttest.OK("git version 2.43.0"))
	f.OnCommand("node", hosttest.OK("v18.19.0"))
	f.OnCommand("npm", hosttest.OK("10.2.3"))
	c := NewChecker(f)

	a := &analyzer.Analysis{Language: analyzer.TypeScript, RuntimeConstraint: ">=20"}
	problems := c.Preflight(context.Background(), a, analyzer.MethodNpx, true)
	require.Len(t, problems, 1)
	assert.Equal(t, "node", problems[0].Tool)
	assert.Equal(t, StatusOutdated, problems[0].Status)

	a.RuntimeConstraint = ">=18"
	assert.Empty(t, c.Preflight(context.Background(), a, analyzer.MethodNpx, true))
}

func TestPreflight_PythonConstraint(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.OnCommand("python3", hosttest.OK("Python 3.11.4"))
	c := NewChecker(f)

	a := &analyzer.Analysis{Language: analyzer.Python, RuntimeConstraint: "^3.12"}
	problems := c.Preflight(context.Background(), a, analyzer.MethodPython, false)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, "does not satisfy")

	a.RuntimeConstraint = "~=3.10"
	assert.Empty(t, c.Preflight(context.Background(), a, analyzer.MethodPython, false))
}

func TestPreflight_MissingToolSkipsConstraint(t *testing.T) {
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.OnCommand("", hosttest.Err(assert.AnError))
	a := &analyzer.Analysis{Language: analyzer.JavaScript, RuntimeConstraint: ">=18"}
	problems := NewChecker(f).Preflight(context.Background(), a, analyzer.MethodNpx, false)
	require.Len(t, problems, 2)
	for _, p := range problems {
		assert.Equal(t, StatusMissing, p.Status)
	}
}
