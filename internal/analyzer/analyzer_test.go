package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/host/hosttest"
	"github.com/agentx-labs/mcpx/internal/source"
)

func analyzeFiles(t *testing.T, files map[string]string) *Analysis {
	t.Helper()
	f := hosttest.New(host.PlatformLinux, "/home/u")
	f.AddDir("/src/repo")
	for name, content := range files {
		f.AddFile("/src/repo/"+name, content)
	}
	d := source.Local("/src/repo")
	a, err := New().Analyze(context.Background(), d, source.DirTree{Host: f, Root: "/src/repo"})
	require.NoError(t, err)
	return a
}

func TestAnalyze_NodeWithConfig(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"package.json": `{
  "name": "foo-mcp",
  "scripts": {"build": "tsc", "start": "node dist/index.js"},
  "dependencies": {"zod": "^3.22.0", "@modelcontextprotocol/sdk": "1.0.1", "express": "~4"},
  "engines": {"node": ">=18"}
}`,
		"config.json": `{"port": 3100}`,
	})

	assert.Equal(t, JavaScript, a.Language)
	assert.False(t, a.HasContainerManifest)
	assert.Equal(t, MethodNpx, a.RecommendedMethod)
	assert.Equal(t, []Dependency{
		{"zod", "^3.22.0"},
		{"@modelcontextprotocol/sdk", "1.0.1"},
		{"express", "~4"},
	}, a.DeclaredDependencies, "declaration order and versions preserved")
	assert.Equal(t, "mcp-sdk", a.Framework)
	assert.Equal(t, []string{"config.json"}, a.ConfigFileCandidates)
	assert.Equal(t, []string{"npm install", "npm run build", "npm start"}, a.InstallCommandsHint)
	assert.Equal(t, 3100, a.DeclaredPort)
	assert.Equal(t, ">=18", a.RuntimeConstraint)
}

func TestAnalyze_TypeScript(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"package.json":  `{"name":"x"}`,
		"tsconfig.json": `{}`,
	})
	assert.Equal(t, TypeScript, a.Language)
	assert.Empty(t, a.DeclaredDependencies)
	assert.Equal(t, MethodNpx, a.RecommendedMethod)
}

func TestAnalyze_DockerWins(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"package.json": `{}`,
		"Dockerfile":   "FROM node:20\nEXPOSE 8080\n",
		".env":         "PORT=9000\n",
	})
	assert.True(t, a.HasContainerManifest)
	assert.Equal(t, MethodDocker, a.RecommendedMethod)
	assert.Equal(t, 8080, a.DeclaredPort, "Dockerfile EXPOSE is checked before .env")
	assert.Contains(t, a.InstallCommandsHint, "docker build")
	assert.Equal(t, []string{".env"}, a.ConfigFileCandidates)
}

func TestAnalyze_ComposeOnly(t *testing.T) {
	a := analyzeFiles(t, map[string]string{"docker-compose.yml": "services: {}\n"})
	assert.True(t, a.HasContainerManifest)
	assert.Equal(t, Unknown, a.Language)
	assert.Equal(t, MethodDocker, a.RecommendedMethod)
	assert.Equal(t, []string{"docker-compose.yml"}, a.ConfigFileCandidates)
}

func TestAnalyze_PythonRequirements(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"requirements.txt": "# deps\nmcp[cli]>=1.2.0\nhttpx==0.27.0 ; python_version >= '3.10'\n-r other.txt\nrequests\n",
		"environment.json": `{}`,
		".env":             "PORT=3200\n",
	})
	assert.Equal(t, Python, a.Language)
	assert.Equal(t, MethodPython, a.RecommendedMethod)
	assert.Equal(t, "requirements.txt", a.PythonManifest)
	assert.Equal(t, []Dependency{
		{"mcp[cli]", ">=1.2.0"},
		{"httpx", "==0.27.0"},
		{"requests", ""},
	}, a.DeclaredDependencies)
	assert.Equal(t, "mcp-sdk", a.Framework)
	assert.Equal(t, []string{".env", "environment.json"}, a.ConfigFileCandidates)
	assert.Equal(t, 3200, a.DeclaredPort)
}

func TestAnalyze_PyProjectPEP621(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"pyproject.toml": `[project]
name = "srv"
requires-python = ">=3.10"
dependencies = ["fastmcp>=2.0", "pydantic"]
`,
	})
	assert.Equal(t, Python, a.Language)
	assert.Equal(t, "pyproject.toml", a.PythonManifest)
	assert.Equal(t, []Dependency{{"fastmcp", ">=2.0"}, {"pydantic", ""}}, a.DeclaredDependencies)
	assert.Equal(t, "fastmcp", a.Framework)
	assert.Equal(t, ">=3.10", a.RuntimeConstraint)
}

func TestAnalyze_PyProjectPoetry(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"pyproject.toml": `[tool.poetry.dependencies]
python = "^3.11"
httpx = "^0.27"
mcp = { version = "1.3.0", extras = ["cli"] }
`,
	})
	assert.Equal(t, []Dependency{{"httpx", "^0.27"}, {"mcp", "1.3.0"}}, a.DeclaredDependencies)
	assert.Equal(t, "^3.11", a.RuntimeConstraint)
}

func TestAnalyze_NoManifests(t *testing.T) {
	a := analyzeFiles(t, map[string]string{"main.go": "package main"})
	assert.Equal(t, Unknown, a.Language)
	assert.Empty(t, a.DeclaredDependencies)
	assert.NotNil(t, a.DeclaredDependencies)
	assert.Equal(t, MethodNpx, a.RecommendedMethod)
	assert.Zero(t, a.DeclaredPort)
}

func TestAnalyze_MalformedManifestIsNotAnError(t *testing.T) {
	a := analyzeFiles(t, map[string]string{"package.json": `{"dependencies": [`})
	assert.Equal(t, JavaScript, a.Language)
	assert.Empty(t, a.DeclaredDependencies)
}

func TestAnalyze_ReadmeHints(t *testing.T) {
	a := analyzeFiles(t, map[string]string{
		"package.json": `{}`,
		"README.md":    "## Setup\n\n```\nnpm install\nnpm run build\n```\n",
	})
	assert.True(t, a.HasHint("npm run build"))
}

type failingTree struct{ source.EmptyTree }

func (failingTree) Files(context.Context) ([]string, error) {
	return nil, errors.New("EACCES: permission denied")
}

func TestAnalyze_IOErrorPropagates(t *testing.T) {
	_, err := New().Analyze(context.Background(), source.Local("/x"), failingTree{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestAnalyze_EmptyRemoteTree(t *testing.T) {
	a, err := New().Analyze(context.Background(), source.Git("https://gitlab.com/a/b", ""), source.EmptyTree{})
	require.NoError(t, err)
	assert.Equal(t, Unknown, a.Language)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("uv")
	require.NoError(t, err)
	assert.Equal(t, MethodUV, m)
	_, err = ParseMethod("brew")
	assert.Error(t, err)
}
