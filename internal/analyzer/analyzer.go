package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/agentx-labs/mcpx/internal/source"
)

// Root-level files the analyzer recognizes.
const (
	fileDockerfile   = "Dockerfile"
	fileCompose      = "docker-compose.yml"
	filePackageJSON  = "package.json"
	fileTSConfig     = "tsconfig.json"
	fileRequirements = "requirements.txt"
	filePyProject    = "pyproject.toml"
	fileConfigJSON   = "config.json"
	fileDotEnv       = ".env"
	fileEnvJSON      = "environment.json"
)

// configCandidates is the fixed, ordered list of configuration file names.
var configCandidates = []string{fileConfigJSON, fileDotEnv, fileEnvJSON, fileCompose}

// frameworkMarkers maps dependency names to a framework label. The first
// marker present in the dependency list wins.
var frameworkMarkers = []struct {
	dep       string
	framework string
}{
	{"fastmcp", "fastmcp"},
	{"@modelcontextprotocol/sdk", "mcp-sdk"},
	{"mcp", "mcp-sdk"},
	{"express", "express"},
	{"fastapi", "fastapi"},
	{"flask", "flask"},
}

// readmeHints are canonical commands looked for in README files.
var readmeHints = []string{
	"npm install",
	"npm run build",
	"npm start",
	"pnpm install",
	"yarn install",
	"pip install -r requirements.txt",
	"pip install -e .",
	"uv sync",
	"uv pip install",
	"docker build",
	"docker compose up",
	"docker-compose up",
}

var readmeNames = []string{"README.md", "README", "README.rst", "readme.md"}

// Analyzer infers an Analysis from a source tree. It holds no state between
// calls and is safe for concurrent use.
type Analyzer struct {
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger used for non-fatal manifest problems.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New returns an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze inspects tree, the root of the source described by d. Missing or
// malformed manifests are not errors; only I/O failures are returned.
func (a *Analyzer) Analyze(ctx context.Context, d source.Descriptor, tree source.Tree) (*Analysis, error) {
	names, err := tree.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	res := &Analysis{
		Source:               d,
		Language:             Unknown,
		DeclaredDependencies: []Dependency{},
		ConfigFileCandidates: []string{},
		InstallCommandsHint:  []string{},
	}
	hints := make(map[string]bool)

	// Rule 1: container manifests.
	res.HasContainerManifest = present[fileDockerfile] || present[fileCompose]
	for _, m := range []string{fileDockerfile, fileCompose, filePackageJSON, fileTSConfig, fileRequirements, filePyProject} {
		if present[m] {
			res.Manifests = append(res.Manifests, m)
		}
	}

	// Rules 2 and 3: language and dependencies.
	switch {
	case present[filePackageJSON]:
		res.Language = JavaScript
		if present[fileTSConfig] {
			res.Language = TypeScript
		}
		if err := a.readPackageJSON(ctx, tree, res, hints); err != nil {
			return nil, err
		}

	case present[fileRequirements] || present[filePyProject]:
		res.Language = Python
		if err := a.readPython(ctx, tree, present, res); err != nil {
			return nil, err
		}
	}
	res.Framework = detectFramework(res.DeclaredDependencies)

	// Rule 4: configuration candidates in fixed order.
	for _, name := range configCandidates {
		if present[name] {
			res.ConfigFileCandidates = append(res.ConfigFileCandidates, name)
		}
	}

	if err := a.readHints(ctx, tree, present, hints); err != nil {
		return nil, err
	}
	if res.HasContainerManifest && present[fileDockerfile] {
		hints["docker build"] = true
	}
	for h := range hints {
		res.InstallCommandsHint = append(res.InstallCommandsHint, h)
	}
	sort.Strings(res.InstallCommandsHint)

	port, err := a.declaredPort(ctx, tree, present)
	if err != nil {
		return nil, err
	}
	res.DeclaredPort = port

	// Rule 5: recommended method.
	res.RecommendedMethod = Recommend(res.Language, res.HasContainerManifest)

	a.logger.Debug("analyzed source",
		"source", d.String(),
		"language", res.Language,
		"method", res.RecommendedMethod,
		"dependencies", len(res.DeclaredDependencies))
	return res, nil
}

// Recommend picks the default installation method.
func Recommend(lang Language, hasContainerManifest bool) Method {
	switch {
	case hasContainerManifest:
		return MethodDocker
	case lang == Python:
		return MethodPython
	default:
		return MethodNpx
	}
}

func (a *Analyzer) readPackageJSON(ctx context.Context, tree source.Tree, res *Analysis, hints map[string]bool) error {
	data, err := tree.ReadFile(ctx, filePackageJSON)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filePackageJSON, err)
	}
	hints["npm install"] = true

	deps, pkg, err := parsePackageJSON(data)
	if err != nil {
		a.logger.Warn("ignoring malformed manifest", "file", filePackageJSON, "error", err)
		return nil
	}
	if deps != nil {
		res.DeclaredDependencies = deps
	}
	res.RuntimeConstraint = pkg.Engines["node"]
	if _, ok := pkg.Scripts["build"]; ok {
		hints["npm run build"] = true
	}
	if _, ok := pkg.Scripts["start"]; ok {
		hints["npm start"] = true
	}
	return nil
}

func (a *Analyzer) readPython(ctx context.Context, tree source.Tree, present map[string]bool, res *Analysis) error {
	if present[filePyProject] {
		data, err := tree.ReadFile(ctx, filePyProject)
		if err != nil {
			return fmt.Errorf("reading %s: %w", filePyProject, err)
		}
		deps, constraint, err := parsePyProject(data)
		if err != nil {
			a.logger.Warn("ignoring malformed manifest", "file", filePyProject, "error", err)
		} else {
			res.DeclaredDependencies = append(res.DeclaredDependencies, deps...)
			res.RuntimeConstraint = constraint
		}
		res.PythonManifest = filePyProject
	}

	// requirements.txt is authoritative when both manifests exist.
	if present[fileRequirements] {
		data, err := tree.ReadFile(ctx, fileRequirements)
		if err != nil {
			return fmt.Errorf("reading %s: %w", fileRequirements, err)
		}
		res.DeclaredDependencies = append([]Dependency{}, parseRequirementsTxt(data)...)
		res.PythonManifest = fileRequirements
	}
	return nil
}

func (a *Analyzer) readHints(ctx context.Context, tree source.Tree, present map[string]bool, hints map[string]bool) error {
	for _, name := range readmeNames {
		if !present[name] {
			continue
		}
		data, err := tree.ReadFile(ctx, name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		text := strings.ToLower(string(data))
		for _, h := range readmeHints {
			if strings.Contains(text, h) {
				hints[h] = true
			}
		}
		return nil
	}
	return nil
}

// declaredPort checks, in order, Dockerfile EXPOSE, .env PORT and
// config.json "port".
func (a *Analyzer) declaredPort(ctx context.Context, tree source.Tree, present map[string]bool) (int, error) {
	probes := []struct {
		file  string
		parse func([]byte) int
	}{
		{fileDockerfile, portFromDockerfile},
		{fileDotEnv, portFromEnv},
		{fileConfigJSON, portFromConfigJSON},
	}
	for _, p := range probes {
		if !present[p.file] {
			continue
		}
		data, err := tree.ReadFile(ctx, p.file)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", p.file, err)
		}
		if port := p.parse(data); port > 0 && port < 65536 {
			return port, nil
		}
	}
	return 0, nil
}

func detectFramework(deps []Dependency) string {
	names := make(map[string]bool, len(deps))
	for _, d := range deps {
		name := d.Name
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		names[strings.ToLower(name)] = true
	}
	for _, m := range frameworkMarkers {
		if names[m.dep] {
			return m.framework
		}
	}
	return ""
}
