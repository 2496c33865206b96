package analyzer

import (
	"fmt"

	"github.com/agentx-labs/mcpx/internal/source"
)

// Language is the primary implementation language of a server.
type Language string

const (
	JavaScript Language = "JavaScript"
	TypeScript Language = "TypeScript"
	Python     Language = "Python"
	Unknown    Language = "Unknown"
)

// IsNode reports whether l is installed with a Node package manager.
func (l Language) IsNode() bool { return l == JavaScript || l == TypeScript }

// Method is an installation method.
type Method string

const (
	MethodNpx    Method = "npx"
	MethodUV     Method = "uv"
	MethodPython Method = "python"
	MethodDocker Method = "docker"
)

// Methods lists the valid installation methods.
var Methods = []Method{MethodNpx, MethodUV, MethodPython, MethodDocker}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown install method %q (want npx, uv, python or docker)", s)
}

// Dependency is a declared dependency with its version specifier as written.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Analysis is the result of inspecting a source. It is not modified after
// Analyze returns.
type Analysis struct {
	Source               source.Descriptor `json:"source"`
	Language             Language          `json:"language"`
	Framework            string            `json:"framework,omitempty"`
	DeclaredDependencies []Dependency      `json:"declaredDependencies"`
	HasContainerManifest bool              `json:"hasContainerManifest"`
	ConfigFileCandidates []string          `json:"configFileCandidates"`
	RecommendedMethod    Method            `json:"recommendedMethod"`
	InstallCommandsHint  []string          `json:"installCommandsHint"`

	// PythonManifest is requirements.txt or pyproject.toml for Python sources.
	PythonManifest string `json:"pythonManifest,omitempty"`
	// DeclaredPort is the port the server listens on, or 0 when unknown.
	DeclaredPort int `json:"declaredPort,omitempty"`
	// RuntimeConstraint is engines.node or requires-python, verbatim.
	RuntimeConstraint string `json:"runtimeConstraint,omitempty"`
	// Manifests lists the recognized manifest files found at the root.
	Manifests []string `json:"manifests,omitempty"`
}

// HasHint reports whether cmd was observed as an install command.
func (a *Analysis) HasHint(cmd string) bool {
	for _, h := range a.InstallCommandsHint {
		if h == cmd {
			return true
		}
	}
	return false
}
