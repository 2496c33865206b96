// Package branding provides compile-time identity values for the CLI.
//
// The identity lives in branding.yaml next to this file and is baked into
// the binary with //go:embed. Hard defaults apply when a key is missing.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	HomeDir     string `yaml:"home_dir"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	GitHubRepo  string `yaml:"github_repo"`
	HostAppDir  string `yaml:"host_app_dir"`
}

func load() {
	once.Do(func() {
		defaults = brand{
			CLIName:     "mcpx",
			DisplayName: "MCPX",
			Description: "Installer and local registry for MCP servers",
			HomeDir:     ".mcpx",
			EnvPrefix:   "MCPX",
			GoModule:    "github.com/agentx-labs/mcpx",
			GitHubRepo:  "agentx-labs/mcpx",
			HostAppDir:  "Claude",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "mcpx").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".mcpx").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "MCPX").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GitHubRepo returns the "owner/repo" string of this project.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// HostAppDir returns the directory name the host application keeps its
// configuration under (e.g., "Claude").
func HostAppDir() string { load(); return defaults.HostAppDir }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "MCPX_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
