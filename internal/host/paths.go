package host

import (
	"path"
	"strings"

	"github.com/agentx-labs/mcpx/internal/branding"
)

// Default install roots for servers when the user does not pick a path.
const (
	windowsInstallRoot = `C:\MCP\Servers`
	posixInstallRoot   = "/opt/mcp/servers"
)

// hostConfigFile is the name of the host application's config file.
const hostConfigFile = "config.json"

// JoinPath joins path elements with the separator of platform p. Paths are
// built this way rather than with filepath so plans are identical no matter
// which OS computes them.
func JoinPath(p Platform, elem ...string) string {
	if p != PlatformWindows {
		return path.Join(elem...)
	}

	var parts []string
	for i, e := range elem {
		if e == "" {
			continue
		}
		if i > 0 {
			e = strings.TrimLeft(e, `\/`)
		}
		e = strings.TrimRight(e, `\/`)
		if e == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(e, "/", `\`))
	}
	return strings.Join(parts, `\`)
}

// BaseName returns the last element of a path written with either separator.
func BaseName(p string) string {
	p = strings.TrimRight(p, `\/`)
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// IsWithin reports whether target equals root or lies beneath it.
func IsWithin(root, target string) bool {
	root = strings.TrimRight(root, `\/`)
	if target == root {
		return true
	}
	if !strings.HasPrefix(target, root) {
		return false
	}
	rest := target[len(root):]
	return strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, `\`)
}

// DefaultInstallRoot returns the system-wide directory servers are installed
// under: C:\MCP\Servers on Windows, /opt/mcp/servers elsewhere.
func DefaultInstallRoot(p Platform) string {
	if p == PlatformWindows {
		return windowsInstallRoot
	}
	return posixInstallRoot
}

// UserInstallRoot returns a user-owned install root under home, used when the
// system-wide root is not writable.
func UserInstallRoot(p Platform, home string) string {
	if p == PlatformWindows {
		return JoinPath(p, home, "AppData", "Local", "MCP", "Servers")
	}
	return JoinPath(p, home, ".local", "mcp", "servers")
}

// HostConfigPath resolves the host application's config file:
//   - Windows: %APPDATA%\Claude\config.json
//   - macOS:   $HOME/Library/Application Support/Claude/config.json
//   - Linux:   $HOME/.config/claude/config.json
func HostConfigPath(p Platform, home string, getenv func(string) string) string {
	appDir := branding.HostAppDir()
	switch p {
	case PlatformWindows:
		appData := getenv("APPDATA")
		if appData == "" {
			appData = JoinPath(p, home, "AppData", "Roaming")
		}
		return JoinPath(p, appData, appDir, hostConfigFile)
	case PlatformMacOS:
		return JoinPath(p, home, "Library", "Application Support", appDir, hostConfigFile)
	default:
		return JoinPath(p, home, ".config", strings.ToLower(appDir), hostConfigFile)
	}
}

// Dir returns the parent directory of a path written with either separator.
func Dir(p string) string {
	trimmed := strings.TrimRight(p, `\/`)
	i := strings.LastIndexAny(trimmed, `\/`)
	switch {
	case i < 0:
		return "."
	case i == 0:
		return trimmed[:1]
	default:
		return trimmed[:i]
	}
}
