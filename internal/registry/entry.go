package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentx-labs/mcpx/internal/source"
)

// Status of an installation.
type Status string

const (
	StatusInstalled Status = "installed"
	StatusRemoved   Status = "removed"
)

// ServerConfig is the runtime configuration recorded with an entry.
type ServerConfig struct {
	AutoStart   bool              `json:"autoStart"`
	Port        int               `json:"port"`
	Environment map[string]string `json:"environment"`
}

// ServerEntry describes one installed server.
type ServerEntry struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	InstallPath   string            `json:"installPath"`
	InstallMethod string            `json:"installMethod"`
	Source        source.Descriptor `json:"source"`
	Owner         string            `json:"owner,omitempty"`
	Repo          string            `json:"repo,omitempty"`
	InstalledAt   time.Time         `json:"installedAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Status        Status            `json:"status"`
	Config        ServerConfig      `json:"config"`
}

// EntryID derives the stable id of an installation from its repository
// name. When no name is available a random token is used instead.
func EntryID(repoName string) string {
	if repoName == "" {
		return "mcp-" + uuid.NewString()[:8]
	}
	return "mcp-" + repoName
}

// Validate checks the fields every persisted entry must carry.
func (e ServerEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("server entry has no id")
	}
	if e.Name == "" {
		return fmt.Errorf("server entry %s has no name", e.ID)
	}
	switch e.Status {
	case StatusInstalled, StatusRemoved:
	default:
		return fmt.Errorf("server entry %s has invalid status %q", e.ID, e.Status)
	}
	return nil
}

// Clone returns a copy that shares no maps with e.
func (e ServerEntry) Clone() ServerEntry {
	if e.Config.Environment != nil {
		env := make(map[string]string, len(e.Config.Environment))
		for k, v := range e.Config.Environment {
			env[k] = v
		}
		e.Config.Environment = env
	}
	return e
}
