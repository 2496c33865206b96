package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentx-labs/mcpx/internal/host"
)

// Kind discriminates Descriptor variants.
type Kind string

const (
	KindGit      Kind = "git"
	KindTemplate Kind = "template"
	KindLocal    Kind = "local"
)

// ErrInvalidSource is returned when a source argument or descriptor cannot
// be interpreted.
var ErrInvalidSource = errors.New("invalid source")

// Descriptor identifies an installation source. Exactly the fields of its
// Kind are set.
type Descriptor struct {
	Kind       Kind   `json:"kind"`
	URL        string `json:"url,omitempty"`
	Ref        string `json:"ref,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
	Path       string `json:"path,omitempty"`
}

// Git returns a git descriptor.
func Git(url, ref string) Descriptor {
	return Descriptor{Kind: KindGit, URL: url, Ref: ref}
}

// Template returns a template descriptor.
func Template(id string) Descriptor {
	return Descriptor{Kind: KindTemplate, TemplateID: id}
}

// Local returns a local-directory descriptor.
func Local(path string) Descriptor {
	return Descriptor{Kind: KindLocal, Path: path}
}

// Validate checks that the fields required by the descriptor's kind are set.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindGit:
		if d.URL == "" {
			return fmt.Errorf("%w: git source without url", ErrInvalidSource)
		}
	case KindTemplate:
		if d.TemplateID == "" {
			return fmt.Errorf("%w: template source without id", ErrInvalidSource)
		}
	case KindLocal:
		if d.Path == "" {
			return fmt.Errorf("%w: local source without path", ErrInvalidSource)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, d.Kind)
	}
	return nil
}

// String renders the descriptor the way Parse accepts it.
func (d Descriptor) String() string {
	switch d.Kind {
	case KindGit:
		if d.Ref != "" {
			return d.URL + "#" + d.Ref
		}
		return d.URL
	case KindTemplate:
		return templatePrefix + d.TemplateID
	case KindLocal:
		return d.Path
	}
	return string(d.Kind)
}

// RepoName derives the repository name: the last URL segment without a
// ".git" suffix, the directory name of a local path, or the template id.
// It returns "" when nothing usable can be derived.
func (d Descriptor) RepoName() string {
	var name string
	switch d.Kind {
	case KindGit:
		_, name = ownerAndRepo(d.URL)
	case KindLocal:
		name = host.BaseName(d.Path)
	case KindTemplate:
		name = d.TemplateID
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Owner returns the repository owner for git URLs of the form
// host/owner/repo, or "".
func (d Descriptor) Owner() string {
	if d.Kind != KindGit {
		return ""
	}
	owner, _ := ownerAndRepo(d.URL)
	return owner
}

// IsGitHub reports whether the descriptor points at a github.com repository.
func (d Descriptor) IsGitHub() bool {
	if d.Kind != KindGit {
		return false
	}
	u := strings.ToLower(d.URL)
	return strings.Contains(u, "github.com/") || strings.Contains(u, "github.com:")
}

// ownerAndRepo splits the trailing "owner/repo" segments off a git URL.
// Both https and scp-style (git@host:owner/repo.git) URLs are accepted.
func ownerAndRepo(url string) (owner, repo string) {
	u := strings.TrimRight(url, "/")
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	} else if i := strings.Index(u, ":"); i >= 0 {
		u = u[:i] + "/" + u[i+1:]
	}
	parts := strings.Split(u, "/")
	if len(parts) < 2 {
		return "", ""
	}
	repo = strings.TrimSuffix(parts[len(parts)-1], ".git")
	if len(parts) >= 3 {
		owner = parts[len(parts)-2]
	}
	return owner, repo
}
