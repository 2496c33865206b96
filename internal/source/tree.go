package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/agentx-labs/mcpx/internal/host"
)

// Tree is a read-only view of the files at the root of a source.
type Tree interface {
	// Files returns the sorted names of the entries at the root.
	Files(ctx context.Context) ([]string, error)
	// ReadFile returns the contents of a root-level file.
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// DirTree reads a directory through the host port.
type DirTree struct {
	Host host.Services
	Root string
}

// Files lists the directory.
func (t DirTree) Files(ctx context.Context) ([]string, error) {
	return t.Host.ListDir(ctx, t.Root)
}

// ReadFile reads Root/name.
func (t DirTree) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return t.Host.ReadFile(ctx, host.JoinPath(t.Host.Platform(), t.Root, name))
}

// EmptyTree has no files. It stands in for remotes that cannot be browsed
// before cloning.
type EmptyTree struct{}

// Files returns nothing.
func (EmptyTree) Files(context.Context) ([]string, error) { return nil, nil }

// ReadFile always fails.
func (EmptyTree) ReadFile(_ context.Context, name string) ([]byte, error) {
	return nil, fmt.Errorf("reading %s: no such file", name)
}

const (
	githubAPIBase = "https://api.github.com"
	githubRawBase = "https://raw.githubusercontent.com"

	// remoteTimeout bounds each request made while browsing a remote tree.
	remoteTimeout = 15 * time.Second
)

// GitHubTree browses the root of a github.com repository through the
// contents API, fetching raw files on demand.
type GitHubTree struct {
	Host  host.Services
	Owner string
	Repo  string
	Ref   string
}

type contentsEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Files lists the repository root.
func (t GitHubTree) Files(ctx context.Context) ([]string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents", githubAPIBase, t.Owner, t.Repo)
	if t.Ref != "" {
		u += "?ref=" + url.QueryEscape(t.Ref)
	}
	body, err := t.Host.HTTPGet(ctx, u, remoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", t.Owner, t.Repo, err)
	}

	var entries []contentsEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing contents of %s/%s: %w", t.Owner, t.Repo, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// ReadFile fetches a raw root-level file.
func (t GitHubTree) ReadFile(ctx context.Context, name string) ([]byte, error) {
	ref := t.Ref
	if ref == "" {
		ref = "HEAD"
	}
	u := fmt.Sprintf("%s/%s/%s/%s/%s", githubRawBase, t.Owner, t.Repo, ref, name)
	body, err := t.Host.HTTPGet(ctx, u, remoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", name, err)
	}
	return body, nil
}

// TreeFor returns the tree the analyzer should inspect for d. Template
// descriptors must be resolved to git descriptors first.
func TreeFor(svc host.Services, d Descriptor) Tree {
	switch d.Kind {
	case KindLocal:
		return DirTree{Host: svc, Root: d.Path}
	case KindGit:
		if d.IsGitHub() && d.Owner() != "" {
			return GitHubTree{Host: svc, Owner: d.Owner(), Repo: d.RepoName(), Ref: d.Ref}
		}
	}
	return EmptyTree{}
}
