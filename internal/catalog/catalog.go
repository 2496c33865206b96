package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/source"
)

//go:embed templates.yaml
var builtinYAML []byte

const (
	// FileName is the name of the downloaded catalog under the mcpx home.
	FileName = "templates.yaml"

	// freshnessFile is the name of the timestamp marker file.
	freshnessFile = ".templates-updated"

	// DefaultMaxAge is the default staleness threshold (7 days).
	DefaultMaxAge = 7 * 24 * time.Hour

	fetchTimeout = 30 * time.Second
)

// ErrUnknownTemplate is returned when a template id is not in the catalog.
var ErrUnknownTemplate = errors.New("unknown template")

// Template describes one installable server template.
type Template struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Repository  string            `yaml:"repository"`
	Ref         string            `yaml:"ref,omitempty"`
	Method      string            `yaml:"method,omitempty"`
	Port        int               `yaml:"port,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
}

// Catalog is an immutable set of templates keyed by id.
type Catalog struct {
	templates map[string]Template
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Parse decodes a catalog document. Templates must have an id and a
// repository, and ids must be unique.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := &Catalog{templates: make(map[string]Template, len(f.Templates))}
	for i, t := range f.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template #%d: missing id", i+1)
		}
		if t.Repository == "" {
			return nil, fmt.Errorf("template %s: missing repository", t.ID)
		}
		if _, dup := c.templates[t.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate id", t.ID)
		}
		c.templates[t.ID] = t
	}
	return c, nil
}

// Builtin returns the catalog compiled into the binary.
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load returns the downloaded catalog at path when it exists and parses,
// and the builtin catalog otherwise.
func Load(ctx context.Context, svc host.Services, path string) *Catalog {
	if path == "" || !svc.Exists(ctx, path) {
		return Builtin()
	}
	data, err := svc.ReadFile(ctx, path)
	if err != nil {
		return Builtin()
	}
	c, err := Parse(data)
	if err != nil {
		return Builtin()
	}
	return c
}

// Get returns the template with the given id.
func (c *Catalog) Get(id string) (Template, error) {
	t, ok := c.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	return t, nil
}

// List returns all templates sorted by id.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve maps a template descriptor to the git descriptor it installs from.
// Other descriptors are returned unchanged.
func (c *Catalog) Resolve(d source.Descriptor) (source.Descriptor, error) {
	if d.Kind != source.KindTemplate {
		return d, nil
	}
	t, err := c.Get(d.TemplateID)
	if err != nil {
		return source.Descriptor{}, err
	}
	return source.Git(t.Repository, t.Ref), nil
}

// Update downloads the catalog at url, validates it and atomically replaces
// the file at path. A freshness marker is written next to it.
func Update(ctx context.Context, svc host.Services, url, path string) (*Catalog, error) {
	data, err := svc.HTTPGet(ctx, url, fetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("downloading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := svc.EnsureDir(ctx, host.Dir(path)); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	if err := host.WriteFileAtomic(ctx, svc, path, data); err != nil {
		return nil, fmt.Errorf("saving catalog: %w", err)
	}
	WriteFreshnessMarker(ctx, svc, path, time.Now())
	return c, nil
}

func markerPath(path string) string {
	return strings.TrimSuffix(path, FileName) + freshnessFile
}

// WriteFreshnessMarker records when the catalog at path was last updated.
func WriteFreshnessMarker(ctx context.Context, svc host.Services, path string, at time.Time) {
	ts := strconv.FormatInt(at.Unix(), 10)
	_ = svc.WriteFile(ctx, markerPath(path), []byte(ts))
}

// ReadFreshnessMarker returns the last update time, or the zero time when
// the marker is missing or unreadable.
func ReadFreshnessMarker(ctx context.Context, svc host.Services, path string) time.Time {
	data, err := svc.ReadFile(ctx, markerPath(path))
	if err != nil {
		return time.Time{}
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// IsStale reports whether a downloaded catalog exists and is older than
// maxAge. The builtin catalog is never stale.
func IsStale(ctx context.Context, svc host.Services, path string, maxAge time.Duration, now time.Time) bool {
	if !svc.Exists(ctx, path) {
		return false
	}
	last := ReadFreshnessMarker(ctx, svc, path)
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > maxAge
}
