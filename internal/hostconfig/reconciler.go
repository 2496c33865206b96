package hostconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
)

// Defaults of a freshly created config.
const (
	DefaultGlobalShortcut = "Ctrl+Space"
	DefaultTheme          = "dark"
)

const (
	keyShortcut = "globalShortcut"
	keyTheme    = "theme"
	keyServers  = "mcpServers"

	keyEnabled       = "enabled"
	keyPort          = "port"
	keyInstallPath   = "installPath"
	keyInstallMethod = "installMethod"
)

// maxRepairPasses bounds schema repair; each pass can only fix issues one
// nesting level deeper than the last.
const maxRepairPasses = 4

// Entry is what an installation contributes to the host config. A Port
// outside the host's range (including zero) lets the reconciler choose.
type Entry struct {
	Port          int
	InstallPath   string
	InstallMethod string
}

// Document is a host config held as generic JSON. Numbers are json.Number so
// they are written back exactly as read.
type Document struct {
	root map[string]any
	// FromDisk is false when the file was absent or unreadable and the
	// document holds defaults.
	FromDisk bool
}

// NewDocument returns the default document.
func NewDocument() *Document {
	return &Document{root: map[string]any{
		keyShortcut: DefaultGlobalShortcut,
		keyTheme:    DefaultTheme,
		keyServers:  map[string]any{},
	}}
}

// Parse decodes a host config. The top level must be a JSON object.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("parsing host config: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("parsing host config: top level is null")
	}
	return &Document{root: root, FromDisk: true}, nil
}

// Bytes renders the document as indented JSON with sorted keys.
func (d *Document) Bytes() ([]byte, error) {
	data, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding host config: %w", err)
	}
	return append(data, '\n'), nil
}

// ServerNames returns the names under mcpServers, sorted.
func (d *Document) ServerNames() []string {
	servers := d.servers()
	names := make([]string, 0, len(servers))
	for n := range servers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Server returns the entry object for name.
func (d *Document) Server(name string) (map[string]any, bool) {
	obj, ok := d.servers()[name].(map[string]any)
	return obj, ok
}

// Port returns the integer port of name's entry.
func (d *Document) Port(name string) (int, bool) {
	obj, ok := d.Server(name)
	if !ok {
		return 0, false
	}
	return intValue(obj[keyPort])
}

func (d *Document) servers() map[string]any {
	s, _ := d.root[keyServers].(map[string]any)
	return s
}

// UsedPorts returns the valid ports of every entry except name's.
func (d *Document) UsedPorts(except string) map[int]bool {
	used := make(map[int]bool)
	for n, v := range d.servers() {
		if n == except {
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			if p, ok := intValue(obj[keyPort]); ok {
				used[p] = true
			}
		}
	}
	return used
}

// ensureShape fills missing top-level keys. Existing values are left for
// schema repair to judge.
func (d *Document) ensureShape() {
	if _, ok := d.root[keyShortcut]; !ok {
		d.root[keyShortcut] = DefaultGlobalShortcut
	}
	if _, ok := d.root[keyTheme]; !ok {
		d.root[keyTheme] = DefaultTheme
	}
	if _, ok := d.root[keyServers]; !ok {
		d.root[keyServers] = map[string]any{}
	}
}

// ensureServer fills the missing keys of name's entry, creating it when
// absent. Existing keys win.
func (d *Document) ensureServer(name string, e Entry) {
	servers := d.servers()
	obj, ok := servers[name].(map[string]any)
	if !ok {
		if _, present := servers[name]; present {
			// Not an object: left for schema repair.
			return
		}
		obj = map[string]any{}
		servers[name] = obj
	}
	if _, ok := obj[keyEnabled]; !ok {
		obj[keyEnabled] = true
	}
	if _, ok := obj[keyPort]; !ok {
		port := e.Port
		if !validPort(port) {
			port = DefaultPort(name, d.UsedPorts(name))
		}
		obj[keyPort] = number(port)
	}
	if _, ok := obj[keyInstallPath]; !ok && e.InstallPath != "" {
		obj[keyInstallPath] = e.InstallPath
	}
	if _, ok := obj[keyInstallMethod]; !ok && e.InstallMethod != "" {
		obj[keyInstallMethod] = e.InstallMethod
	}
}

// EnsureRequired adds every required server that is missing.
func (d *Document) EnsureRequired() {
	d.ensureShape()
	if d.servers() == nil {
		return
	}
	for _, s := range RequiredServers {
		d.ensureServer(s.Name, Entry{Port: s.Port})
	}
}

// Upsert inserts or completes name's entry.
func (d *Document) Upsert(name string, e Entry) {
	d.ensureShape()
	if d.servers() == nil {
		return
	}
	d.ensureServer(name, e)
}

// Repair replaces values that fail the schema with defaults and returns the
// issues it fixed.
func (d *Document) Repair() ([]Issue, error) {
	var fixed []Issue
	for pass := 0; pass < maxRepairPasses; pass++ {
		issues, err := validate(d.root)
		if err != nil {
			return fixed, err
		}
		if len(issues) == 0 {
			return fixed, nil
		}
		for _, is := range issues {
			d.repair(is.Location)
		}
		fixed = append(fixed, issues...)
	}
	issues, err := validate(d.root)
	if err != nil {
		return fixed, err
	}
	if len(issues) > 0 {
		return fixed, fmt.Errorf("host config still invalid at %s: %s", issues[0].Path(), issues[0].Message)
	}
	return fixed, nil
}

func (d *Document) repair(loc []string) {
	if len(loc) == 0 {
		return
	}
	switch loc[0] {
	case keyShortcut:
		d.root[keyShortcut] = DefaultGlobalShortcut
	case keyTheme:
		d.root[keyTheme] = DefaultTheme
	case keyServers:
		switch len(loc) {
		case 1:
			d.root[keyServers] = map[string]any{}
		case 2:
			name := loc[1]
			if _, ok := d.servers()[name].(map[string]any); !ok {
				delete(d.servers(), name)
			}
			d.ensureServer(name, Entry{})
		default:
			name := loc[1]
			obj, ok := d.servers()[name].(map[string]any)
			if !ok {
				return
			}
			switch loc[2] {
			case keyEnabled:
				obj[keyEnabled] = true
			case keyPort:
				obj[keyPort] = number(DefaultPort(name, d.UsedPorts(name)))
			case keyInstallPath, keyInstallMethod:
				delete(obj, loc[2])
			}
		}
	}
}

// Reconciler owns the host config file at one path.
type Reconciler struct {
	host   host.Services
	path   string
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New returns a Reconciler for the config at path.
func New(svc host.Services, path string, opts ...Option) *Reconciler {
	r := &Reconciler{host: svc, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the config file path.
func (r *Reconciler) Path() string { return r.path }

// Load reads the config. A missing or unparsable file yields the default
// document; nothing is written.
func (r *Reconciler) Load(ctx context.Context) *Document {
	if !r.host.Exists(ctx, r.path) {
		return NewDocument()
	}
	data, err := r.host.ReadFile(ctx, r.path)
	if err != nil {
		r.logger.Warn("reading host config, using defaults", "path", r.path, "error", err)
		return NewDocument()
	}
	doc, err := Parse(data)
	if err != nil {
		r.logger.Warn("host config is not valid JSON, using defaults", "path", r.path, "error", err)
		return NewDocument()
	}
	return doc
}

// Upsert merges name's entry into the config, guarantees the required
// servers and writes the result atomically. Concurrent calls for the same
// path are serialized and each re-reads the file.
func (r *Reconciler) Upsert(ctx context.Context, name string, e Entry) (*Document, error) {
	mu := host.PathLock(r.path)
	mu.Lock()
	defer mu.Unlock()

	doc := r.Load(ctx)
	doc.ensureShape()
	fixed, err := doc.Repair()
	for _, is := range fixed {
		r.logger.Warn("replaced invalid host config value", "path", is.Path(), "reason", is.Message)
	}
	if err != nil {
		return nil, err
	}
	doc.EnsureRequired()
	doc.Upsert(name, e)

	data, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	if err := r.host.EnsureDir(ctx, host.Dir(r.path)); err != nil {
		return nil, &WriteError{Err: err}
	}
	if err := host.WriteFileAtomic(ctx, r.host, r.path, data); err != nil {
		return nil, &WriteError{Err: err}
	}
	r.logger.Debug("host config updated", "path", r.path, "server", name)
	return doc, nil
}

// WriteError is a failure to persist the host config. The file on disk is
// unchanged.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "writing host config: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// Kind classifies the failure: Permission or Disk when the message says
// so, Unknown otherwise.
func (e *WriteError) Kind() failure.Kind {
	switch k := failure.ClassifyError(e.Err); k {
	case failure.Permission, failure.Disk:
		return k
	default:
		return failure.Unknown
	}
}

func number(n int) json.Number { return json.Number(strconv.Itoa(n)) }

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// validPort reports whether p is inside the host's port range.
func validPort(p int) bool { return p >= plan.MinPort && p <= plan.MaxPort }
