// Package hosttest provides an in-memory implementation of host.Services for
// tests. Commands are answered by responders registered against a command
// line prefix; files live in a map; sleeps are recorded instead of waited.
package hosttest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentx-labs/mcpx/internal/host"
)

// Call records one Run invocation.
type Call struct {
	Name string
	Args []string
	Opts host.RunOptions
}

// Line renders the call as "name arg1 arg2 ...".
func (c Call) Line() string {
	return host.CommandLine(c.Name, c.Args)
}

// Responder produces the outcome of a command.
type Responder func(c Call) (host.CommandResult, error)

type responder struct {
	prefix string
	fn     Responder
}

// Fake is an in-memory host.Services. The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	files      map[string][]byte
	dirs       map[string]bool
	responders []responder
	http       map[string][]byte
	openPorts  map[string]bool
	writeErrs  map[string]error
	renameErr  error
	mkdirErrs  map[string]error

	calls  []Call
	sleeps []time.Duration
	writes []string

	platform host.Platform
	home     string
	env      map[string]string
}

var _ host.Services = (*Fake)(nil)

// New returns a Fake for platform p with the given home directory.
func New(p host.Platform, home string) *Fake {
	f := &Fake{
		files:     make(map[string][]byte),
		dirs:      make(map[string]bool),
		http:      make(map[string][]byte),
		openPorts: make(map[string]bool),
		writeErrs: make(map[string]error),
		mkdirErrs: make(map[string]error),
		platform:  p,
		home:      home,
		env:       make(map[string]string),
	}
	if home != "" {
		f.markDir(home)
	}
	return f
}

// OnCommand registers fn for every command whose line starts with prefix.
// Later registrations take precedence over earlier ones.
func (f *Fake) OnCommand(prefix string, fn Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders = append(f.responders, responder{prefix: prefix, fn: fn})
}

// AddFile stores a file and creates its parent directories.
func (f *Fake) AddFile(p string, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = []byte(content)
	f.markDir(host.Dir(p))
}

// AddDir creates a directory and its parents.
func (f *Fake) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markDir(p)
}

// File returns the contents of a stored file.
func (f *Fake) File(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return string(data), ok
}

// SetHTTP registers a body for url.
func (f *Fake) SetHTTP(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.http[url] = []byte(body)
}

// OpenPort makes DialTCP to addr succeed.
func (f *Fake) OpenPort(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openPorts[addr] = true
}

// FailWrite makes WriteFile to p fail with err.
func (f *Fake) FailWrite(p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErrs[p] = err
}

// FailRename makes every Rename fail with err.
func (f *Fake) FailRename(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renameErr = err
}

// FailEnsureDir makes EnsureDir(p) fail with err.
func (f *Fake) FailEnsureDir(p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirErrs[p] = err
}

// SetEnv sets an environment variable visible through Getenv.
func (f *Fake) SetEnv(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[key] = value
}

// Calls returns every recorded command invocation in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallLines returns the recorded command lines in order.
func (f *Fake) CallLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

// Sleeps returns every recorded Sleep duration in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// Writes returns the paths passed to WriteFile in order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Run answers the command with the most recently registered matching
// responder, or with a zero exit code when none matches.
func (f *Fake) Run(_ context.Context, name string, args []string, opts host.RunOptions) (host.CommandResult, error) {
	call := Call{Name: name, Args: append([]string(nil), args...), Opts: opts}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var fn Responder
	line := call.Line()
	for i := len(f.responders) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.responders[i].prefix) {
			fn = f.responders[i].fn
			break
		}
	}
	f.mu.Unlock()

	if fn == nil {
		return host.CommandResult{}, nil
	}
	return fn(call)
}

// ReadFile returns a stored file.
func (f *Fake) ReadFile(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file or directory", p)
	}
	return append([]byte(nil), data...), nil
}

// WriteFile stores data at p. The parent directory must exist.
func (f *Fake) WriteFile(_ context.Context, p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, p)
	if err, ok := f.writeErrs[p]; ok {
		return err
	}
	if !f.dirs[host.Dir(p)] {
		return fmt.Errorf("open %s: no such file or directory", p)
	}
	f.files[p] = append([]byte(nil), data...)
	return nil
}

// Rename moves a stored file.
func (f *Fake) Rename(_ context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	data, ok := f.files[from]
	if !ok {
		return fmt.Errorf("rename %s: no such file or directory", from)
	}
	f.files[to] = data
	delete(f.files, from)
	return nil
}

// EnsureDir creates p and its parents.
func (f *Fake) EnsureDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.mkdirErrs[p]; ok {
		return err
	}
	f.markDir(p)
	return nil
}

// Exists reports whether p is a stored file or directory.
func (f *Fake) Exists(_ context.Context, p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, isFile := f.files[p]
	return isFile || f.dirs[p]
}

// ListDir returns the sorted immediate children of p.
func (f *Fake) ListDir(_ context.Context, p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirs[p] {
		return nil, fmt.Errorf("open %s: no such file or directory", p)
	}
	seen := make(map[string]bool)
	for name := range f.files {
		if child, ok := childOf(p, name); ok {
			seen[child] = true
		}
	}
	for name := range f.dirs {
		if child, ok := childOf(p, name); ok {
			seen[child] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes p, and everything beneath it when recursive.
func (f *Fake) Remove(_ context.Context, p string, recursive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, p)
	delete(f.dirs, p)
	if recursive {
		for name := range f.files {
			if host.IsWithin(p, name) {
				delete(f.files, name)
			}
		}
		for name := range f.dirs {
			if host.IsWithin(p, name) {
				delete(f.dirs, name)
			}
		}
	}
	return nil
}

// HTTPGet returns a registered body or a not-found error.
func (f *Fake) HTTPGet(_ context.Context, url string, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.http[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: not found", url)
	}
	return body, nil
}

// DialTCP succeeds only for ports opened with OpenPort.
func (f *Fake) DialTCP(_ context.Context, addr string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.openPorts[addr] {
		return fmt.Errorf("dial tcp %s: connect: connection refused", addr)
	}
	return nil
}

// Sleep records d and returns immediately.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.mu.Unlock()
	return ctx.Err()
}

// Platform returns the configured platform.
func (f *Fake) Platform() host.Platform { return f.platform }

// HomeDir returns the configured home directory.
func (f *Fake) HomeDir() (string, error) {
	if f.home == "" {
		return "", fmt.Errorf("resolving home directory: $HOME is not defined")
	}
	return f.home, nil
}

// Getenv returns a variable set with SetEnv.
func (f *Fake) Getenv(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.env[key]
}

func (f *Fake) markDir(p string) {
	for p != "" && p != "." {
		f.dirs[p] = true
		parent := host.Dir(p)
		if parent == p {
			return
		}
		p = parent
	}
}

func childOf(dir, p string) (string, bool) {
	if !host.IsWithin(dir, p) || p == dir {
		return "", false
	}
	rest := strings.TrimLeft(p[len(strings.TrimRight(dir, `\/`)):], `\/`)
	if i := strings.IndexAny(rest, `\/`); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

// OK responds with exit code zero and the given stdout.
func OK(stdout string) Responder {
	return func(Call) (host.CommandResult, error) {
		return host.CommandResult{Stdout: stdout}, nil
	}
}

// Fail responds with a non-zero exit code and stderr.
func Fail(stderr string, exitCode int) Responder {
	return func(Call) (host.CommandResult, error) {
		return host.CommandResult{ExitCode: exitCode, Stderr: stderr}, nil
	}
}

// Err responds with a port-level error (the command could not run).
func Err(err error) Responder {
	return func(Call) (host.CommandResult, error) {
		return host.CommandResult{}, err
	}
}

// Sequence answers successive calls with successive responders; the last
// responder answers every call after the sequence is exhausted.
func Sequence(rs ...Responder) Responder {
	var mu sync.Mutex
	i := 0
	return func(c Call) (host.CommandResult, error) {
		mu.Lock()
		r := rs[i]
		if i < len(rs)-1 {
			i++
		}
		mu.Unlock()
		return r(c)
	}
}

// Join is path.Join, exported for tests that build posix paths.
func Join(elem ...string) string { return path.Join(elem...) }
