package host

import (
	"context"
	"time"
)

// Platform identifies the operating system family of the workstation.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
)

// RunOptions configures a single command invocation.
type RunOptions struct {
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// CommandResult captures the outcome of a command that ran to completion.
// A non-zero ExitCode is not an error at the port level; callers decide.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Services is the port the installation pipeline drives. Implementations
// must be safe for sequential use by one executor; Local and hosttest.Fake
// are also safe for concurrent use.
type Services interface {
	// Run executes name with args. It returns an error only when the command
	// could not be started or exceeded opts.Timeout; a timeout error message
	// always contains the word "timeout".
	Run(ctx context.Context, name string, args []string, opts RunOptions) (CommandResult, error)

	// ReadFile returns the contents of path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to path and flushes it to stable storage.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Rename atomically replaces to with from.
	Rename(ctx context.Context, from, to string) error

	// EnsureDir creates path and any missing parents. Idempotent.
	EnsureDir(ctx context.Context, path string) error

	// Exists reports whether path exists. It never fails.
	Exists(ctx context.Context, path string) bool

	// ListDir returns the sorted entry names of the directory at path.
	ListDir(ctx context.Context, path string) ([]string, error)

	// Remove deletes path. Missing paths are not an error.
	Remove(ctx context.Context, path string, recursive bool) error

	// HTTPGet fetches url and returns the body of a 200 response.
	HTTPGet(ctx context.Context, url string, timeout time.Duration) ([]byte, error)

	// DialTCP opens and closes a TCP connection to addr.
	DialTCP(ctx context.Context, addr string, timeout time.Duration) error

	// Sleep returns after d, or early with ctx.Err() if ctx is done.
	Sleep(ctx context.Context, d time.Duration) error

	// Platform reports the operating system family.
	Platform() Platform

	// HomeDir returns the current user's home directory.
	HomeDir() (string, error)

	// Getenv returns the value of an environment variable.
	Getenv(key string) string
}
