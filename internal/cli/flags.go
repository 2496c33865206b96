package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/analyzer"
	"github.com/agentx-labs/mcpx/internal/plan"
)

// planFlags are the options shared by install and plan.
type planFlags struct {
	method         string
	path           string
	ref            string
	name           string
	port           int
	env            map[string]string
	autoStart      bool
	skipConfig     bool
	skipHostConfig bool
	scripts        []string
}

func (f *planFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.method, "method", "", "Install method: npx, uv, python or docker (default: recommended by analysis)")
	fl.StringVar(&f.path, "path", "", "Install directory (default: <install_root>/<name>)")
	fl.StringVar(&f.ref, "ref", "", "Branch or tag to clone")
	fl.StringVar(&f.name, "name", "", "Server name (default: repository name or template id)")
	fl.IntVar(&f.port, "port", 0, "Host-config port in [3010, 3099] (default: chosen automatically)")
	fl.StringToStringVarP(&f.env, "env", "e", nil, "Environment variables for the server (KEY=VALUE, repeatable)")
	fl.BoolVar(&f.autoStart, "auto-start", false, "Mark the server to start automatically")
	fl.BoolVar(&f.skipConfig, "skip-config", false, "Do not write server-local configuration files")
	fl.BoolVar(&f.skipHostConfig, "skip-host-config", false, "Do not modify the host application's config")
	fl.StringSliceVar(&f.scripts, "script", nil, "Extra npm scripts to run after install (repeatable)")
}

func (f *planFlags) options() (plan.Options, error) {
	opts := plan.Options{
		InstallPath:     f.path,
		Ref:             f.ref,
		Name:            f.name,
		Port:            f.port,
		Env:             f.env,
		AutoStart:       f.autoStart,
		SkipConfigWrite: f.skipConfig,
		SkipHostConfig:  f.skipHostConfig,
		Scripts:         f.scripts,
	}
	if f.method != "" {
		m, err := analyzer.ParseMethod(f.method)
		if err != nil {
			return plan.Options{}, err
		}
		opts.Method = m
	}
	if opts.InstallPath != "" {
		abs, err := absPath(opts.InstallPath)
		if err != nil {
			return plan.Options{}, err
		}
		opts.InstallPath = abs
	}
	return opts, opts.Validate()
}

func absPath(p string) (string, error) {
	return filepath.Abs(p)
}
