package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/branding"
	"github.com/agentx-labs/mcpx/internal/catalog"
	"github.com/agentx-labs/mcpx/internal/config"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/logging"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string

	logLevelFlag string

	// settings are resolved once per invocation by the root pre-run hook.
	settings config.Settings
	hostSvc  host.Services = host.NewLocal()
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` installs MCP servers from git repositories, named templates or local
directories, registers them in the host application's configuration and
keeps a local registry of what was installed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadSettings(); err != nil {
			// Broken settings must stay fixable through "config set".
			if !isConfigCommand(cmd) {
				return err
			}
			fmt.Fprintln(os.Stderr, "Warning:", err)
		}

		// Skip banners for commands that manage their own state.
		name := cmd.Name()
		if name == "update" || name == "version" || name == "config" {
			return nil
		}
		if catalog.IsStale(cmd.Context(), hostSvc, settings.TemplatesPath, catalog.DefaultMaxAge, time.Now()) {
			fmt.Fprintf(os.Stderr, "Template catalog is more than 7 days old. Run '%s templates update'.\n", branding.CLIName())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides the log_level setting")
}

func loadSettings() error {
	config.Load()
	home, err := hostSvc.HomeDir()
	if err != nil {
		return err
	}
	s, err := config.Resolve(hostSvc.Platform(), home, hostSvc.Getenv)
	if err != nil {
		return err
	}
	if logLevelFlag != "" {
		s.LogLevel = logLevelFlag
	}
	if _, err := logging.Init(s.LogLevel, os.Stderr); err != nil {
		return err
	}
	settings = s
	return nil
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd {
			return true
		}
	}
	return false
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
