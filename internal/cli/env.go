package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/envfile"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
)

var envShowNoRedact bool

func init() {
	envShowCmd.Flags().BoolVar(&envShowNoRedact, "no-redact", false, "Show values without redaction")

	envCmd.AddCommand(envShowCmd)
	rootCmd.AddCommand(envCmd)
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Inspect installed servers' environment",
}

var envShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Print a server's environment (redacted by default)",
	Long: `Print the environment recorded for an installed server and, when present,
the .env file in its install directory. Sensitive values are redacted.

Use --no-redact to show actual values.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		inst, err := newInstallation(ctx, newBus())
		if err != nil {
			return err
		}
		id, err := resolveID(ctx, inst, args[0])
		if err != nil {
			return err
		}
		e, err := inst.Registry().Get(ctx, id)
		if err != nil {
			return err
		}

		redact := func(k, v string) string {
			if envShowNoRedact {
				return v
			}
			return envfile.RedactValue(k, v)
		}

		fmt.Fprintf(out, "# registry: %s\n", e.ID)
		if len(e.Config.Environment) == 0 {
			fmt.Fprintln(out, "(empty)")
		}
		keys := make([]string, 0, len(e.Config.Environment))
		for k := range e.Config.Environment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s=%s\n", k, redact(k, e.Config.Environment[k]))
		}

		path := host.JoinPath(hostSvc.Platform(), e.InstallPath, plan.DotEnv)
		if !hostSvc.Exists(ctx, path) {
			return nil
		}
		data, err := hostSvc.ReadFile(ctx, path)
		if err != nil {
			return err
		}
		entries, err := envfile.Parse(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		fmt.Fprintf(out, "\n# %s\n", path)
		for _, en := range entries {
			fmt.Fprintf(out, "%s=%s\n", en.Key, redact(en.Key, en.Value))
		}
		return nil
	},
}
