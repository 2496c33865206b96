package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/hostconfig"
	"github.com/agentx-labs/mcpx/internal/install"
	"github.com/agentx-labs/mcpx/internal/prereq"
	"github.com/agentx-labs/mcpx/internal/registry"
)

var (
	checkTools   bool
	checkConfig  bool
	checkServers bool
)

func init() {
	doctorCmd.Flags().BoolVar(&checkTools, "check-tools", false, "Verify git, node, npm, python, uv and docker")
	doctorCmd.Flags().BoolVar(&checkConfig, "check-config", false, "Verify the host config and the registry are readable")
	doctorCmd.Flags().BoolVar(&checkServers, "check-servers", false, "Verify every installed server")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Health check for the toolchain and installed servers",
	Long:  `Run diagnostic checks on the local toolchain, the host application's config, the registry and installed servers.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no specific flag, run all checks.
		if !checkTools && !checkConfig && !checkServers {
			checkTools, checkConfig, checkServers = true, true, true
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		inst, err := newInstallation(ctx, newBus())
		if err != nil {
			return err
		}

		if checkTools {
			runToolsCheck(ctx, out)
		}
		if checkConfig {
			runConfigCheck(ctx, out, inst)
		}
		if checkServers {
			runServersCheck(ctx, out, inst)
		}
		return nil
	},
}

func runToolsCheck(ctx context.Context, out io.Writer) {
	fmt.Fprintln(out, "Toolchain check:")
	checks := prereq.NewChecker(hostSvc).CheckAll(ctx, prereq.All)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TOOL", "STATUS", "VERSION", "MINIMUM"})
	for _, c := range checks {
		version, minimum := c.Version, c.Minimum
		if version == "" {
			version = "-"
		}
		if minimum == "" {
			minimum = "-"
		}
		t.AppendRow(table.Row{c.Tool, statusText(c.Status), version, minimum})
	}
	t.Render()
	fmt.Fprintln(out)
}

func statusText(s prereq.Status) string {
	switch s {
	case prereq.StatusOK:
		return text.FgGreen.Sprint(s)
	case prereq.StatusMissing:
		return text.FgRed.Sprint(s)
	}
	return text.FgYellow.Sprint(s)
}

func runConfigCheck(ctx context.Context, out io.Writer, inst *install.Installation) {
	fmt.Fprintln(out, "Config check:")

	path := inst.HostConfig().Path()
	switch {
	case !hostSvc.Exists(ctx, path):
		fmt.Fprintf(out, "  [MISS] host config %s not found (created on first install)\n", path)
	default:
		data, err := hostSvc.ReadFile(ctx, path)
		if err != nil {
			fmt.Fprintf(out, "  [FAIL] cannot read host config: %v\n", err)
			break
		}
		doc, err := hostconfig.Parse(data)
		if err != nil {
			fmt.Fprintf(out, "  [FAIL] host config %s is not valid JSON (defaults are used until the next install rewrites it)\n", path)
			break
		}
		fmt.Fprintf(out, "  [ OK ] host config %s (%d servers)\n", path, len(doc.ServerNames()))
		for _, s := range hostconfig.RequiredServers {
			if _, ok := doc.Server(s.Name); !ok {
				fmt.Fprintf(out, "  [WARN] required server %s is missing (added on next install)\n", s.Name)
			}
		}
	}

	entries, err := inst.Registry().List(ctx)
	if err != nil {
		fmt.Fprintf(out, "  [FAIL] registry: %v\n", err)
	} else {
		fmt.Fprintf(out, "  [ OK ] registry %s (%d entries)\n", inst.Registry().Path(), len(entries))
	}
	fmt.Fprintln(out)
}

func runServersCheck(ctx context.Context, out io.Writer, inst *install.Installation) {
	fmt.Fprintln(out, "Servers check:")
	entries, err := inst.List(ctx, false)
	if err != nil {
		fmt.Fprintf(out, "  [FAIL] %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "  [INFO] No servers installed")
		return
	}
	for _, e := range entries {
		printServerCheck(ctx, out, inst, e)
	}
}

func printServerCheck(ctx context.Context, out io.Writer, inst *install.Installation, e registry.ServerEntry) {
	res := inst.Verify(ctx, e)
	if res.Success {
		fmt.Fprintf(out, "  [ OK ] %s\n", e.ID)
		return
	}
	fmt.Fprintf(out, "  [FAIL] %s\n", e.ID)
	for _, is := range res.Issues {
		fmt.Fprintf(out, "         %s: %s\n", is.Severity, is.Message)
	}
}
