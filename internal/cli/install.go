package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/branding"
	"github.com/agentx-labs/mcpx/internal/executor"
	"github.com/agentx-labs/mcpx/internal/failure"
)

var (
	installFlags   planFlags
	installYes     bool
	installVerbose bool
)

var installCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install an MCP server",
	Long: `Install an MCP server and register it with the host application.

<source> is one of:
  template:<id>             a named template (see '` + branding.CLIName() + ` templates list')
  github:<owner>/<repo>     a GitHub repository
  https://…, git@…          any git repository; append #<ref> to pick a branch or tag
  <path>                    a local directory, installed in place

The repository is analyzed, an install plan is shown, and after confirmation
the plan is executed, verified and recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installFlags.bind(installCmd)
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "Skip confirmation prompt")
	installCmd.Flags().BoolVarP(&installVerbose, "verbose", "v", false, "Show informational step messages")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	d, err := parseSource(args[0])
	if err != nil {
		return err
	}
	opts, err := installFlags.options()
	if err != nil {
		return err
	}

	// Ctrl-C stops at the next step boundary.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	bus := newBus()
	inst, err := newInstallation(ctx, bus)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzing %s...\n", d.String())
	a, p, err := inst.Plan(ctx, d, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	p.Print(out)
	fmt.Fprintln(out)

	// Prompt for confirmation unless -y is set or nobody can answer.
	if !installYes && isTerminal(os.Stdin) {
		fmt.Fprint(out, "? Proceed with installation? (Y/n) ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
			if answer != "" && answer != "y" && answer != "yes" {
				fmt.Fprintln(out, "Installation cancelled.")
				return nil
			}
		}
	}

	printer := newProgressPrinter(out, isTerminal(os.Stdout), installVerbose)
	unsubscribe := bus.Subscribe(printer.Observe)
	rep, err := inst.Run(ctx, a, p, opts)
	unsubscribe()
	printer.Stop()

	if err != nil {
		var abort *executor.AbortError
		if errors.As(err, &abort) && abort.Kind == failure.Canceled {
			fmt.Fprintln(out, "Installation cancelled.")
		}
		return err
	}

	fmt.Fprintln(out)
	if rep.Verification != nil && !rep.Verification.Success {
		fmt.Fprintf(out, "%s %s\n", text.FgYellow.Sprint("⚠"), rep.Verification.Message)
		for _, is := range rep.Verification.Issues {
			fmt.Fprintf(out, "    %s: %s\n", is.Severity, is.Message)
		}
	}
	e := rep.Entry
	fmt.Fprintf(out, "%s Installed %s (%s)\n", text.FgGreen.Sprint("✓"), e.Name, e.ID)
	fmt.Fprintf(out, "  Path:   %s\n", e.InstallPath)
	fmt.Fprintf(out, "  Method: %s\n", e.InstallMethod)
	fmt.Fprintf(out, "  Port:   %d\n", e.Config.Port)
	if !opts.SkipHostConfig {
		fmt.Fprintf(out, "  Registered in %s\n", inst.HostConfig().Path())
	}
	return nil
}
