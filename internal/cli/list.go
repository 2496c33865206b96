package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/mcpx/internal/install"
	"github.com/agentx-labs/mcpx/internal/registry"
	"github.com/agentx-labs/mcpx/internal/verifier"
)

// maxConcurrentChecks bounds the verification probes of list --check.
const maxConcurrentChecks = 4

var (
	listAll   bool
	listCheck bool
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed MCP servers",
	Long:  `List the servers recorded in the local registry (~/.mcpx/registry.json).`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include removed servers")
	listCmd.Flags().BoolVar(&listCheck, "check", false, "Verify each server's install path and container")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// listEntry represents an installed server for display.
type listEntry struct {
	registry.ServerEntry
	Verification *verifier.Result `json:"verification,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	inst, err := newInstallation(cmd.Context(), newBus())
	if err != nil {
		return err
	}
	servers, err := inst.List(cmd.Context(), listAll)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No servers installed yet.")
		return nil
	}

	entries := make([]listEntry, len(servers))
	for i, s := range servers {
		entries[i].ServerEntry = s
	}
	if listCheck {
		if err := verifyAll(cmd, inst, entries); err != nil {
			return err
		}
	}

	if listJSON {
		return printListJSON(cmd.OutOrStdout(), entries)
	}
	printListTable(cmd.OutOrStdout(), entries, listCheck)
	return nil
}

// verifyAll probes the installed entries concurrently. Results land in
// entries by index.
func verifyAll(cmd *cobra.Command, inst *install.Installation, entries []listEntry) error {
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(maxConcurrentChecks)
	for i := range entries {
		if entries[i].Status != registry.StatusInstalled {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := inst.Verify(ctx, entries[i].ServerEntry)
			entries[i].Verification = &res
			return nil
		})
	}
	return g.Wait()
}

func printListTable(w io.Writer, entries []listEntry, withCheck bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	header := table.Row{"ID", "NAME", "TYPE", "METHOD", "PORT", "STATUS", "PATH"}
	if withCheck {
		header = append(header, "CHECK")
	}
	t.AppendHeader(header)

	for _, e := range entries {
		status := text.FgGreen.Sprint(e.Status)
		if e.Status == registry.StatusRemoved {
			status = text.Faint.Sprint(e.Status)
		}
		row := table.Row{e.ID, e.Name, e.Type, e.InstallMethod, e.Config.Port, status, e.InstallPath}
		if withCheck {
			row = append(row, checkCell(e.Verification))
		}
		t.AppendRow(row)
	}
	t.Render()
}

func checkCell(r *verifier.Result) string {
	switch {
	case r == nil:
		return "-"
	case r.Success:
		return text.FgGreen.Sprint("ok")
	}
	return text.FgRed.Sprint(r.Message)
}

func printListJSON(w io.Writer, entries []listEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
