package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/branding"
	"github.com/agentx-labs/mcpx/internal/catalog"
)

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesUpdateCmd)
	templatesCmd.AddCommand(templatesStatusCmd)
	rootCmd.AddCommand(templatesCmd)
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage the MCP server template catalog",
	Long: `Manage the catalog of named server templates installed with 'template:<id>'.

A catalog is compiled into the binary. 'templates update' downloads a newer
one to ~/.mcpx/templates.yaml, which then takes precedence.`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printTemplates(cmd.OutOrStdout(), loadCatalog(cmd.Context()).List())
		return nil
	},
}

var templatesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download the latest template catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Updating templates from %s...\n", settings.TemplatesURL)
		c, err := catalog.Update(cmd.Context(), hostSvc, settings.TemplatesURL, settings.TemplatesPath)
		if err != nil {
			return fmt.Errorf("updating templates: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Template catalog updated (%d templates).\n", len(c.List()))
		return nil
	},
}

var templatesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog status and location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Catalog path: %s\n", settings.TemplatesPath)
		fmt.Fprintf(out, "Source URL:   %s\n", settings.TemplatesURL)

		if !hostSvc.Exists(ctx, settings.TemplatesPath) {
			fmt.Fprintln(out, "Status:       using builtin catalog")
			fmt.Fprintf(out, "\nRun '%s templates update' to download the latest catalog.\n", branding.CLIName())
			return nil
		}

		lastUpdated := catalog.ReadFreshnessMarker(ctx, hostSvc, settings.TemplatesPath)
		if lastUpdated.IsZero() {
			fmt.Fprintln(out, "Last updated: unknown")
		} else {
			age := time.Since(lastUpdated).Truncate(time.Minute)
			fmt.Fprintf(out, "Last updated: %s (%s ago)\n", lastUpdated.Format(time.RFC3339), age)
		}

		if catalog.IsStale(ctx, hostSvc, settings.TemplatesPath, catalog.DefaultMaxAge, time.Now()) {
			fmt.Fprintf(out, "Status:       stale (run '%s templates update')\n", branding.CLIName())
		} else {
			fmt.Fprintln(out, "Status:       up to date")
		}
		return nil
	},
}

func printTemplates(w io.Writer, templates []catalog.Template) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "NAME", "METHOD", "PORT", "DESCRIPTION"})
	for _, tpl := range templates {
		method := tpl.Method
		if method == "" {
			method = "auto"
		}
		port := "-"
		if tpl.Port > 0 {
			port = fmt.Sprint(tpl.Port)
		}
		t.AppendRow(table.Row{tpl.ID, tpl.Name, method, port, tpl.Description})
	}
	t.Render()
}
