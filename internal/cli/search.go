package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/catalog"
)

var (
	searchMethodFilter string
	searchJSON         bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the template catalog",
	Long: `Search the template catalog.

The query matches against template ids, names, descriptions and repository
URLs (case-insensitive substring). Use --method to filter by install method.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMethodFilter, "method", "", "Filter by install method (npx, uv, python, docker)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	var results []catalog.Template
	for _, t := range loadCatalog(cmd.Context()).List() {
		if matchesSearch(t, query, searchMethodFilter) {
			results = append(results, t)
		}
	}

	if len(results) == 0 {
		if query != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "No templates matching %q\n", query)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No templates found.")
		}
		return nil
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printTemplates(cmd.OutOrStdout(), results)
	return nil
}

// matchesSearch checks whether a template matches the query and method
// filter.
func matchesSearch(t catalog.Template, query, methodFilter string) bool {
	if methodFilter != "" && !strings.EqualFold(t.Method, methodFilter) {
		return false
	}
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, field := range []string{t.ID, t.Name, t.Description, t.Repository} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
