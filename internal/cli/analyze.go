package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/analyzer"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source>",
	Short: "Inspect a source and report its language and recommended install method",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := parseSource(args[0])
		if err != nil {
			return err
		}
		inst, err := newInstallation(cmd.Context(), newBus())
		if err != nil {
			return err
		}
		a, err := inst.Analyze(cmd.Context(), d)
		if err != nil {
			return err
		}

		if analyzeJSON {
			data, err := json.MarshalIndent(a, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding analysis: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		printAnalysis(cmd, a)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(analyzeCmd)
}

func printAnalysis(cmd *cobra.Command, a *analyzer.Analysis) {
	out := cmd.OutOrStdout()
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	fmt.Fprintf(out, "Source:       %s\n", a.Source.String())
	fmt.Fprintf(out, "Language:     %s\n", a.Language)
	fmt.Fprintf(out, "Framework:    %s\n", orDash(a.Framework))
	fmt.Fprintf(out, "Method:       %s\n", a.RecommendedMethod)
	fmt.Fprintf(out, "Container:    %t\n", a.HasContainerManifest)
	fmt.Fprintf(out, "Config files: %s\n", orDash(strings.Join(a.ConfigFileCandidates, ", ")))
	if a.DeclaredPort > 0 {
		fmt.Fprintf(out, "Port:         %d\n", a.DeclaredPort)
	}
	if a.RuntimeConstraint != "" {
		fmt.Fprintf(out, "Runtime:      %s\n", a.RuntimeConstraint)
	}
	if len(a.InstallCommandsHint) > 0 {
		fmt.Fprintf(out, "Hints:        %s\n", strings.Join(a.InstallCommandsHint, "; "))
	}
	if len(a.DeclaredDependencies) > 0 {
		fmt.Fprintln(out, "Dependencies:")
		for _, dep := range a.DeclaredDependencies {
			fmt.Fprintf(out, "  %s %s\n", dep.Name, dep.Version)
		}
	}
}
