package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	planCmdFlags planFlags
	planJSON     bool
)

var planCmd = &cobra.Command{
	Use:   "plan <source>",
	Short: "Show the install plan for a source without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := parseSource(args[0])
		if err != nil {
			return err
		}
		opts, err := planCmdFlags.options()
		if err != nil {
			return err
		}
		inst, err := newInstallation(cmd.Context(), newBus())
		if err != nil {
			return err
		}
		_, p, err := inst.Plan(cmd.Context(), d, opts)
		if err != nil {
			return err
		}

		if planJSON {
			data, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding plan: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		p.Print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	planCmdFlags.bind(planCmd)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(planCmd)
}
