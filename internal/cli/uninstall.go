package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/install"
	"github.com/agentx-labs/mcpx/internal/registry"
)

var uninstallPurge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <id|name>",
	Short: "Remove an installed MCP server",
	Long: `Stop the server's container (docker installs) and mark it removed in the
registry. With --purge the install directory is deleted and the registry entry
dropped. The host application's config is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallPurge, "purge", false, "Delete the install directory and the registry entry")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	inst, err := newInstallation(cmd.Context(), newBus())
	if err != nil {
		return err
	}
	id, err := resolveID(cmd.Context(), inst, args[0])
	if err != nil {
		return err
	}

	e, err := inst.Uninstall(cmd.Context(), id, uninstallPurge)
	if err != nil {
		return err
	}

	if uninstallPurge {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s and deleted its files\n", e.ID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", e.ID)
	}
	return nil
}

// resolveID accepts an entry id or a server name.
func resolveID(ctx context.Context, inst *install.Installation, arg string) (string, error) {
	_, err := inst.Registry().Get(ctx, arg)
	if err == nil {
		return arg, nil
	}
	if !errors.Is(err, registry.ErrNotFound) || strings.HasPrefix(arg, "mcp-") {
		return "", err
	}
	id := registry.EntryID(arg)
	if _, err := inst.Registry().Get(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}
