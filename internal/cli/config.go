package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/mcpx/internal/config"
)

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage user settings",
	Long:  `Read and write mcpx settings stored at ~/.mcpx/config.yaml. MCPX_<KEY> environment variables override the file.`,
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.Set(key, value); err != nil {
			return fmt.Errorf("setting config key %q: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Get a configuration value",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.IsKey(args[0]) {
			return fmt.Errorf("unknown setting %q", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), resolvedValue(args[0]))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.FilePath())
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every setting with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.Keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, resolvedValue(k))
		}
		return nil
	},
}

// resolvedValue shows the effective value, including platform defaults the
// raw key does not carry.
func resolvedValue(key string) string {
	switch key {
	case config.KeyInstallRoot:
		return settings.InstallRoot
	case config.KeyPacing:
		return settings.Pacing.String()
	case config.KeyCloneTimeout:
		return settings.CloneTimeout.String()
	case config.KeyConfigTimeout:
		return settings.ConfigTimeout.String()
	case config.KeyRegistryPath:
		return settings.RegistryPath
	case config.KeyHostConfigPath:
		return settings.HostConfigPath
	case config.KeyTemplatesURL:
		return settings.TemplatesURL
	case config.KeyLogLevel:
		return settings.LogLevel
	}
	return config.Get(key)
}
