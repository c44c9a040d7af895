package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/config"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage warden configuration",
	Long: `Display and manage warden configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (WARDEN_* prefix)
2. Project config (./warden.toml, searches up directories)
3. User config (~/.warden/warden.toml)
4. System config (/etc/warden/warden.toml)
5. Default values

Examples:
  warden config show                       # Show current configuration
  warden config show --format json         # Show configuration in JSON format
  warden config get database.path          # Get specific config value
  warden config set monitor.interval_seconds 120
  warden config where                      # Show which file each setting came from
  warden config validate                   # Validate current configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current warden configuration merged from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, dispatch.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the user config file",
	Long: `Write a configuration value to the user config file (~/.warden/warden.toml).
The previous file is kept as a rotating backup. Values are parsed as bool,
integer, or float when possible, otherwise stored as strings.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current warden configuration is valid",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which source supplied each setting.

Lists all settings of the merged configuration together with the file or
environment variable they came from.`,
	RunE: runConfigWhere,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# warden configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json)", configFormat)
	}

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := config.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	// Get the value as interface{} to preserve type
	value := config.Get(key)
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := parseConfigValue(args[1])

	if err := config.SetValue(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	fmt.Printf("%s = %v\n", key, value)
	return nil
}

// parseConfigValue coerces CLI input to the most specific TOML type.
func parseConfigValue(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	intro, err := config.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [default]     Built-in defaults")
	fmt.Println("  2. [system]      /etc/warden/warden.toml")
	fmt.Println("  3. [user]        ~/.warden/warden.toml")
	fmt.Println("  4. [project]     ./warden.toml (searches up directories)")
	fmt.Println("  5. [environment] WARDEN_* environment variables")
	fmt.Println()

	// Group settings by source so each file is printed once
	grouped := make(map[config.ConfigSource][]config.SettingInfo)
	for _, setting := range intro.Settings {
		grouped[setting.Source] = append(grouped[setting.Source], setting)
	}

	sourceOrder := []config.ConfigSource{
		config.SourceDefault,
		config.SourceSystem,
		config.SourceUser,
		config.SourceProject,
		config.SourceEnvironment,
	}

	fmt.Println("Active configuration:")
	for _, source := range sourceOrder {
		settings := grouped[source]
		if len(settings) == 0 {
			continue
		}

		switch source {
		case config.SourceDefault:
			fmt.Printf("\n%s: %d settings\n", source, len(settings))
		case config.SourceEnvironment:
			fmt.Printf("\n%s: %d settings from environment variables\n", source, len(settings))
		default:
			fmt.Printf("\n%s: %d settings from %s\n", source, len(settings), settings[0].SourcePath)
		}

		for _, setting := range settings {
			valueStr := fmt.Sprintf("%v", setting.Value)
			if len(valueStr) > 50 {
				valueStr = valueStr[:47] + "..."
			}
			fmt.Printf("  %s = %s\n", setting.Key, valueStr)
		}
	}

	return nil
}
