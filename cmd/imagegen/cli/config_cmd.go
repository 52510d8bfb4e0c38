package cli

import (
	"fmt"
	"os"

	"imagegen/internal/config"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print the configuration after defaults, credentials, .env and environment overrides. The auth token is redacted.",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print which config file is loaded",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

const redacted = "<redacted>"

func redactConfig(cfg *config.Config) config.Config {
	out := *cfg
	if out.API.AuthToken != "" {
		out.API.AuthToken = redacted
	}
	if out.Notifications.SlackWebhook != "" {
		out.Notifications.SlackWebhook = redacted
	}
	return out
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	shown := redactConfig(cfg)
	if jsonOut {
		printJSON(shown)
		return nil
	}
	if err := toml.NewEncoder(os.Stdout).Encode(shown); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path := config.ResolvePath(cfgPath)
	if jsonOut {
		printJSON(map[string]string{"path": path})
		return nil
	}
	if path == "" {
		fmt.Println("No config file found; using defaults.")
		return nil
	}
	fmt.Println(path)
	return nil
}
