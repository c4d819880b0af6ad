package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/prewarm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View prewarm configuration",
	Long: `View prewarm configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at $XDG_CONFIG_HOME/prewarm/prewarm.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := newPrinter(cmd.OutOrStdout())

	if viper.ConfigFileUsed() != "" {
		out.field("Config file", viper.ConfigFileUsed())
	} else {
		out.field("Config file", out.render(mutedStyle, "(none - using defaults)"))
	}
	if _, err := config.Load(); err != nil {
		out.line(out.render(errorStyle, err.Error()))
	}
	out.line("")

	settings := viper.AllSettings()
	delete(settings, "config")
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

const defaultConfigFile = `# prewarm configuration

prefetch:
  # Maximum route loads in flight
  max_concurrent: 3
  # Loads faster than this count as cache hits
  cache_hit_threshold_ms: 50
  # Critical tier: first route after this delay, then one every step
  critical_delay_ms: 500
  low_end_critical_delay_ms: 1000
  step_delay_ms: 200
  # Secondary tier: waits for idle (at most idle_timeout_ms), then this delay
  secondary_delay_ms: 2000
  idle_timeout_ms: 3000
  # Tertiary tier: second interaction, or this fallback
  tertiary_delay_ms: 5000
  # Navigation history entries kept per session
  history_limit: 10

# Device signals; zero/empty means detect from the host
device:
  hardware_concurrency: 0
  # slow-2g, 2g, 3g or 4g
  effective_type: ""

http:
  # Origin whose routes are warmed (required for run and serve)
  base_url: ""
  timeout_ms: 10000
  # 0 disables rate limiting
  requests_per_second: 20
  burst: 5
  # Parallel module fetches per route
  asset_concurrency: 4
  user_agent: prewarm/1.0

storage:
  # Defaults live under $XDG_DATA_HOME/prewarm
  session_dir: ""
  local_db: ""

server:
  host: 127.0.0.1
  port: 7411
  # debug, release or test
  mode: release

logging:
  enabled: true
  # debug, info, warn or error
  level: info
  max_size_mb: 10
  max_backups: 3

manifest:
  # Route manifest YAML; empty uses the built-in manifest
  path: ""
  # Reload the manifest on change (serve only)
  watch: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigFile), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := newPrinter(cmd.OutOrStdout())
	out.line(out.render(successStyle, "Created config file at "+configFile))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := newPrinter(cmd.OutOrStdout())

	if viper.ConfigFileUsed() != "" {
		out.field("Active config", viper.ConfigFileUsed())
	} else {
		out.field("Default path", config.ConfigFile()+" (not created)")
	}

	out.line("")
	out.line("Search paths:")
	out.line("  1. " + config.ConfigFile())
	out.line("  2. " + filepath.Join(".", "prewarm.yaml") + " (current directory)")
	out.line("")
	out.line("Environment variables: PREWARM_* (e.g., PREWARM_HTTP_BASE_URL)")
	return nil
}
