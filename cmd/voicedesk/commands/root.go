// Package commands provides the CLI commands for voicedesk.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voicedesk-ai/voicedesk/internal/config"
	"github.com/voicedesk-ai/voicedesk/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	logPretty  bool
)

var rootCmd = &cobra.Command{
	Use:   "voicedesk",
	Short: "VoiceDesk - streaming RPC gateway for a voice-driven helpdesk agent",
	Long: `VoiceDesk is a session-managed streaming RPC gateway that lets a
voice-driven phone agent create and query support tickets, look up
companies and contacts, and check technician phone availability.

Run 'voicedesk serve' to start the gateway, 'voicedesk tenants' to
inspect the tenant configuration, or 'voicedesk agent-config' to
generate per-tenant agent platform configuration.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the JSONC config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human-readable console log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("voicedesk %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tenantsCmd)
	rootCmd.AddCommand(agentConfigCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads .env, the config file, and applies CLI flag overrides,
// then initializes the global logger.
func loadConfig() (*config.Config, error) {
	// A missing .env file is fine; explicit env vars still apply.
	godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logPretty {
		cfg.LogPretty = true
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.Pretty = cfg.LogPretty
	logging.Init(logCfg)

	return cfg, nil
}
