package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/portalcast/internal/config"
	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is reported by the status API.
var Version = "0.1.0"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "portalcast",
		Short: "portalcast - ScreenCast backend for xdg-desktop-portal",
		Long: `portalcast implements org.freedesktop.impl.portal.ScreenCast for X11
desktops. Applications asking the portal to share a screen get a PipeWire
stream of the monitor the user picks.

Features:
  • Monitor capture through GStreamer into PipeWire
  • Interactive output picking with slurp or slop
  • Hidden or embedded cursor
  • Local status API with a live event stream`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/portalcast/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("api-listen", "", "status API address; enables the API (loopback only)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("api.listen", rootCmd.PersistentFlags().Lookup("api-listen"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if level := viper.GetString("log_level"); level != "" {
		logger.SetLevel(level)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config and applies flag overrides without saving them.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()
	applyOverrides(cfg)
	return configMgr, cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if listen := viper.GetString("api.listen"); listen != "" {
		cfg.API.Enabled = true
		cfg.API.Listen = listen
	}
}
