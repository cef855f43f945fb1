// Package cmd provides the command-line interface for payload with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. PAYLOAD_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (PAYLOAD_DRIVER_TIMEOUT, etc.)
//	4. Configuration files (.payload.yml) - lowest priority
//
//	A .env file in the working directory is loaded into the environment
//	first, so it can carry any of the PAYLOAD_ variables.
//
// Environment Variables:
//
//	PAYLOAD_CONFIG_FILE: Path to custom configuration file
//	PAYLOAD_DRIVER_ACCESS_TOKEN: Token sent as the Authorization header
//	PAYLOAD_TRANSPORT_BASE_URL: Base URL relative request URLs resolve against
//	PAYLOAD_STORAGE_BACKEND: memory, file or redis
//	And every other key following the PAYLOAD_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/payload/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "payload",
	Short: "Drive declarative request/render markup from the command line",
	Long: `Payload binds HTML elements that declare a request (data-url, data-selector,
data-template, ...) to network calls, renders the responses into target regions
and caches both the responses and the rendered views.

Key Features:
  - Auto-load cascades and click delegation over a parsed page
  - pongo2 templates and partials with hot reload
  - Response and view caches with explicit invalidation
  - App data persisted to memory, a msgpack file or redis
  - Live inspector with a websocket lifecycle stream

Quick Start:
  payload render page.html              Render a page after auto-load
  payload render page.html --click '#items'
  payload inspect page.html -o yaml     Show every bound element
  payload serve page.html               Start the inspector`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .payload.yml, can also use PAYLOAD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error, off)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	AddFlagValidation(rootCmd.PersistentFlags(), "log-level", func(level string) error {
		return ValidateFormatWithSuggestion(level, []string{"debug", "info", "warn", "error", "off"})
	})
}

// initConfig initializes the configuration system.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. PAYLOAD_CONFIG_FILE environment variable
//  3. .payload.yml in the current directory
func initConfig() {
	if err := config.LoadEnvFile(config.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PAYLOAD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".payload")
	}

	if err := config.BindEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	// A missing or malformed file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
