// Package cmd provides the htmlstream command-line interface.
//
// Configuration System:
//
//	Values are resolved with the following precedence:
//	1. Command-line flags (--port, --charset, etc.) - highest priority
//	2. Individual environment variables (HTMLSTREAM_UPSTREAM_API_KEY, etc.)
//	3. Configuration file: --config, then HTMLSTREAM_CONFIG_FILE, then
//	   .htmlstream.yml in the working directory
//	4. Built-in defaults - lowest priority
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SawyerHood/openai-html-stream/internal/config"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
)

const envPrefix = "HTMLSTREAM"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "htmlstream",
	Short: "Turn streamed model output into a well-formed HTML document",
	Long: `htmlstream rewrites a stream of text deltas, typically a language model
writing an HTML page, into a well-formed document while it is still arriving.

Anything before the first <head> or <body> tag is dropped, the document is
prefixed with <!DOCTYPE html><html>, optional markup is injected into the head,
and output stops at the first </html>. If the input never closes the document,
a closing tag is added.

Quick Start:
  htmlstream stream page.txt            Rewrite a saved transcript
  htmlstream generate "a cat gallery"   Generate a page with the configured model
  htmlstream serve                      Serve generated pages over HTTP and websockets
  htmlstream check page.txt             Verify output is identical at any chunk size`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .htmlstream.yml, can also use HTMLSTREAM_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires the config file and HTMLSTREAM_ environment variables
// into the global viper instance.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".htmlstream")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration, attaching fix-it suggestions on failure.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		path := viper.ConfigFileUsed()
		return nil, errors.NewEnhancedError("Failed to load configuration", err,
			errors.ConfigurationError(err, path))
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg, writing to the command's
// stderr so documents on stdout stay clean.
func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		Component: "cli",
	})
}

// signalContext returns the command's context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
