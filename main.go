// Package main provides the entry point for the narrator CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/narrator/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	debug             bool
	backend           string
	fallback          string

	rootCmd = &cobra.Command{
		Use:   "narrator",
		Short: "Read scripts aloud from the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead scripts %s, with a cloud voice and a local fallback.", keyword("aloud")),
		),
		SilenceErrors:    true,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// validateOptions loads an explicit config file and applies global flags.
func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	if debug || viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// loadConfig returns the effective narration configuration.
func loadConfig() (tts.Config, error) {
	if backend != "" {
		viper.Set("narrator.backend", backend)
	}
	if fallback != "" {
		viper.Set("narrator.fallback", fallback)
	}
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		dir, err := gap.NewScope(gap.User, "narrator").CacheDir()
		if err == nil {
			cfg.Cache.Dir = filepath.Join(dir, "audio")
		}
	}
	return cfg, nil
}

// errorMessage returns what the user sees for err.
func errorMessage(err error) string {
	var (
		perr *tts.PlaybackError
		terr *tts.TranscriptionError
	)
	switch {
	case errors.As(err, &perr), errors.As(err, &terr),
		errors.Is(err, tts.ErrMicrophoneDenied), errors.Is(err, tts.ErrEmptyInput):
		return tts.UserMessage(err)
	}
	return err.Error()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Error("Command failed", "error", err)
		fmt.Fprintln(os.Stderr, errorStyle(errorMessage(err)))
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "speech backend (openai, local, mock)")
	rootCmd.PersistentFlags().StringVar(&fallback, "fallback", "", "backend used after the primary fails (local, mock, none)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	tts.SetDefaults()

	rootCmd.AddCommand(playCmd, segmentsCmd, voicesCmd, transcribeCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "narrator")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "narrator")}, dirs...)
	}

	if c := os.Getenv("NARRATOR_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("narrator")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	defaultConfigFile = filepath.Join(dirs[0], "narrator.yml")
	if err := ensureConfigFile(defaultConfigFile); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
