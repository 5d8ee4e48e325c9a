package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/narrator/tts"
)

const defaultConfig = `# Narration configuration
narrator:
  # Speech backend: openai, local, or mock
  backend: "openai"
  # Backend used for the rest of a session once the primary fails:
  # local, mock, or none
  fallback: "local"
  # Longest chunk sent to a backend in one request, in characters
  max_chunk_length: 4000
  # Silence between chunks
  chunk_pause: "500ms"
  # Output level (0.0 to 1.0)
  volume: 0.8
  # Speech rate multiplier (0.5 to 1.5)
  speed: 1.0

  # OpenAI speech
  openai:
    # api_key is read from OPENAI_API_KEY when unset
    # api_key: "sk-..."
    model: "tts-1-hd"
    voice: "nova"
    speed: 1.1
    requests_per_minute: 50
    timeout: "30s"
    transcription_model: "whisper-1"

  # Local speech (say, espeak-ng or espeak)
  local:
    # command: "piper --model en_US-lessac-medium.onnx --output-raw | aplay -r 22050 -f S16_LE"
    # voice: "Samantha"
    rate: 1.1
    pitch: 1.1
    volume: 0.8

  # Synthesized audio cache
  cache:
    enabled: true
    # dir: "~/.cache/narrator/audio"
    max_memory_mb: 32
    max_disk_mb: 256
    compression_level: 3
    ttl: "168h"

  # Voice input
  asr:
    # record_command: "arecord -q -f S16_LE -r 16000 -c 1 -t wav -"
    language: "en"
    max_duration: "60s"
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the narrator config file",
	Long:    paragraph(fmt.Sprintf("\n%s the narrator config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("narrator config\nnarrator config --print\nnarrator config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if printConfig {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return writeConfig(os.Stdout, cfg)
		}

		file := configPath()
		if err := ensureConfigFile(file); err != nil {
			return err
		}

		c, err := editor.Cmd("Narrator", file)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", file)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration instead of editing it")
}

// configPath returns the file the config command edits.
func configPath() string {
	switch {
	case configFile != "":
		return configFile
	case viper.ConfigFileUsed() != "":
		return viper.ConfigFileUsed()
	default:
		return defaultConfigFile
	}
}

// writeConfig prints cfg as YAML with the API key masked.
func writeConfig(w io.Writer, cfg tts.Config) error {
	if cfg.OpenAI.APIKey != "" {
		cfg.OpenAI.APIKey = maskSecret(cfg.OpenAI.APIKey)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]tts.Config{"narrator": cfg}); err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}
	return enc.Close()
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:3] + "…" + s[len(s)-4:]
}

func ensureConfigFile(file string) error {
	if file == "" {
		return errors.New("no configuration file location")
	}

	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
