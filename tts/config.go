package tts

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
)

// Backend names accepted in configuration.
const (
	BackendOpenAI = "openai"
	BackendLocal  = "local"
	BackendMock   = "mock"
	BackendNone   = "none"
)

// Config contains all narration configuration options.
type Config struct {
	// Backend selection
	Backend  string `yaml:"backend" env:"NARRATOR_BACKEND" envDefault:"openai"`
	Fallback string `yaml:"fallback" env:"NARRATOR_FALLBACK" envDefault:"local"`

	// Playback settings
	MaxChunkLength int           `yaml:"max_chunk_length" env:"NARRATOR_MAX_CHUNK_LENGTH" envDefault:"4000"`
	ChunkPause     time.Duration `yaml:"chunk_pause" env:"NARRATOR_CHUNK_PAUSE" envDefault:"500ms"`
	Volume         float64       `yaml:"volume" env:"NARRATOR_VOLUME" envDefault:"0.8"`
	Speed          float64       `yaml:"speed" env:"NARRATOR_SPEED" envDefault:"1.0"`

	// Backend-specific configurations
	OpenAI OpenAIConfig `yaml:"openai"`
	Local  LocalConfig  `yaml:"local"`
	Cache  CacheConfig  `yaml:"cache"`
	ASR    ASRConfig    `yaml:"asr"`
}

// OpenAIConfig contains cloud speech settings.
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL            string        `yaml:"base_url" env:"NARRATOR_OPENAI_BASE_URL"`
	Model              string        `yaml:"model" env:"NARRATOR_OPENAI_MODEL" envDefault:"tts-1-hd"`
	Voice              string        `yaml:"voice" env:"NARRATOR_OPENAI_VOICE" envDefault:"nova"`
	Speed              float64       `yaml:"speed" env:"NARRATOR_OPENAI_SPEED" envDefault:"1.1"`
	RequestsPerMinute  int           `yaml:"requests_per_minute" env:"NARRATOR_OPENAI_RPM" envDefault:"50"`
	Timeout            time.Duration `yaml:"timeout" env:"NARRATOR_OPENAI_TIMEOUT" envDefault:"30s"`
	TranscriptionModel string        `yaml:"transcription_model" env:"NARRATOR_OPENAI_TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
}

// LocalConfig contains on-device speech settings.
type LocalConfig struct {
	// Command overrides engine detection. It is split like a shell command
	// line and receives the text on stdin.
	Command string  `yaml:"command" env:"NARRATOR_LOCAL_COMMAND"`
	Voice   string  `yaml:"voice" env:"NARRATOR_LOCAL_VOICE"`
	Rate    float64 `yaml:"rate" env:"NARRATOR_LOCAL_RATE" envDefault:"1.1"`
	Pitch   float64 `yaml:"pitch" env:"NARRATOR_LOCAL_PITCH" envDefault:"1.1"`
	Volume  float64 `yaml:"volume" env:"NARRATOR_LOCAL_VOLUME" envDefault:"0.8"`
}

// CacheConfig contains synthesized audio cache settings.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" env:"NARRATOR_CACHE_ENABLED" envDefault:"true"`
	Dir              string        `yaml:"dir" env:"NARRATOR_CACHE_DIR"`
	MaxMemoryMB      int           `yaml:"max_memory_mb" env:"NARRATOR_CACHE_MAX_MEMORY_MB" envDefault:"32"`
	MaxDiskMB        int           `yaml:"max_disk_mb" env:"NARRATOR_CACHE_MAX_DISK_MB" envDefault:"256"`
	CompressionLevel int           `yaml:"compression_level" env:"NARRATOR_CACHE_COMPRESSION_LEVEL" envDefault:"3"`
	TTL              time.Duration `yaml:"ttl" env:"NARRATOR_CACHE_TTL" envDefault:"168h"`
}

// ASRConfig contains voice input settings.
type ASRConfig struct {
	// RecordCommand overrides recorder detection. It must write audio to
	// stdout until interrupted.
	RecordCommand string        `yaml:"record_command" env:"NARRATOR_ASR_RECORD_COMMAND"`
	Language      string        `yaml:"language" env:"NARRATOR_ASR_LANGUAGE" envDefault:"en"`
	MaxDuration   time.Duration `yaml:"max_duration" env:"NARRATOR_ASR_MAX_DURATION" envDefault:"60s"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendOpenAI,
		Fallback:       BackendLocal,
		MaxChunkLength: 4000,
		ChunkPause:     500 * time.Millisecond,
		Volume:         0.8,
		Speed:          1.0,

		OpenAI: DefaultOpenAIConfig(),
		Local:  DefaultLocalConfig(),
		Cache:  DefaultCacheConfig(),
		ASR:    DefaultASRConfig(),
	}
}

// DefaultOpenAIConfig returns default cloud speech configuration.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:              "tts-1-hd",
		Voice:              "nova",
		Speed:              1.1,
		RequestsPerMinute:  50,
		Timeout:            30 * time.Second,
		TranscriptionModel: "whisper-1",
	}
}

// DefaultLocalConfig returns default local speech configuration.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Rate:   1.1,
		Pitch:  1.1,
		Volume: 0.8,
	}
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:          true,
		MaxMemoryMB:      32,
		MaxDiskMB:        256,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
	}
}

// DefaultASRConfig returns default voice input configuration.
func DefaultASRConfig() ASRConfig {
	return ASRConfig{
		Language:    "en",
		MaxDuration: time.Minute,
	}
}

// ApplyEnv overrides cfg with the NARRATOR_ environment variables that are
// actually set. Defaults from struct tags are not applied.
func ApplyEnv(cfg *Config) error {
	// No field carries a "-" tag, so envDefault values are skipped.
	if err := env.ParseWithOptions(cfg, env.Options{DefaultValueTagName: "-"}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(c.Backend)
	c.Fallback = strings.ToLower(c.Fallback)

	if !oneOf(c.Backend, BackendOpenAI, BackendLocal, BackendMock) {
		return fmt.Errorf("%w: backend %q must be one of openai, local, mock", ErrInvalidConfig, c.Backend)
	}
	if c.Fallback == "" {
		c.Fallback = BackendNone
	}
	if !oneOf(c.Fallback, BackendLocal, BackendMock, BackendNone) {
		return fmt.Errorf("%w: fallback %q must be one of local, mock, none", ErrInvalidConfig, c.Fallback)
	}
	if c.Fallback == c.Backend {
		c.Fallback = BackendNone
	}

	if c.MaxChunkLength < 100 {
		return fmt.Errorf("%w: max_chunk_length must be at least 100, got %d", ErrInvalidConfig, c.MaxChunkLength)
	}
	if c.ChunkPause < 0 || c.ChunkPause > 10*time.Second {
		return fmt.Errorf("%w: chunk_pause must be between 0 and 10s, got %v", ErrInvalidConfig, c.ChunkPause)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("%w: volume must be between 0.0 and 1.0, got %.2f", ErrInvalidConfig, c.Volume)
	}
	if c.Speed < MinSpeed || c.Speed > MaxSpeed {
		return fmt.Errorf("%w: speed must be between %.1f and %.1f, got %.2f", ErrInvalidConfig, MinSpeed, MaxSpeed, c.Speed)
	}

	if err := c.OpenAI.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}
	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("local config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if c.ASR.MaxDuration < time.Second {
		return fmt.Errorf("%w: asr max_duration must be at least 1s, got %v", ErrInvalidConfig, c.ASR.MaxDuration)
	}
	return nil
}

// Validate checks if the cloud speech configuration is valid.
func (c *OpenAIConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrInvalidConfig)
	}
	if c.Voice == "" {
		return fmt.Errorf("%w: voice cannot be empty", ErrInvalidConfig)
	}
	if c.Speed < 0.25 || c.Speed > 4.0 {
		return fmt.Errorf("%w: speed must be between 0.25 and 4.0, got %.2f", ErrInvalidConfig, c.Speed)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: requests_per_minute must be positive, got %d", ErrInvalidConfig, c.RequestsPerMinute)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("%w: timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// Validate checks if the local speech configuration is valid.
func (c *LocalConfig) Validate() error {
	if c.Rate < 0.1 || c.Rate > 10 {
		return fmt.Errorf("%w: rate must be between 0.1 and 10, got %.2f", ErrInvalidConfig, c.Rate)
	}
	if c.Pitch < 0 || c.Pitch > 2 {
		return fmt.Errorf("%w: pitch must be between 0 and 2, got %.2f", ErrInvalidConfig, c.Pitch)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("%w: volume must be between 0 and 1, got %.2f", ErrInvalidConfig, c.Volume)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxMemoryMB < 1 || c.MaxDiskMB < 1 {
		return fmt.Errorf("%w: cache sizes must be positive", ErrInvalidConfig)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("%w: compression_level must be between 1 and 22, got %d", ErrInvalidConfig, c.CompressionLevel)
	}
	if c.Dir != "" {
		dir, err := homedir.Expand(c.Dir)
		if err != nil {
			return fmt.Errorf("%w: cache dir: %w", ErrInvalidConfig, err)
		}
		c.Dir = dir
	}
	return nil
}

// SpeechOptions converts the configuration to session speech options.
func (c *Config) SpeechOptions() SpeechOptions {
	return SpeechOptions{
		Speed:    c.Speed,
		Pitch:    1.0,
		Volume:   Level(c.Volume),
		Language: c.ASR.Language,
	}
}

// ToControllerConfig converts the configuration to controller settings.
func (c *Config) ToControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxChunkLength: c.MaxChunkLength,
		ChunkPause:     c.ChunkPause,
	}
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
