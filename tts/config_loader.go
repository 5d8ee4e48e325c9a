package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads narration configuration from Viper, then applies
// environment overrides.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("narrator.backend") {
		cfg.Backend = viper.GetString("narrator.backend")
	}
	if viper.IsSet("narrator.fallback") {
		cfg.Fallback = viper.GetString("narrator.fallback")
	}

	// Playback settings
	if viper.IsSet("narrator.max_chunk_length") {
		cfg.MaxChunkLength = viper.GetInt("narrator.max_chunk_length")
	}
	if d, ok := durationKey("narrator.chunk_pause"); ok {
		cfg.ChunkPause = d
	}
	if viper.IsSet("narrator.volume") {
		cfg.Volume = viper.GetFloat64("narrator.volume")
	}
	if viper.IsSet("narrator.speed") {
		cfg.Speed = viper.GetFloat64("narrator.speed")
	}

	cfg.OpenAI = loadOpenAIConfig()
	cfg.Local = loadLocalConfig()
	cfg.Cache = loadCacheConfig()
	cfg.ASR = loadASRConfig()

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid narration configuration: %w", err)
	}

	return cfg, nil
}

func loadOpenAIConfig() OpenAIConfig {
	cfg := DefaultOpenAIConfig()

	if viper.IsSet("narrator.openai.api_key") {
		cfg.APIKey = viper.GetString("narrator.openai.api_key")
	}
	if viper.IsSet("narrator.openai.base_url") {
		cfg.BaseURL = viper.GetString("narrator.openai.base_url")
	}
	if viper.IsSet("narrator.openai.model") {
		cfg.Model = viper.GetString("narrator.openai.model")
	}
	if viper.IsSet("narrator.openai.voice") {
		cfg.Voice = viper.GetString("narrator.openai.voice")
	}
	if viper.IsSet("narrator.openai.speed") {
		cfg.Speed = viper.GetFloat64("narrator.openai.speed")
	}
	if viper.IsSet("narrator.openai.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("narrator.openai.requests_per_minute")
	}
	if d, ok := durationKey("narrator.openai.timeout"); ok {
		cfg.Timeout = d
	}
	if viper.IsSet("narrator.openai.transcription_model") {
		cfg.TranscriptionModel = viper.GetString("narrator.openai.transcription_model")
	}

	return cfg
}

func loadLocalConfig() LocalConfig {
	cfg := DefaultLocalConfig()

	if viper.IsSet("narrator.local.command") {
		cfg.Command = viper.GetString("narrator.local.command")
	}
	if viper.IsSet("narrator.local.voice") {
		cfg.Voice = viper.GetString("narrator.local.voice")
	}
	if viper.IsSet("narrator.local.rate") {
		cfg.Rate = viper.GetFloat64("narrator.local.rate")
	}
	if viper.IsSet("narrator.local.pitch") {
		cfg.Pitch = viper.GetFloat64("narrator.local.pitch")
	}
	if viper.IsSet("narrator.local.volume") {
		cfg.Volume = viper.GetFloat64("narrator.local.volume")
	}

	return cfg
}

func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("narrator.cache.enabled") {
		cfg.Enabled = viper.GetBool("narrator.cache.enabled")
	}
	if viper.IsSet("narrator.cache.dir") {
		cfg.Dir = viper.GetString("narrator.cache.dir")
	}
	if viper.IsSet("narrator.cache.max_memory_mb") {
		cfg.MaxMemoryMB = viper.GetInt("narrator.cache.max_memory_mb")
	}
	if viper.IsSet("narrator.cache.max_disk_mb") {
		cfg.MaxDiskMB = viper.GetInt("narrator.cache.max_disk_mb")
	}
	if viper.IsSet("narrator.cache.compression_level") {
		cfg.CompressionLevel = viper.GetInt("narrator.cache.compression_level")
	}
	if d, ok := durationKey("narrator.cache.ttl"); ok {
		cfg.TTL = d
	}

	return cfg
}

func loadASRConfig() ASRConfig {
	cfg := DefaultASRConfig()

	if viper.IsSet("narrator.asr.record_command") {
		cfg.RecordCommand = viper.GetString("narrator.asr.record_command")
	}
	if viper.IsSet("narrator.asr.language") {
		cfg.Language = viper.GetString("narrator.asr.language")
	}
	if d, ok := durationKey("narrator.asr.max_duration"); ok {
		cfg.MaxDuration = d
	}

	return cfg
}

// durationKey reads a duration written either as "500ms" or as a number of
// nanoseconds.
func durationKey(key string) (time.Duration, bool) {
	if !viper.IsSet(key) {
		return 0, false
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		return d, true
	}
	return viper.GetDuration(key), true
}

// SetDefaults sets default values in Viper for narration configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("narrator.backend", defaults.Backend)
	viper.SetDefault("narrator.fallback", defaults.Fallback)
	viper.SetDefault("narrator.max_chunk_length", defaults.MaxChunkLength)
	viper.SetDefault("narrator.chunk_pause", defaults.ChunkPause.String())
	viper.SetDefault("narrator.volume", defaults.Volume)
	viper.SetDefault("narrator.speed", defaults.Speed)

	// OpenAI defaults
	viper.SetDefault("narrator.openai.model", defaults.OpenAI.Model)
	viper.SetDefault("narrator.openai.voice", defaults.OpenAI.Voice)
	viper.SetDefault("narrator.openai.speed", defaults.OpenAI.Speed)
	viper.SetDefault("narrator.openai.requests_per_minute", defaults.OpenAI.RequestsPerMinute)
	viper.SetDefault("narrator.openai.timeout", defaults.OpenAI.Timeout.String())
	viper.SetDefault("narrator.openai.transcription_model", defaults.OpenAI.TranscriptionModel)

	// Local defaults
	viper.SetDefault("narrator.local.rate", defaults.Local.Rate)
	viper.SetDefault("narrator.local.pitch", defaults.Local.Pitch)
	viper.SetDefault("narrator.local.volume", defaults.Local.Volume)

	// Cache defaults
	viper.SetDefault("narrator.cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("narrator.cache.max_memory_mb", defaults.Cache.MaxMemoryMB)
	viper.SetDefault("narrator.cache.max_disk_mb", defaults.Cache.MaxDiskMB)
	viper.SetDefault("narrator.cache.compression_level", defaults.Cache.CompressionLevel)
	viper.SetDefault("narrator.cache.ttl", defaults.Cache.TTL.String())

	// ASR defaults
	viper.SetDefault("narrator.asr.language", defaults.ASR.Language)
	viper.SetDefault("narrator.asr.max_duration", defaults.ASR.MaxDuration.String())
}
