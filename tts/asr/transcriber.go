// Package asr turns recorded speech into text for voice input.
package asr

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dgnsrekt/narrator/internal/observe"
	"github.com/dgnsrekt/narrator/tts"
)

// Defaults used when no option overrides them.
const (
	DefaultModel    = oai.AudioModelWhisper1
	DefaultLanguage = "en"
)

// Transcriber converts audio to text with the OpenAI transcription endpoint.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
	metrics  *observe.Metrics
}

type config struct {
	baseURL    string
	model      string
	language   string
	timeout    time.Duration
	maxRetries int
	metrics    *observe.Metrics
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the expected spoken language.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the client retries failed requests.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithMetrics records transcription latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// New constructs a Transcriber.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, tts.NewError(errors.New("apiKey must not be empty"), "asr", "configure")
	}

	cfg := &config{
		model:      DefaultModel,
		language:   DefaultLanguage,
		maxRetries: 2,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
		metrics:  cfg.metrics,
	}, nil
}

// NewFromConfig constructs a Transcriber sharing the cloud credentials.
func NewFromConfig(cloud tts.OpenAIConfig, cfg tts.ASRConfig, metrics *observe.Metrics) (*Transcriber, error) {
	opts := []Option{
		WithModel(cloud.TranscriptionModel),
		WithLanguage(cfg.Language),
		WithTimeout(cloud.Timeout),
		WithMetrics(metrics),
	}
	if cloud.BaseURL != "" {
		opts = append(opts, WithBaseURL(cloud.BaseURL))
	}
	return New(cloud.APIKey, opts...)
}

// Transcribe returns the text spoken in audio. filename names the
// container, e.g. "speech.wav". Failures and empty results are reported
// as *tts.TranscriptionError.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", &tts.TranscriptionError{Empty: true}
	}

	start := time.Now()
	resp, err := t.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:     oai.File(bytes.NewReader(audio), filename, contentType(filename)),
		Model:    t.model,
		Language: oai.String(t.language),
	})
	if err != nil {
		if ctx.Err() != nil {
			t.metrics.RecordTranscription(ctx, time.Since(start), "canceled")
			return "", ctx.Err()
		}
		t.metrics.RecordTranscription(ctx, time.Since(start), "error")
		log.Warn("transcription failed", "model", t.model, "error", err)
		return "", &tts.TranscriptionError{Err: err}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		t.metrics.RecordTranscription(ctx, time.Since(start), "empty")
		return "", &tts.TranscriptionError{Empty: true}
	}
	t.metrics.RecordTranscription(ctx, time.Since(start), "ok")
	log.Debug("transcribed audio", "model", t.model, "bytes", len(audio), "chars", len(text))
	return text, nil
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
