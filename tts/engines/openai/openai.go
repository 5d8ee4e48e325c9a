// Package openai synthesizes speech with the OpenAI audio API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/narrator/tts"
)

// Speech output format requested from the API: raw 16-bit little endian
// mono PCM at 24kHz.
const (
	SampleRate = 24000
	Channels   = 1
)

// Defaults used when no option overrides them.
const (
	DefaultModel = oai.SpeechModelTTS1HD
	DefaultVoice = "nova"
	DefaultSpeed = 1.1
)

// Ensure Synthesizer implements the tts.Synthesizer interface.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements tts.Synthesizer using the OpenAI speech endpoint.
type Synthesizer struct {
	client  oai.Client
	model   string
	voice   string
	speed   float64
	limiter *rate.Limiter
}

type config struct {
	baseURL    string
	model      string
	voice      string
	speed      float64
	timeout    time.Duration
	rpm        int
	maxRetries int
	httpClient *http.Client
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the default voice.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithSpeed sets the base speaking rate that session speed multiplies.
func WithSpeed(speed float64) Option {
	return func(c *config) { c.speed = speed }
}

// WithTimeout sets a per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithRequestsPerMinute paces requests client side.
func WithRequestsPerMinute(rpm int) Option {
	return func(c *config) { c.rpm = rpm }
}

// WithMaxRetries sets how often the client retries failed requests.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// New constructs a Synthesizer.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai speech: apiKey must not be empty")
	}

	cfg := &config{
		model:      DefaultModel,
		voice:      DefaultVoice,
		speed:      DefaultSpeed,
		rpm:        50,
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
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}

	var limiter *rate.Limiter
	if cfg.rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.rpm)), 1)
	}

	return &Synthesizer{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.model,
		voice:   cfg.voice,
		speed:   cfg.speed,
		limiter: limiter,
	}, nil
}

// NewFromConfig constructs a Synthesizer from narration configuration.
func NewFromConfig(cfg tts.OpenAIConfig) (*Synthesizer, error) {
	opts := []Option{
		WithModel(cfg.Model),
		WithVoice(cfg.Voice),
		WithSpeed(cfg.Speed),
		WithTimeout(cfg.Timeout),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.APIKey, opts...)
}

// Name implements tts.Synthesizer. It includes the model so cached audio is
// never shared between models.
func (s *Synthesizer) Name() string {
	return "openai/" + s.model
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SpeechOptions) (*tts.Audio, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("openai speech: rate limit: %w", err)
		}
	}

	voice := s.voice
	if opts.Voice != "" {
		voice = opts.Voice
	}
	speed := s.speed
	if opts.Speed > 0 {
		speed *= opts.Speed
	}

	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		Speed:          oai.Float(clampSpeed(speed)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai speech: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai speech: empty audio")
	}
	// Drop a trailing odd byte so every sample is whole.
	data = data[:len(data)&^1]

	log.Debug("synthesized chunk", "model", s.model, "voice", voice, "chars", len(text), "bytes", len(data))
	return &tts.Audio{
		Data:       data,
		Format:     tts.FormatPCM16,
		SampleRate: SampleRate,
		Channels:   Channels,
		Duration:   tts.PCMDuration(len(data), SampleRate, Channels),
	}, nil
}

// clampSpeed keeps speed inside the range the API accepts.
func clampSpeed(speed float64) float64 {
	return min(max(speed, 0.25), 4.0)
}

// voices offered by the speech endpoint.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Voices lists the voices of the speech endpoint.
func Voices() []tts.Voice {
	out := make([]tts.Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.Voice{ID: v, Name: v, Language: "en"})
	}
	return out
}
