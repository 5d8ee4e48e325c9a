package tts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/narrator/tts/segment"
)

// Common errors for the narration system.
var (
	// Input errors
	ErrEmptyInput = segment.ErrEmptyInput

	// Controller errors
	ErrAlreadyPlaying = errors.New("narration is already playing")
	ErrAborted        = errors.New("narration aborted")
	ErrStopped        = fmt.Errorf("%w: stopped", ErrAborted)
	ErrSuperseded     = fmt.Errorf("%w: superseded by another narration", ErrAborted)
	ErrNoBackend      = errors.New("no speech backend configured")
	ErrNotPlaying     = errors.New("no narration in progress")

	// Backend errors
	ErrPlayback           = errors.New("failed to play narration")
	ErrBackendUnavailable = errors.New("speech backend is not available")
	ErrVoiceNotFound      = errors.New("requested voice not found")
	ErrInvalidAudioFormat = errors.New("invalid audio format")

	// Voice input errors
	ErrTranscription    = errors.New("failed to transcribe audio")
	ErrMicrophoneDenied = errors.New("microphone access denied")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsAborted reports whether err is the expected result of a stop or a
// supersession rather than a failure.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsUserVisible reports whether err should be shown to the user.
func IsUserVisible(err error) bool {
	return err != nil && !IsAborted(err)
}

// UserMessage returns the dismissible notification text for err, or an
// empty string when err must stay silent.
func UserMessage(err error) string {
	switch {
	case err == nil, IsAborted(err):
		return ""
	case errors.Is(err, ErrMicrophoneDenied):
		return "Microphone access denied."
	case errors.Is(err, ErrTranscription):
		return "Failed to transcribe audio, please type instead."
	case errors.Is(err, ErrEmptyInput):
		return "There is nothing to narrate."
	default:
		return "Failed to play narration."
	}
}

// Error provides detailed error information about a failing component.
type Error struct {
	Err       error          // The underlying error
	Component string         // Component that generated the error
	Action    string         // Action being performed when error occurred
	Context   map[string]any // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Component, e.Action)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new component error.
func NewError(err error, component, action string) *Error {
	return &Error{
		Err:       err,
		Component: component,
		Action:    action,
	}
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// PlaybackError is returned when every speech backend failed on a chunk.
type PlaybackError struct {
	Chunk    int      // Chunk that could not be narrated
	Backends []string // Backends that were tried, in order
	Err      error    // Errors from those backends
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	return fmt.Sprintf("failed to play narration at chunk %d (tried %s): %v",
		e.Chunk, strings.Join(e.Backends, ", "), e.Err)
}

// Unwrap exposes both ErrPlayback and the backend errors.
func (e *PlaybackError) Unwrap() []error {
	return []error{ErrPlayback, e.Err}
}

// TranscriptionError is returned when speech recognition fails or yields no
// text. Callers fall back to manual text entry.
type TranscriptionError struct {
	Empty bool  // The backend answered with no text
	Err   error // Underlying backend error, if any
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	switch {
	case e.Empty:
		return "failed to transcribe audio: empty transcription"
	case e.Err != nil:
		return fmt.Sprintf("failed to transcribe audio: %v", e.Err)
	default:
		return "failed to transcribe audio"
	}
}

// Unwrap exposes both ErrTranscription and the backend error.
func (e *TranscriptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTranscription}
	}
	return []error{ErrTranscription, e.Err}
}
