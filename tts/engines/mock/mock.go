// Package mock provides a speech backend that emits no audio, for tests and
// dry runs.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/narrator/tts"
)

// Event kinds recorded by a Backend.
const (
	EventStart = "start"
	EventStop  = "stop"
	EventEnd   = "end"
)

// errStopped is returned by Wait when an utterance was stopped early.
var errStopped = errors.New("mock utterance stopped")

// Event records one audio transition.
type Event struct {
	Backend string
	Kind    string
	Text    string
	Options tts.SpeechOptions
}

// Recorder collects events from one or more backends in the order they
// happened.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of the given kind were recorded.
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// WaitFor blocks until cond holds for the recorded events or ctx is done.
func (r *Recorder) WaitFor(ctx context.Context, cond func([]Event) bool) error {
	for {
		if cond(r.Events()) {
			return nil
		}
		select {
		case <-r.notify:
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Backend implements tts.Backend without touching any audio device.
type Backend struct {
	name     string
	recorder *Recorder

	mu           sync.Mutex
	delay        time.Duration // Simulated synthesis latency
	duration     time.Duration // Length of every utterance
	hold         bool          // Utterances play until stopped
	failAfter    int           // Prepare calls allowed before failing, -1 for never
	failureError error
	startError   error
	calls        int
	active       map[*utterance]struct{}
}

// New creates a mock backend whose utterances last 10ms.
func New(name string) *Backend {
	return &Backend{
		name:      name,
		recorder:  NewRecorder(),
		duration:  10 * time.Millisecond,
		failAfter: -1,
		active:    make(map[*utterance]struct{}),
	}
}

// Name implements tts.Backend.
func (b *Backend) Name() string {
	return b.name
}

// Prepare implements tts.Backend.
func (b *Backend) Prepare(ctx context.Context, text string, opts tts.SpeechOptions) (tts.Utterance, error) {
	b.mu.Lock()
	b.calls++
	fail := b.failAfter >= 0 && b.calls > b.failAfter
	failure, delay := b.failureError, b.delay
	duration, hold := b.duration, b.hold
	b.mu.Unlock()

	if fail {
		return nil, failure
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &utterance{
		backend:  b,
		text:     text,
		opts:     opts,
		duration: duration,
		hold:     hold,
		done:     make(chan struct{}),
	}, nil
}

// CancelAll implements tts.Backend.
func (b *Backend) CancelAll() {
	b.mu.Lock()
	active := make([]*utterance, 0, len(b.active))
	for u := range b.active {
		active = append(active, u)
	}
	b.mu.Unlock()

	for _, u := range active {
		_ = u.Stop()
	}
}

// Voices returns the voices the mock pretends to offer.
func (b *Backend) Voices() []tts.Voice {
	return []tts.Voice{
		{ID: "mock-1", Name: "Mock Jenny", Language: "en-US", Gender: "female"},
		{ID: "mock-2", Name: "Mock David", Language: "en-US", Gender: "male"},
		{ID: "mock-3", Name: "Mock Amelie", Language: "fr-FR", Gender: "female"},
	}
}

// Test control methods

// Recorder returns the recorder receiving this backend's events.
func (b *Backend) Recorder() *Recorder {
	return b.recorder
}

// SetRecorder shares a recorder between backends.
func (b *Backend) SetRecorder(r *Recorder) {
	b.recorder = r
}

// SetDelay sets the simulated synthesis latency.
func (b *Backend) SetDelay(delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = delay
}

// SetDuration sets how long each utterance plays.
func (b *Backend) SetDuration(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duration = d
}

// SetHold makes utterances play until they are stopped.
func (b *Backend) SetHold(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = hold
}

// SetFailure makes every Prepare call fail with err.
func (b *Backend) SetFailure(err error) {
	b.FailAfter(0, err)
}

// FailAfter lets n Prepare calls succeed and fails the rest with err.
func (b *Backend) FailAfter(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter = b.calls + n
	b.failureError = err
}

// SetStartError makes Start fail with err.
func (b *Backend) SetStartError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startError = err
}

// ClearFailure resets the backend to normal operation.
func (b *Backend) ClearFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter = -1
	b.failureError = nil
	b.startError = nil
}

// CallCount returns the number of Prepare calls.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Active returns the number of utterances currently emitting.
func (b *Backend) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

type utterance struct {
	backend  *Backend
	text     string
	opts     tts.SpeechOptions
	duration time.Duration
	hold     bool

	once    sync.Once
	done    chan struct{}
	timer   *time.Timer
	stopped bool
}

func (u *utterance) event(kind string) Event {
	return Event{Backend: u.backend.name, Kind: kind, Text: u.text, Options: u.opts}
}

// Start implements tts.Utterance.
func (u *utterance) Start() error {
	b := u.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.startError; err != nil {
		return err
	}
	select {
	case <-u.done:
		return errStopped
	default:
	}

	b.active[u] = struct{}{}
	b.recorder.add(u.event(EventStart))
	if !u.hold {
		u.timer = time.AfterFunc(u.duration, func() { u.finish(false) })
	}
	return nil
}

// Wait implements tts.Utterance.
func (u *utterance) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		if u.wasStopped() {
			return errStopped
		}
		return nil
	case <-ctx.Done():
		_ = u.Stop()
		return ctx.Err()
	}
}

// Stop implements tts.Utterance.
func (u *utterance) Stop() error {
	u.finish(true)
	return nil
}

func (u *utterance) wasStopped() bool {
	u.backend.mu.Lock()
	defer u.backend.mu.Unlock()
	return u.stopped
}

func (u *utterance) finish(stopped bool) {
	u.once.Do(func() {
		b := u.backend
		b.mu.Lock()
		_, started := b.active[u]
		delete(b.active, u)
		u.stopped = stopped
		if u.timer != nil {
			u.timer.Stop()
		}
		if started {
			kind := EventEnd
			if stopped {
				kind = EventStop
			}
			b.recorder.add(u.event(kind))
		}
		b.mu.Unlock()
		close(u.done)
	})
}
