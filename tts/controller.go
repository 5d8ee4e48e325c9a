package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/observe"
	"github.com/dgnsrekt/narrator/tts/segment"
)

// Speed and volume limits accepted by SetSpeed and SetVolume.
const (
	MinSpeed = 0.5
	MaxSpeed = 1.5
)

// ControllerConfig holds configuration for the narration controller.
type ControllerConfig struct {
	MaxChunkLength int           // Longest chunk handed to a backend, in runes
	ChunkPause     time.Duration // Silence between consecutive chunks
}

// DefaultControllerConfig returns a sensible default configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxChunkLength: segment.DefaultMaxChunkLength,
		ChunkPause:     500 * time.Millisecond,
	}
}

// Controller narrates one script at a time. Chunks go to the primary
// backend until it fails, after which the fallback narrates the rest of
// the session. The shared Arbiter keeps narrations from different
// controllers from overlapping.
type Controller struct {
	arbiter  *Arbiter
	primary  Backend
	fallback Backend
	config   ControllerConfig
	metrics  *observe.Metrics

	mu      sync.Mutex
	machine *StateMachine
	session *session
	script  segment.Script
	opts    SpeechOptions
	lastErr error

	onProgress      func(percent float64)
	onChunkStart    func(index, total int)
	onSegmentChange func(index int)
	onStateChange   func(state StateType)
}

// session is one run of Start. Fields are guarded by Controller.mu except
// where noted.
type session struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	token  *Token

	// Immutable after Start.
	chunks    []segment.Chunk
	segments  []segment.Segment
	estimated time.Duration

	index        int // chunk being narrated
	announced    int // last chunk reported through onChunkStart
	segment      int
	forceSegment int
	progress     float64
	opts         SpeechOptions
	fallback     bool
	backend      string

	paused      bool
	resume      chan struct{}
	chunkCancel context.CancelFunc
	utterance   Utterance
}

// NewController creates a controller. Either backend may be nil but not
// both. A nil arbiter gives the controller a private one.
func NewController(arbiter *Arbiter, primary, fallback Backend, config ControllerConfig) *Controller {
	if arbiter == nil {
		arbiter = NewArbiter()
	}
	if config.MaxChunkLength <= 0 {
		config.MaxChunkLength = segment.DefaultMaxChunkLength
	}
	if config.ChunkPause < 0 {
		config.ChunkPause = 0
	}
	return &Controller{
		arbiter:  arbiter,
		primary:  primary,
		fallback: fallback,
		config:   config,
		machine:  NewStateMachine(),
	}
}

// SetMetrics attaches metric instruments. Call it before Start; a nil value
// disables metrics.
func (c *Controller) SetMetrics(m *observe.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// OnProgress registers a callback receiving the percentage narrated.
func (c *Controller) OnProgress(fn func(percent float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

// OnChunkStart registers a callback fired as each chunk begins.
func (c *Controller) OnChunkStart(fn func(index, total int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChunkStart = fn
}

// OnSegmentChange registers a callback fired when narration moves to a new
// display segment.
func (c *Controller) OnSegmentChange(fn func(index int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSegmentChange = fn
}

// OnStateChange registers a callback for state transitions.
func (c *Controller) OnStateChange(fn func(state StateType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// Start narrates script and blocks until it completes, fails or is
// aborted. Aborted sessions return an error matching ErrAborted.
func (c *Controller) Start(ctx context.Context, script segment.Script, opts SpeechOptions) error {
	if ctx.Err() != nil {
		return abortCause(ctx)
	}
	if c.State().IsActive() {
		return ErrAlreadyPlaying
	}
	if c.primary == nil && c.fallback == nil {
		return ErrNoBackend
	}

	chunks, err := segment.ForSpeech(script.Text, c.config.MaxChunkLength)
	if err != nil {
		return err
	}
	segments, err := segment.ForDisplay(script)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithCancelCause(ctx)
	s := &session{
		ctx:          sctx,
		cancel:       cancel,
		chunks:       chunks,
		segments:     segments,
		estimated:    segment.TotalEstimate(segments),
		announced:    -1,
		segment:      -1,
		forceSegment: -1,
		opts:         opts.withDefaults(),
	}

	c.mu.Lock()
	if c.machine.Current().IsActive() {
		c.mu.Unlock()
		cancel(ErrAlreadyPlaying)
		return ErrAlreadyPlaying
	}
	c.machine.Transition(StateLoading)
	c.session = s
	c.script = script
	c.opts = s.opts
	c.lastErr = nil
	metrics := c.metrics
	c.mu.Unlock()

	// Acquire may abort a previous session of this controller, so it runs
	// without c.mu held.
	token := c.arbiter.Acquire(&sessionOwner{c: c, s: s})
	c.mu.Lock()
	s.token = token
	c.mu.Unlock()

	metrics.SessionStarted(ctx)
	log.Debug("Narration started", "title", script.Title, "chunks", len(chunks), "segments", len(segments))
	c.notifyState(StateLoading)

	err = c.run(s)
	return c.finish(s, err)
}

// run walks the chunks of s until the last one ends or the session is
// cancelled.
func (c *Controller) run(s *session) error {
	total := len(s.chunks)
	for {
		if err := c.waitWhilePaused(s); err != nil {
			return err
		}

		c.mu.Lock()
		idx := s.index
		if idx >= total {
			c.mu.Unlock()
			return nil
		}
		chunkCtx, chunkCancel := context.WithCancel(s.ctx)
		s.chunkCancel = chunkCancel
		opts := s.opts
		announce := s.announced != idx
		var (
			progress   float64
			seg        int
			segChanged bool
		)
		if announce {
			s.announced = idx
			s.progress = float64(idx) / float64(total) * 100
			progress = s.progress
			seg = s.forceSegment
			if seg < 0 {
				seg = segment.Locate(s.segments, segment.ChunkElapsed(idx, total, s.estimated))
			}
			s.forceSegment = -1
			segChanged = seg != s.segment
			s.segment = seg
		}
		c.mu.Unlock()

		if announce {
			log.Debug("Narrating chunk", "index", idx, "total", total)
			c.emitChunkStart(idx, total)
			c.emitProgress(progress)
			if segChanged {
				c.emitSegmentChange(seg)
			}
		}

		err := c.speak(chunkCtx, s, idx, opts)
		interrupted := chunkCtx.Err() != nil
		chunkCancel()

		if s.ctx.Err() != nil {
			return abortCause(s.ctx)
		}

		if interrupted {
			// Paused or moved to another segment; replay from s.index.
			continue
		}
		if err != nil {
			return err
		}

		c.mu.Lock()
		if s.announced == idx {
			// Not moved by JumpToSegment while the chunk ended.
			s.index++
		}
		next := s.index
		c.mu.Unlock()

		if next < total {
			if err := c.gap(s); err != nil {
				return err
			}
		}
	}
}

// speak narrates one chunk, switching the session to the fallback backend
// when the active one fails.
func (c *Controller) speak(ctx context.Context, s *session, idx int, opts SpeechOptions) error {
	var (
		tried []string
		errs  []error
	)
	for {
		backend, onFallback := c.backendFor(s)
		tried = append(tried, backend.Name())

		err := c.speakWith(ctx, s, backend, idx, opts)
		if err == nil {
			c.metrics.RecordChunk(ctx, backend.Name())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		errs = append(errs, err)
		if onFallback || c.fallback == nil {
			return &PlaybackError{Chunk: idx, Backends: tried, Err: errors.Join(errs...)}
		}

		log.Warn("Speech backend failed, switching to fallback",
			"backend", backend.Name(), "fallback", c.fallback.Name(), "chunk", idx, "error", err)
		c.metrics.RecordFallback(ctx, backend.Name(), c.fallback.Name())

		c.mu.Lock()
		s.fallback = true
		c.mu.Unlock()
	}
}

// backendFor returns the backend for the next chunk and whether it is the
// fallback.
func (c *Controller) backendFor(s *session) (Backend, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.fallback || c.primary == nil {
		return c.fallback, true
	}
	return c.primary, false
}

func (c *Controller) speakWith(ctx context.Context, s *session, b Backend, idx int, opts SpeechOptions) error {
	began := time.Now()
	u, err := b.Prepare(ctx, s.chunks[idx].Text, opts)
	if err != nil {
		if ctx.Err() == nil {
			c.metrics.RecordBackendError(ctx, b.Name(), "prepare")
		}
		return err
	}
	c.metrics.RecordSynthesis(ctx, b.Name(), time.Since(began))

	var playing bool
	err = c.arbiter.Emit(s.token, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.Start(); err != nil {
			return err
		}
		s.utterance = u
		s.backend = b.Name()
		if c.session == s && c.machine.Current() == StateLoading {
			playing = c.machine.Transition(StatePlaying)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			c.metrics.RecordBackendError(ctx, b.Name(), "start")
		}
		return err
	}
	if playing {
		c.notifyState(StatePlaying)
	}

	err = u.Wait(ctx)

	c.mu.Lock()
	if s.utterance == u {
		s.utterance = nil
	}
	c.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		c.metrics.RecordBackendError(ctx, b.Name(), "play")
	}
	return err
}

// waitWhilePaused blocks until the session is resumed or cancelled.
func (c *Controller) waitWhilePaused(s *session) error {
	for {
		c.mu.Lock()
		paused, resume := s.paused, s.resume
		c.mu.Unlock()

		if s.ctx.Err() != nil {
			return abortCause(s.ctx)
		}
		if !paused {
			return nil
		}
		select {
		case <-resume:
		case <-s.ctx.Done():
			return abortCause(s.ctx)
		}
	}
}

// gap holds the configured silence between chunks.
func (c *Controller) gap(s *session) error {
	if c.config.ChunkPause <= 0 {
		return nil
	}
	timer := time.NewTimer(c.config.ChunkPause)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.ctx.Done():
		return abortCause(s.ctx)
	}
}

// finish settles the final state of s and gives up the audio output.
func (c *Controller) finish(s *session, err error) error {
	c.mu.Lock()
	current := c.session == s
	var state StateType
	if current {
		switch {
		case err == nil:
			if c.machine.Transition(StateCompleted) {
				s.progress = 100
			} else {
				err = ErrStopped
			}
		case IsAborted(err):
			c.machine.Transition(StateStopped)
		default:
			c.machine.Transition(StateFailed)
			c.lastErr = err
		}
		state = c.machine.Current()
	}
	token := s.token
	metrics := c.metrics
	c.mu.Unlock()

	s.cancel(ErrStopped)
	c.arbiter.Release(token)

	switch {
	case err == nil:
		log.Debug("Narration completed", "chunks", len(s.chunks))
		metrics.SessionEnded(context.Background(), StateCompleted.String())
	case IsAborted(err):
		log.Debug("Narration aborted", "reason", err)
		metrics.SessionEnded(context.Background(), StateStopped.String())
	default:
		log.Error("Narration failed", "error", err)
		metrics.SessionEnded(context.Background(), StateFailed.String())
	}

	if current {
		if err == nil {
			c.emitProgress(100)
		}
		c.notifyState(state)
	}
	return err
}

// Pause holds narration on the current chunk. It is a no-op unless the
// controller is playing.
func (c *Controller) Pause() {
	c.mu.Lock()
	s := c.session
	if s == nil || !c.machine.Transition(StatePaused) {
		c.mu.Unlock()
		return
	}
	s.paused = true
	s.resume = make(chan struct{})
	if s.chunkCancel != nil {
		s.chunkCancel()
	}
	stopUtteranceLocked(s)
	idx := s.index
	c.mu.Unlock()

	log.Debug("Narration paused", "chunk", idx)
	c.notifyState(StatePaused)
}

// Resume continues a paused narration from the start of the chunk it was
// paused on. It is a no-op unless the controller is paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	s := c.session
	if s == nil || c.machine.Current() != StatePaused || !c.machine.Transition(StatePlaying) {
		c.mu.Unlock()
		return
	}
	s.paused = false
	close(s.resume)
	idx := s.index
	c.mu.Unlock()

	log.Debug("Narration resumed", "chunk", idx)
	c.notifyState(StatePlaying)
}

// Stop ends the current narration and releases the audio output. Calling
// Stop again, or on a finished session, changes nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.session
	state := c.machine.Current()
	if s == nil || !state.IsActive() {
		moved := state == StateIdle && c.machine.Transition(StateStopped)
		c.mu.Unlock()
		if moved {
			c.notifyState(StateStopped)
		}
		return
	}
	s.cancel(ErrStopped)
	stopUtteranceLocked(s)
	c.machine.Transition(StateStopped)
	token := s.token
	c.mu.Unlock()

	c.arbiter.Release(token)
}

// Restart narrates the most recent script again from the beginning.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	script, opts := c.script, c.opts
	started := c.session != nil
	c.mu.Unlock()

	if !started {
		return fmt.Errorf("%w: nothing to restart", ErrNotPlaying)
	}
	c.Stop()
	return c.Start(ctx, script, opts)
}

// JumpToSegment moves narration to the first chunk of the given display
// segment. A paused narration stays paused at the new position.
func (c *Controller) JumpToSegment(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || !c.machine.Current().IsActive() {
		return ErrNotPlaying
	}
	if index < 0 || index >= len(s.segments) {
		return fmt.Errorf("segment %d out of range [0, %d)", index, len(s.segments))
	}

	s.index = segment.ChunkForSegment(s.segments, index, len(s.chunks))
	s.announced = -1
	s.forceSegment = index
	if s.chunkCancel != nil {
		s.chunkCancel()
	}
	stopUtteranceLocked(s)
	log.Debug("Jumping to segment", "segment", index, "chunk", s.index)
	return nil
}

// SetSpeed changes the speech rate from the next chunk on.
func (c *Controller) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: speed must be between %.1f and %.1f", ErrInvalidConfig, MinSpeed, MaxSpeed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Speed = speed
	if c.session != nil {
		c.session.opts.Speed = speed
	}
	return nil
}

// SetVolume changes the output level from the next chunk on.
func (c *Controller) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("%w: volume must be between 0 and 1", ErrInvalidConfig)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Volume = Level(volume)
	if c.session != nil {
		c.session.opts.Volume = Level(volume)
	}
	return nil
}

// State returns the current state.
func (c *Controller) State() StateType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Status returns a snapshot of the current or most recent session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:     c.machine.Current(),
		LastError: c.lastErr,
	}
	s := c.session
	if s == nil {
		return st
	}

	total := len(s.chunks)
	st.Chunk = min(s.index, total-1)
	st.TotalChunks = total
	st.Segment = max(s.segment, 0)
	st.Progress = s.progress
	st.Backend = s.backend
	st.Fallback = s.fallback
	st.Estimated = s.estimated
	st.Elapsed = segment.ChunkElapsed(st.Chunk, total, s.estimated)
	if st.State == StateCompleted {
		st.Elapsed = s.estimated
	}
	return st
}

// Segments returns the display segments of the current or most recent
// session.
func (c *Controller) Segments() []segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return append([]segment.Segment(nil), c.session.segments...)
}

func (c *Controller) notifyState(state StateType) {
	c.mu.Lock()
	fn := c.onStateChange
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Controller) emitProgress(percent float64) {
	c.mu.Lock()
	fn := c.onProgress
	c.mu.Unlock()
	if fn != nil {
		fn(percent)
	}
}

func (c *Controller) emitChunkStart(index, total int) {
	c.mu.Lock()
	fn := c.onChunkStart
	c.mu.Unlock()
	if fn != nil {
		fn(index, total)
	}
}

func (c *Controller) emitSegmentChange(index int) {
	c.mu.Lock()
	fn := c.onSegmentChange
	c.mu.Unlock()
	if fn != nil {
		fn(index)
	}
}

// sessionOwner lets the arbiter abort one particular session.
type sessionOwner struct {
	c *Controller
	s *session
}

// Abort implements Owner.
func (o *sessionOwner) Abort(cause error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()

	o.s.cancel(cause)
	stopUtteranceLocked(o.s)
	if o.c.session == o.s && o.c.machine.Current().IsActive() {
		o.c.machine.Transition(StateStopped)
	}
}

func stopUtteranceLocked(s *session) {
	if s.utterance == nil {
		return
	}
	if err := s.utterance.Stop(); err != nil {
		log.Debug("Failed to stop utterance", "error", err)
	}
	s.utterance = nil
}

// abortCause returns why ctx ended, always matching ErrAborted.
func abortCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrAborted) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}
