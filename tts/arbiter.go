package tts

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Owner is a narration that can be forced off the audio output.
type Owner interface {
	// Abort cancels the narration and stops any audio it is emitting
	// before returning. It must not call back into the Arbiter.
	Abort(cause error)
}

// Token identifies the current owner of the audio output.
type Token struct {
	id    uint64
	owner Owner
}

// Arbiter grants exclusive use of the audio output. The last caller of
// Acquire always wins: the previous owner is aborted before the new one is
// recorded. One Arbiter is created per process and shared by every
// Controller.
type Arbiter struct {
	mu        sync.Mutex
	current   *Token
	nextID    uint64
	cancelers []Canceler
}

// NewArbiter creates an arbiter. Cancelers are silenced whenever ownership
// changes hands, which covers speech queued outside any Controller.
func NewArbiter(cancelers ...Canceler) *Arbiter {
	return &Arbiter{cancelers: cancelers}
}

// Register adds a canceler to silence on ownership changes.
func (a *Arbiter) Register(c Canceler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelers = append(a.cancelers, c)
}

// Acquire aborts the current owner, silences local synthesis and records
// owner as the new holder. It never waits for the previous narration to
// unwind.
func (a *Arbiter) Acquire(owner Owner) *Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev := a.current; prev != nil {
		log.Debug("Superseding narration", "token", prev.id)
		prev.owner.Abort(ErrSuperseded)
	}
	a.cancelAllLocked()

	a.nextID++
	a.current = &Token{id: a.nextID, owner: owner}
	return a.current
}

// Release gives up ownership when t is still the current token.
func (a *Arbiter) Release(t *Token) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t == nil || a.current != t {
		return
	}
	a.current = nil
	a.cancelAllLocked()
}

// IsActive reports whether an owner is recorded.
func (a *Arbiter) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

// Holds reports whether t is the current token.
func (a *Arbiter) Holds(t *Token) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return t != nil && a.current == t
}

// Emit runs start, which begins audio output, only while t is the current
// token. Emit and Acquire are serialized, so audio is never started by a
// narration that has already been superseded.
func (a *Arbiter) Emit(t *Token, start func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t == nil || a.current != t {
		return ErrSuperseded
	}
	return start()
}

// GlobalCleanup stops whatever is playing and clears ownership. It is meant
// for application teardown.
func (a *Arbiter) GlobalCleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev := a.current; prev != nil {
		prev.owner.Abort(ErrStopped)
		a.current = nil
	}
	a.cancelAllLocked()
}

func (a *Arbiter) cancelAllLocked() {
	for _, c := range a.cancelers {
		c.CancelAll()
	}
}
