package tts

import (
	"errors"
	"sync"
	"testing"
)

// fakeOwner records aborts.
type fakeOwner struct {
	name   string
	log    *[]string
	mu     *sync.Mutex
	causes []error
}

func (o *fakeOwner) Abort(cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.causes = append(o.causes, cause)
	*o.log = append(*o.log, "abort:"+o.name)
}

// fakeCanceler counts CancelAll calls.
type fakeCanceler struct{ calls int }

func (c *fakeCanceler) CancelAll() { c.calls++ }

func newOwners(names ...string) ([]*fakeOwner, *[]string, *sync.Mutex) {
	var (
		log []string
		mu  sync.Mutex
	)
	owners := make([]*fakeOwner, len(names))
	for i, n := range names {
		owners[i] = &fakeOwner{name: n, log: &log, mu: &mu}
	}
	return owners, &log, &mu
}

// TestArbiterLastCallerWins tests that acquiring aborts the previous owner.
func TestArbiterLastCallerWins(t *testing.T) {
	owners, _, _ := newOwners("a", "b")
	a, b := owners[0], owners[1]
	arb := NewArbiter()

	ta := arb.Acquire(a)
	if !arb.IsActive() || !arb.Holds(ta) {
		t.Fatal("Expected a to hold the arbiter")
	}

	tb := arb.Acquire(b)
	if arb.Holds(ta) {
		t.Error("Expected a to lose ownership")
	}
	if !arb.Holds(tb) {
		t.Error("Expected b to hold the arbiter")
	}
	if len(a.causes) != 1 || !errors.Is(a.causes[0], ErrSuperseded) {
		t.Errorf("Expected a to be superseded, got %v", a.causes)
	}
	if len(b.causes) != 0 {
		t.Errorf("Expected b untouched, got %v", b.causes)
	}
}

// TestArbiterStaleRelease tests that an old token cannot release a newer owner.
func TestArbiterStaleRelease(t *testing.T) {
	owners, _, _ := newOwners("a", "b")
	arb := NewArbiter()

	ta := arb.Acquire(owners[0])
	tb := arb.Acquire(owners[1])

	arb.Release(ta)
	if !arb.Holds(tb) {
		t.Error("Stale release must not clear the current owner")
	}

	arb.Release(tb)
	if arb.IsActive() {
		t.Error("Expected no owner after release")
	}
	arb.Release(tb)
	arb.Release(nil)
}

// TestArbiterEmit tests that only the current owner may start audio.
func TestArbiterEmit(t *testing.T) {
	owners, log, mu := newOwners("a", "b")
	arb := NewArbiter()

	ta := arb.Acquire(owners[0])
	started := 0
	start := func() error {
		started++
		return nil
	}

	if err := arb.Emit(ta, start); err != nil {
		t.Fatalf("Emit by owner failed: %v", err)
	}

	tb := arb.Acquire(owners[1])
	if err := arb.Emit(ta, start); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Expected stale emit to be refused, got %v", err)
	}
	if err := arb.Emit(tb, func() error {
		mu.Lock()
		defer mu.Unlock()
		*log = append(*log, "start:b")
		return nil
	}); err != nil {
		t.Errorf("Emit by new owner failed: %v", err)
	}

	if started != 1 {
		t.Errorf("Expected 1 start, got %d", started)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(*log) != 2 || (*log)[0] != "abort:a" || (*log)[1] != "start:b" {
		t.Errorf("Expected abort before start, got %v", *log)
	}

	boom := errors.New("boom")
	if err := arb.Emit(tb, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected start error to be returned, got %v", err)
	}
}

// TestArbiterGlobalCleanup tests unconditional teardown.
func TestArbiterGlobalCleanup(t *testing.T) {
	owners, _, _ := newOwners("a")
	canceler := &fakeCanceler{}
	arb := NewArbiter(canceler)

	arb.GlobalCleanup()
	if canceler.calls != 1 {
		t.Errorf("Expected cleanup to cancel local speech, got %d calls", canceler.calls)
	}

	ta := arb.Acquire(owners[0])
	arb.GlobalCleanup()

	if arb.IsActive() || arb.Holds(ta) {
		t.Error("Expected no owner after cleanup")
	}
	if len(owners[0].causes) != 1 || !errors.Is(owners[0].causes[0], ErrStopped) {
		t.Errorf("Expected owner to be stopped, got %v", owners[0].causes)
	}
}

// TestArbiterCancelers tests that local speech is silenced on every handover.
func TestArbiterCancelers(t *testing.T) {
	owners, _, _ := newOwners("a", "b")
	first := &fakeCanceler{}
	second := &fakeCanceler{}
	arb := NewArbiter(first)
	arb.Register(second)

	ta := arb.Acquire(owners[0])
	arb.Acquire(owners[1])
	arb.Release(ta) // stale, nothing cancelled

	if first.calls != 2 || second.calls != 2 {
		t.Errorf("Expected 2 cancels each, got %d and %d", first.calls, second.calls)
	}
}

// TestArbiterConcurrentAcquire tests that exactly one owner survives.
func TestArbiterConcurrentAcquire(t *testing.T) {
	const n = 20
	owners := make([]*fakeOwner, n)
	var (
		log []string
		mu  sync.Mutex
	)
	for i := range owners {
		owners[i] = &fakeOwner{name: "o", log: &log, mu: &mu}
	}
	arb := NewArbiter()

	tokens := make([]*Token, n)
	var wg sync.WaitGroup
	for i := range owners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i] = arb.Acquire(owners[i])
		}(i)
	}
	wg.Wait()

	holders := 0
	aborted := 0
	for i := range owners {
		if arb.Holds(tokens[i]) {
			holders++
		}
		aborted += len(owners[i].causes)
	}
	if holders != 1 {
		t.Errorf("Expected exactly one holder, got %d", holders)
	}
	if aborted != n-1 {
		t.Errorf("Expected %d aborts, got %d", n-1, aborted)
	}
}
