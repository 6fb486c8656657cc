// Package crawl implements the crawl-end finder: it tracks the initial wave
// of in-flight request ids and fires a one-shot callback once the set has
// drained and stayed empty through a short debounce window, coalescing
// bursts of chained micro-imports that would otherwise prematurely read as
// idle between transforms.
package crawl

import (
	"sync"
	"time"
)

const debounce = 50 * time.Millisecond

// Result is delivered on WaitForRequestsIdle's channel: either the finder's
// one-shot callback fired (Cancelled=false) or the wait was cancelled first.
type Result struct {
	Cancelled bool
	Err       error
}

// Finder tracks registered/seen request ids and debounces idle detection.
type Finder struct {
	mu         sync.Mutex
	registered map[string]struct{}
	seen       map[string]struct{}
	called     bool
	cancelled  bool
	timer      *time.Timer
	onIdle     []func()
	waiters    []chan Result
}

// New builds an empty Finder.
func New() *Finder {
	return &Finder{
		registered: map[string]struct{}{},
		seen:       map[string]struct{}{},
	}
}

// OnCrawlEnd appends a one-shot callback invoked exactly once, the first
// time the registered set drains and stays empty through the debounce.
func (f *Finder) OnCrawlEnd(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onIdle = append(f.onIdle, cb)
}

// RegisterRequestProcessing records id as in-flight and invokes doneFn
// immediately; when the caller-supplied work settles it must call
// MarkIDAsDone(id) regardless of outcome. Idempotent per id.
func (f *Finder) RegisterRequestProcessing(id string, doneFn func()) {
	f.mu.Lock()
	if _, already := f.seen[id]; already {
		f.mu.Unlock()
		return
	}
	f.seen[id] = struct{}{}
	f.registered[id] = struct{}{}
	f.mu.Unlock()

	if doneFn != nil {
		doneFn()
	}
}

// WaitForRequestsIdle registers a one-shot waiter for the next crawl-end and
// returns a channel that receives exactly one Result. If ignoredID is
// non-empty, it is marked seen-and-done first so a plugin cannot deadlock
// waiting on its own registration.
func (f *Finder) WaitForRequestsIdle(ignoredID string) <-chan Result {
	ch := make(chan Result, 1)

	f.mu.Lock()
	if ignoredID != "" {
		if _, already := f.seen[ignoredID]; !already {
			f.seen[ignoredID] = struct{}{}
		}
		delete(f.registered, ignoredID)
	}
	if f.cancelled {
		f.mu.Unlock()
		ch <- Result{Cancelled: true}
		return ch
	}
	if f.called {
		f.mu.Unlock()
		ch <- Result{}
		return ch
	}
	f.waiters = append(f.waiters, ch)
	idle := len(f.registered) == 0
	f.mu.Unlock()

	if idle {
		f.restartDebounce()
	}
	return ch
}

// Wait blocks for the next crawl-end (or cancellation) and returns
// (cancelled, err), the synchronous form environment.DevEnvironment's
// waitForRequestsIdle is documented to expose.
func (f *Finder) Wait(ignoredID string) (bool, error) {
	res := <-f.WaitForRequestsIdle(ignoredID)
	return res.Cancelled, res.Err
}

// MarkIDAsDone removes id from the registered set; if that drains it to
// empty and the finder is not cancelled, it (re)starts the debounce timer.
func (f *Finder) MarkIDAsDone(id string) {
	f.mu.Lock()
	if _, ok := f.registered[id]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.registered, id)
	empty := len(f.registered) == 0
	cancelled := f.cancelled
	f.mu.Unlock()

	if empty && !cancelled {
		f.restartDebounce()
	}
}

func (f *Finder) restartDebounce() {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(debounce, f.fire)
	f.mu.Unlock()
}

func (f *Finder) fire() {
	f.mu.Lock()
	if f.cancelled || f.called || len(f.registered) != 0 {
		f.mu.Unlock()
		return
	}
	f.called = true
	cbs := f.onIdle
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
	for _, w := range waiters {
		w <- Result{}
	}
}

// Cancel suppresses future fires. Already-delivered waiters are unaffected;
// outstanding waiters receive Result{Cancelled: true}.
func (f *Finder) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	if f.timer != nil {
		f.timer.Stop()
	}
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, w := range waiters {
		w <- Result{Cancelled: true}
	}
}
