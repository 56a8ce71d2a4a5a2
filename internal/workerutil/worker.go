// Package workerutil provides the halt/wait-group goroutine lifecycle
// embedded throughout the surrounding stack (client2.Connection,
// stream.Stream, server/internal/decoy): a Worker is embedded by value,
// every background goroutine is started with Go and exits on HaltCh,
// and Halt/Wait give the owner a synchronous shutdown. The strand core
// itself is single-threaded and never uses this type; it exists only for
// the boundary driver in cmd/strandcat, which does need background
// goroutines (one pumping reads, one pumping the tick loop).
package workerutil

import "sync"

// Worker is meant to be embedded by value in a type that owns one or
// more background goroutines.
type Worker struct {
	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// HaltCh returns the channel that closes when Halt is called; goroutines
// started with Go should select on it to know when to return.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltCh
}

// Go starts fn in a new goroutine tracked by Wait. fn is responsible for
// calling Done exactly once before it returns (the reader/writer
// goroutines it wraps end their loop with an explicit Done call, not a
// deferred one, so they can also be reached via an early return on
// HaltCh without double-counting).
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go fn()
}

// Done marks one Go-started goroutine as finished. Must be called
// exactly once per Go call, by the goroutine itself.
func (w *Worker) Done() {
	w.wg.Done()
}

// Halt closes HaltCh, signaling every Go-started goroutine to exit. Safe
// to call more than once.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
}

// Wait blocks until every Go-started goroutine has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}
