package workerutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoHaltWait(t *testing.T) {
	var w Worker
	started := make(chan struct{})
	w.Go(func() {
		close(started)
		<-w.HaltCh()
		w.Done()
	})

	<-started
	w.Halt()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Halt")
	}
}

func TestHaltIsIdempotent(t *testing.T) {
	var w Worker
	require.NotPanics(t, func() {
		w.Halt()
		w.Halt()
	})
}

func TestMultipleGoroutinesAllObserveHalt(t *testing.T) {
	var w Worker
	const n = 5
	ready := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		w.Go(func() {
			ready <- struct{}{}
			<-w.HaltCh()
			w.Done()
		})
	}
	for i := 0; i < n; i++ {
		<-ready
	}
	w.Halt()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Halt for all goroutines")
	}
}
