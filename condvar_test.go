package sxlock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitUntil polls cond until it holds or a second passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCondVarSignalBeforeWait(t *testing.T) {
	cv := NewCondVar("latch", false)
	cv.Signal()
	if got := cv.Waiters(); got != -1 {
		t.Fatalf("Waiters after Signal with nobody waiting = %d, want -1", got)
	}

	done := make(chan bool)
	go func() {
		done <- cv.Wait(0)
	}()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Wait after latched Signal reported timeout")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Wait blocked even though Signal was called before")
	}
	if got := cv.Waiters(); got != 0 {
		t.Fatalf("Waiters after consuming latch = %d, want 0", got)
	}
}

func TestCondVarInitiallySignalled(t *testing.T) {
	cv := NewCondVar("primed", true)
	if !cv.Wait(time.Millisecond) {
		t.Fatal("first Wait on signalled CondVar timed out")
	}
	if cv.Wait(time.Millisecond) {
		t.Fatal("second Wait consumed a signal twice")
	}
}

func TestCondVarTimeout(t *testing.T) {
	var cv CondVar
	start := time.Now()
	if cv.Wait(time.Millisecond) {
		t.Fatal("Wait without Signal reported signalled")
	}
	dur := time.Since(start)
	if dur < time.Millisecond {
		t.Errorf("Wait returned too early: %v", dur)
	}
	if dur > time.Second {
		t.Errorf("Wait overslept: %v", dur)
	}
	if got := cv.Waiters(); got != 0 {
		t.Fatalf("Waiters after timeout = %d, want 0", got)
	}
}

func TestCondVarSignalWakesWaiter(t *testing.T) {
	cv := NewCondVar("wake", false)
	done := make(chan bool)
	go func() {
		done <- cv.Wait(0)
	}()
	waitUntil(t, "waiter to block", func() bool { return cv.Waiters() == 1 })

	select {
	case <-done:
		t.Fatal("Wait returned before Signal")
	case <-time.After(10 * time.Millisecond):
	}

	cv.Signal()
	if ok := <-done; !ok {
		t.Fatal("Wait woken by Signal reported timeout")
	}
	if got := cv.Waiters(); got != 0 {
		t.Fatalf("Waiters = %d, want 0", got)
	}
}

func TestCondVarSignalOrder(t *testing.T) {
	cv := NewCondVar("order", false)
	const n = 5
	woke := make(chan int, n)
	for i := range n {
		go func() {
			cv.Wait(0)
			woke <- i
		}()
		waitUntil(t, "waiter to block", func() bool { return cv.Waiters() == i+1 })
	}
	for i := range n {
		cv.Signal()
		if got := <-woke; got != i {
			t.Fatalf("Signal %d woke waiter %d", i, got)
		}
	}
}

func TestCondVarBroadcast(t *testing.T) {
	cv := NewCondVar("bcast", false)
	var count int32
	var wg sync.WaitGroup
	const n = 10

	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if cv.Wait(0) {
				atomic.AddInt32(&count, 1)
			}
		}()
	}
	waitUntil(t, "all waiters to block", func() bool { return cv.Waiters() == n })

	cv.Broadcast()
	wg.Wait()
	if c := atomic.LoadInt32(&count); c != n {
		t.Errorf("Not all waiters woke up: %d / %d", c, n)
	}

	// Nobody waiting: Broadcast latches like Signal.
	cv.Broadcast()
	if !cv.Wait(time.Millisecond) {
		t.Error("Broadcast with no waiters was lost")
	}
}

func TestCondVarTimeoutRacesSignal(t *testing.T) {
	cv := NewCondVar("race", false)
	const rounds = 200
	var signalled, timedOut int
	for range rounds {
		done := make(chan bool)
		go func() {
			done <- cv.Wait(50 * time.Microsecond)
		}()
		time.Sleep(50 * time.Microsecond)
		cv.Signal()
		if <-done {
			signalled++
		} else {
			timedOut++
			// The signal latched for the next waiter instead.
			if !cv.Wait(time.Millisecond) {
				t.Fatal("signal lost after a timed-out Wait")
			}
		}
	}
	if signalled+timedOut != rounds {
		t.Fatalf("rounds = %d, want %d", signalled+timedOut, rounds)
	}
}

func TestCondVarWaitFor(t *testing.T) {
	cv := NewCondVar("pred", false)
	var ready atomic.Bool
	done := make(chan struct{})
	go func() {
		cv.waitFor(ready.Load)
		close(done)
	}()

	// A stray signal does not satisfy the predicate.
	cv.Signal()
	select {
	case <-done:
		t.Fatal("waitFor returned with predicate false")
	case <-time.After(20 * time.Millisecond):
	}

	ready.Store(true)
	cv.Signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitFor did not return after predicate became true")
	}
}

func TestCondVarClose(t *testing.T) {
	cv := NewCondVar("busy", false)
	done := make(chan struct{})
	go func() {
		cv.Wait(0)
		close(done)
	}()
	waitUntil(t, "waiter to block", func() bool { return cv.Waiters() == 1 })

	if err := cv.Close(); !errors.Is(err, ErrCondVarBusy) {
		t.Fatalf("Close with waiter = %v, want ErrCondVarBusy", err)
	}
	cv.Signal()
	<-done
	if err := cv.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Signal on closed CondVar did not panic")
		}
	}()
	cv.Signal()
}

func TestCondVarDiagnostics(t *testing.T) {
	cv := NewCondVar("diag", true)
	d := cv.Diagnostics()
	if d.Kind != KindCondVar || d.Name != "diag" || d.Waiters != -1 {
		t.Fatalf("Diagnostics = %+v", d)
	}
}
