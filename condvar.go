package sxlock

import (
	"fmt"
	"sync"
	"time"
)

// CondVar is a blocking wait/signal primitive for engine threads that must
// sleep until another thread hands them work or a lock.
//
// Unlike sync.Cond, a CondVar carries no external predicate and does not
// lose a signal sent while nobody is waiting: Signal on an empty CondVar
// latches, and the next Wait consumes the latch and returns at once.
//
// Wait supports a timeout, which is the only bounded wait offered by this
// package; callers needing deadlines build them on top of it.
//
// State:
//
//	waiters > 0   number of goroutines blocked in Wait
//	waiters == 0  nobody blocked, no pending signal
//	waiters == -1 signalled with nobody blocked (latched)
//
// The zero value is an unnamed, unsignalled CondVar ready for use.
type CondVar struct {
	_       noCopy
	name    string
	mu      sync.Mutex
	waiters int
	closed  bool
	// FIFO of blocked waiters; protected by mu.
	head *cvWaiter
	tail *cvWaiter
	// recycled waiter records; protected by mu.
	free *cvWaiter
}

type cvWaiter struct {
	prev  *cvWaiter
	next  *cvWaiter
	wake  chan struct{} // buffered(1); receives exactly one token per wakeup
	woken bool          // protected by CondVar.mu
}

// NewCondVar returns a CondVar with the given diagnostic name. If signalled
// is true, the first Wait returns immediately.
func NewCondVar(name string, signalled bool) *CondVar {
	cv := &CondVar{name: name}
	if signalled {
		cv.waiters = -1
	}
	return cv
}

// Name returns the diagnostic name.
func (cv *CondVar) Name() string {
	return cv.name
}

// Waiters returns the number of blocked goroutines, or -1 when a signal is
// latched.
func (cv *CondVar) Waiters() int {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.waiters
}

// Wait blocks until the CondVar is signalled or timeout elapses. A zero or
// negative timeout waits forever. It reports whether it returned because of
// a signal.
//
// A signal that races with the timeout is never dropped: if the waiter was
// chosen by Signal before it could withdraw, Wait reports true.
func (cv *CondVar) Wait(timeout time.Duration) bool {
	cv.mu.Lock()
	cv.checkOpen()
	if cv.waiters == -1 {
		cv.waiters = 0
		cv.mu.Unlock()
		return true
	}
	return cv.park(timeout)
}

// waitFor blocks until cond reports true. The predicate is evaluated with
// the CondVar's mutex held, so a state change published before a call to
// Signal or Broadcast is always observed either by the check or by the
// wakeup that follows it.
func (cv *CondVar) waitFor(cond func() bool) {
	cv.mu.Lock()
	cv.checkOpen()
	for !cond() {
		if cv.waiters == -1 {
			cv.waiters = 0
			continue
		}
		cv.park(0)
		cv.mu.Lock()
	}
	cv.mu.Unlock()
}

// park enqueues the caller and blocks. It must be called with mu held and
// returns with mu released.
func (cv *CondVar) park(timeout time.Duration) bool {
	w := cv.enqueue()
	cv.waiters++
	cv.mu.Unlock()

	if timeout <= 0 {
		<-w.wake
		cv.recycle(w)
		return true
	}

	timer := time.NewTimer(timeout)
	select {
	case <-w.wake:
		timer.Stop()
		cv.recycle(w)
		return true
	case <-timer.C:
	}

	cv.mu.Lock()
	if w.woken {
		// Chosen by Signal between the timer firing and re-locking; the
		// token is already buffered.
		cv.mu.Unlock()
		<-w.wake
		cv.recycle(w)
		return true
	}
	cv.unlink(w)
	cv.waiters--
	w.next = cv.free
	cv.free = w
	cv.mu.Unlock()
	return false
}

// Signal wakes the longest-blocked waiter. With nobody blocked the signal is
// latched for the next Wait.
func (cv *CondVar) Signal() {
	cv.mu.Lock()
	cv.checkOpen()
	switch {
	case cv.waiters > 0:
		cv.wakeOne()
	case cv.waiters == 0:
		cv.waiters = -1
	}
	cv.mu.Unlock()
}

// Broadcast wakes every blocked waiter. With nobody blocked the signal is
// latched for the next Wait.
func (cv *CondVar) Broadcast() {
	cv.mu.Lock()
	cv.checkOpen()
	if cv.waiters == 0 {
		cv.waiters = -1
	}
	for cv.waiters > 0 {
		cv.wakeOne()
	}
	cv.mu.Unlock()
}

// Close retires the CondVar. It fails with ErrCondVarBusy while goroutines
// are blocked on it; after a successful Close any further use panics.
func (cv *CondVar) Close() error {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.waiters > 0 {
		return fmt.Errorf("%w: %q has %d", ErrCondVarBusy, cv.name, cv.waiters)
	}
	cv.closed = true
	cv.free = nil
	return nil
}

// Diagnostics implements Diagnoser.
func (cv *CondVar) Diagnostics() Diagnostics {
	return Diagnostics{
		Kind:    KindCondVar,
		Name:    cv.name,
		Waiters: cv.Waiters(),
	}
}

func (cv *CondVar) checkOpen() {
	if cv.closed {
		cv.mu.Unlock()
		panic("sxlock: use of closed CondVar " + cv.name)
	}
}

// wakeOne pops the head waiter and hands it a token. Caller holds mu.
func (cv *CondVar) wakeOne() {
	w := cv.head
	cv.unlink(w)
	cv.waiters--
	w.woken = true
	w.wake <- struct{}{}
}

func (cv *CondVar) enqueue() *cvWaiter {
	w := cv.free
	if w != nil {
		cv.free = w.next
		w.next = nil
	} else {
		w = &cvWaiter{wake: make(chan struct{}, 1)}
	}
	w.woken = false
	w.prev = cv.tail
	if cv.tail == nil {
		cv.head = w
	} else {
		cv.tail.next = w
	}
	cv.tail = w
	return w
}

func (cv *CondVar) unlink(w *cvWaiter) {
	if w.prev == nil {
		cv.head = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		cv.tail = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev = nil
	w.next = nil
}

func (cv *CondVar) recycle(w *cvWaiter) {
	cv.mu.Lock()
	if !cv.closed {
		w.next = cv.free
		cv.free = w
	}
	cv.mu.Unlock()
}
