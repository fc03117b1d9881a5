package sxlock

import (
	"sync/atomic"
)

// FairLock is a fair, FIFO (First-In-First-Out) spin-lock in 4 bytes.
//
// Unlike sync.Mutex, which allows "barging" (newcomers can steal the lock),
// FairLock grants the lock in the exact order Lock was called.
//
// Implementation:
// It uses the classic "ticket" algorithm over one 32-bit word:
//   - low 16 bits `owner`: ticket currently allowed to proceed.
//   - high 16 bits `waiter`: next ticket to hand out.
//   - Lock(): takes `waiter` as its ticket and increments it, then spins
//     until `owner` equals the ticket.
//   - Unlock(): increments `owner`, releasing the next ticket holder.
//
// Both fields live in one word so TryLock can claim the lock only when
// `owner == waiter` with a single CAS. Tickets wrap at 2^16; fewer than
// 65536 threads may queue at once.
//
// It is meant for very short critical sections, shorter than the cost of
// parking a thread. It is not reentrant and must never be held across a
// blocking call.
type FairLock struct {
	_     noCopy
	state atomic.Uint32
}

const (
	fairOwnerMask  = 1<<16 - 1
	fairWaiterUnit = 1 << 16
)

// Lock acquires the lock. Spins until the lock is available.
func (l *FairLock) Lock() {
	s := l.state.Add(fairWaiterUnit)
	my := uint16(s>>16) - 1
	if uint16(s) == my {
		return
	}
	var spins int
	for uint16(l.state.Load()) != my {
		pause(&spins)
	}
}

// TryLock acquires the lock only if no ticket is outstanding.
func (l *FairLock) TryLock() bool {
	s := l.state.Load()
	if uint16(s) != uint16(s>>16) {
		return false
	}
	return l.state.CompareAndSwap(s, s+fairWaiterUnit)
}

// Unlock releases the lock.
// Unlocking a FairLock that nobody holds is a fatal misuse.
func (l *FairLock) Unlock() {
	for {
		s := l.state.Load()
		owner := uint16(s)
		if owner == uint16(s>>16) {
			panic("sxlock: unlock of unlocked FairLock")
		}
		if l.state.CompareAndSwap(s, s&^fairOwnerMask|uint32(owner+1)) {
			return
		}
	}
}

// Queued returns the number of tickets handed out and not yet released,
// including the holder's.
func (l *FairLock) Queued() int {
	s := l.state.Load()
	return int(uint16(s>>16) - uint16(s))
}

// Diagnostics implements Diagnoser.
func (l *FairLock) Diagnostics() Diagnostics {
	return Diagnostics{Kind: KindFairLock, Queued: l.Queued()}
}

// FairLock64 is FairLock with 64-bit counters, for locks whose queue depth
// cannot be bounded by 2^16.
type FairLock64 struct {
	_      noCopy
	waiter atomic.Uint64
	owner  atomic.Uint64
}

// Lock acquires the lock. Spins until the lock is available.
func (l *FairLock64) Lock() {
	my := l.waiter.Add(1) - 1
	var spins int
	for l.owner.Load() != my {
		pause(&spins)
	}
}

// TryLock acquires the lock only if no ticket is outstanding.
func (l *FairLock64) TryLock() bool {
	owner := l.owner.Load()
	return l.waiter.CompareAndSwap(owner, owner+1)
}

// Unlock releases the lock.
func (l *FairLock64) Unlock() {
	if l.owner.Load() == l.waiter.Load() {
		panic("sxlock: unlock of unlocked FairLock64")
	}
	l.owner.Add(1)
}
