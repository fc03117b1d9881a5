package sxlock

import "sync/atomic"

// TASLock is a test-and-set spin-lock on a 64-bit word.
//
// Bit 0 is the lock. The remaining bits belong to whoever embeds the lock
// and are preserved by every operation, which lets a structure fold a small
// counter into the lock word and decide "release or hand off" with one CAS
// (FSLock keeps its parked-thread count there).
//
// There is no ordering between contenders: the first CAS wins.
type TASLock struct {
	_    noCopy
	word atomic.Uint64
}

const tasLocked = 1

// Lock acquires the lock. Spins until the lock bit can be set.
func (l *TASLock) Lock() {
	if l.TryLock() {
		return
	}
	var spins int
	for !l.TryLock() {
		pause(&spins)
	}
}

// TryLock sets the lock bit if it is clear, leaving the other bits as they
// are.
func (l *TASLock) TryLock() bool {
	for {
		cur := l.word.Load()
		if cur&tasLocked != 0 {
			return false
		}
		if l.word.CompareAndSwap(cur, cur|tasLocked) {
			return true
		}
	}
}

// Unlock clears the lock bit, preserving the other bits.
// Unlocking a TASLock that is not held is a fatal misuse.
func (l *TASLock) Unlock() {
	for {
		cur := l.word.Load()
		if cur&tasLocked == 0 {
			panic("sxlock: unlock of unlocked TASLock")
		}
		if l.word.CompareAndSwap(cur, cur&^tasLocked) {
			return
		}
	}
}

// Locked reports whether the lock bit is set.
func (l *TASLock) Locked() bool {
	return l.word.Load()&tasLocked != 0
}
