package sxlock

import (
	"fmt"
	"sync/atomic"
)

// RWLock is a fair, spin-based Reader-Writer lock built on a single ticket
// word.
//
// Every acquisition takes a ticket by incrementing `users`. A writer waits
// until `writers` reaches its ticket; a reader waits until `readers` does and
// then advances `readers`, letting the reader behind it in, so readers queued
// back to back are admitted as one batch. Each reader release advances
// `writers`, so a writer queued behind a batch proceeds only after the whole
// batch has left. A writer release advances both.
//
// Properties:
//   - FIFO between writers and reader batches; later arrivals never overtake
//     an earlier ticket, so neither side can starve.
//   - Busy-wait (spinning, then yielding). Never parks.
//
// The three counters are fields of one atomic.Uint64 and are only ever
// updated as a whole word, so no thread reads a half-updated ticket state.
// Field width is configurable (see WithTicketBits); counters wrap modulo
// 2^bits, which bounds the number of threads that may be queued at once to
// 2^bits - 1.
//
// The zero value is an unlocked lock with DefaultTicketBits-wide fields.
type RWLock struct {
	_    noCopy
	name string
	bits uint // 0 means DefaultTicketBits
	word atomic.Uint64
}

const (
	DefaultTicketBits = 16
	MinTicketBits     = 4
	MaxTicketBits     = 21 // three fields in 64 bits
)

// RWLockConfig defines configurable options for RWLock initialization.
type RWLockConfig struct {
	// bits is the width of each ticket counter.
	bits uint
}

// WithTicketBits sets the width of the writers/readers/users counters.
// At most 2^bits - 1 threads may be queued on the lock at any moment.
func WithTicketBits(bits uint) func(*RWLockConfig) {
	return func(c *RWLockConfig) {
		c.bits = bits
	}
}

// NewRWLock returns a named RWLock.
func NewRWLock(name string, options ...func(*RWLockConfig)) (*RWLock, error) {
	c := RWLockConfig{bits: DefaultTicketBits}
	for _, o := range options {
		o(&c)
	}
	if c.bits < MinTicketBits || c.bits > MaxTicketBits {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrTicketBits, c.bits, MinTicketBits, MaxTicketBits)
	}
	return &RWLock{name: name, bits: c.bits}, nil
}

// Name returns the diagnostic name.
func (rw *RWLock) Name() string {
	return rw.name
}

// ticketLayout describes the packing of one RWLock word:
//
//	bits [0, b)    writers: now serving for writers
//	bits [b, 2b)   readers: now serving for readers
//	bits [2b, 3b)  users:   next ticket to hand out
//
// Bits above 3b absorb the carry of users and are ignored.
type ticketLayout struct {
	bits uint
	mask uint64
}

func (rw *RWLock) layout() ticketLayout {
	b := rw.bits
	if b == 0 {
		b = DefaultTicketBits
	}
	return ticketLayout{bits: b, mask: 1<<b - 1}
}

func (t ticketLayout) writers(v uint64) uint64 { return v & t.mask }
func (t ticketLayout) readers(v uint64) uint64 { return v >> t.bits & t.mask }
func (t ticketLayout) users(v uint64) uint64   { return v >> (2 * t.bits) & t.mask }
func (t ticketLayout) userUnit() uint64        { return 1 << (2 * t.bits) }

// bump returns v with the field at shift incremented, wrapping within the
// field.
func (t ticketLayout) bump(v uint64, shift uint) uint64 {
	f := (v>>shift + 1) & t.mask
	return v&^(t.mask<<shift) | f<<shift
}

// take hands out the next ticket.
func (rw *RWLock) take(t ticketLayout) uint64 {
	unit := t.userUnit()
	return t.users(rw.word.Add(unit) - unit)
}

// advance increments the writers field, and the readers field too when
// both is set, in one CAS.
func (rw *RWLock) advance(t ticketLayout, shift uint, both bool) {
	for {
		v := rw.word.Load()
		nv := t.bump(v, shift)
		if both {
			nv = t.bump(nv, t.bits)
		}
		if rw.word.CompareAndSwap(v, nv) {
			return
		}
	}
}

// RLock acquires a read lock.
func (rw *RWLock) RLock() {
	t := rw.layout()
	ticket := rw.take(t)
	var spins int
	for t.readers(rw.word.Load()) != ticket {
		pause(&spins)
	}
	// Admit the next queued reader, if it is a reader.
	rw.advance(t, t.bits, false)
}

// TryRLock acquires a read lock only if it can be granted immediately.
// On failure it takes no ticket.
func (rw *RWLock) TryRLock() bool {
	t := rw.layout()
	v := rw.word.Load()
	if t.readers(v) != t.users(v) {
		return false
	}
	nv := t.bump(t.bump(v, t.bits), 2*t.bits)
	return rw.word.CompareAndSwap(v, nv)
}

// RUnlock releases a read lock.
func (rw *RWLock) RUnlock() {
	t := rw.layout()
	rw.advance(t, 0, false)
}

// Lock acquires the write lock.
func (rw *RWLock) Lock() {
	t := rw.layout()
	ticket := rw.take(t)
	var spins int
	for t.writers(rw.word.Load()) != ticket {
		pause(&spins)
	}
}

// TryLock acquires the write lock only if nobody holds or waits for the
// lock. On failure it takes no ticket, so blocked callers keep their order.
func (rw *RWLock) TryLock() bool {
	t := rw.layout()
	v := rw.word.Load()
	if t.writers(v) != t.users(v) {
		return false
	}
	return rw.word.CompareAndSwap(v, v+t.userUnit())
}

// Unlock releases the write lock and admits the next ticket, whether it
// belongs to a writer or to the head of a reader batch.
func (rw *RWLock) Unlock() {
	t := rw.layout()
	rw.advance(t, 0, true)
}

// Pending returns the number of tickets handed out that have not yet been
// released, counting holders and waiters alike.
func (rw *RWLock) Pending() int {
	t := rw.layout()
	v := rw.word.Load()
	return int((t.users(v) - t.writers(v)) & t.mask)
}

// Diagnostics implements Diagnoser.
func (rw *RWLock) Diagnostics() Diagnostics {
	return Diagnostics{
		Kind:   KindRWLock,
		Name:   rw.name,
		Queued: rw.Pending(),
	}
}
