package sxlock

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/storagesync/sxlock/internal/opt"
	"github.com/storagesync/sxlock/internal/platform"
)

// FSLock is a hybrid fast/slow exclusive lock for hot engine structures
// (page cache, free lists, transaction tables).
//
// An acquisition moves through Spinning -> {Granted | Parked} -> Granted:
//   - Fast path: one CAS on the lock flag.
//   - Spin phase: up to the spin budget of pause-and-retry rounds. Cheap
//     under light contention, no system call.
//   - Slow path: the thread takes a wait ticket and parks in a bucket of the
//     wait table on a condition variable.
//
// Release clears the flag when nobody is parked. Otherwise the flag stays
// set and is handed to the parked thread holding the oldest ticket, so
// parked threads are served in strict ticket order and are never overtaken
// by fast-path newcomers. The fast path itself has no ordering guarantee.
//
// The wait table is guarded by a FairLock that is never held while a
// thread blocks. Bucket of a ticket is ticket mod table size, so the oldest
// ticket is always at the head of its bucket.
//
// The flag word holds the lock bit and the parked-thread count together
// (see TASLock); a releaser decides between "clear" and "hand off" with a
// single CAS, and a parking thread re-checks the flag and registers itself
// in the same CAS, so no release can slip between them.
//
// The zero value is an unnamed lock with the default spin budget and wait
// table, which is allocated when the first thread parks.
type FSLock struct {
	_          noCopy
	name       string
	spinBudget int // 0 means DefaultSpinBudget, negative means no spinning

	flag       TASLock // bit 0 owner, bits 1.. parked threads
	contenders atomic.Int32

	config    FairLock // guards the fields down to blockCond
	ticket    uint64   // next wait ticket
	serve     uint64   // oldest parked ticket
	mask      uint64
	table     []fsWaitHead
	free      *fsWaitHandle // dedicated-cond handles
	spare     *fsWaitHandle // blockCond handles
	pooled    int
	poolCap   int
	blockCond *CondVar

	acquired opt.Stamp_
	released opt.Stamp_

	fastAcquires atomic.Uint64
	spinAcquires atomic.Uint64
	parks        atomic.Uint64

	metrics *fsMetrics
	timing  *timing
}

const fsBlockerUnit = 2 // one parked thread in FSLock.flag

// fsWaitHead is one bucket of the wait table: a FIFO of handles whose
// tickets are congruent modulo the table size.
type fsWaitHead struct {
	first *fsWaitHandle
	last  *fsWaitHandle
}

// fsWaitHandle is a parked thread. It belongs to that thread except while
// linked in the table; the releaser that unlinks it grants it and never
// touches it again.
type fsWaitHandle struct {
	ticket  uint64
	cond    *CondVar
	shared  bool // cond is the lock's blockCond
	granted atomic.Bool
	next    *fsWaitHandle
}

func (b *fsWaitHead) push(h *fsWaitHandle) {
	if b.last == nil {
		b.first = h
	} else {
		b.last.next = h
	}
	b.last = h
}

func (b *fsWaitHead) pop() *fsWaitHandle {
	h := b.first
	if h == nil {
		return nil
	}
	b.first = h.next
	if b.first == nil {
		b.last = nil
	}
	h.next = nil
	return h
}

// NewFSLock returns a named FSLock.
func NewFSLock(name string, options ...func(*FSLockConfig)) *FSLock {
	c := defaultFSLockConfig()
	for _, o := range options {
		o(&c)
	}
	if c.condPool < 0 {
		c.condPool = c.tableSize
	}
	l := &FSLock{name: name, spinBudget: c.spinBudget}
	if l.spinBudget == 0 {
		l.spinBudget = -1
	}
	l.initTable(c.tableSize, c.condPool)
	if c.metrics != nil {
		l.metrics = newFSMetrics(name, c.metrics)
	}
	if c.timing != nil {
		l.timing = &timing{log: c.timing, name: name}
	}
	return l
}

// initTable allocates the wait table. Caller holds config or owns l
// exclusively.
func (l *FSLock) initTable(size, condPool int) {
	l.mask = uint64(size - 1)
	l.table = make([]fsWaitHead, size)
	l.poolCap = condPool
	l.blockCond = NewCondVar(l.name+".block", false)
}

// Name returns the diagnostic name.
func (l *FSLock) Name() string {
	return l.name
}

// Lock acquires the lock, parking the caller if the spin budget runs out.
// It cannot be cancelled; callers with deadlines check them before Lock.
func (l *FSLock) Lock() {
	if l.timing != nil {
		l.timing.begin("lock", platform.Epoch())
	}
	switch {
	case l.flag.TryLock():
		l.fastAcquires.Add(1)
		if l.metrics != nil {
			l.metrics.fast.Inc(1)
		}
	case l.spin() || !l.park():
		// park reports false when the flag came free while registering,
		// which counts as a spin-phase acquisition.
		l.spinAcquires.Add(1)
		if l.metrics != nil {
			l.metrics.spin.Inc(1)
		}
	}
	now := platform.Epoch()
	l.acquired.V.Store(now)
	if l.timing != nil {
		l.timing.end("lock", now)
	}
}

// TryLock acquires the lock only through the fast path.
func (l *FSLock) TryLock() bool {
	if l.timing != nil {
		l.timing.begin("trylock", platform.Epoch())
	}
	ok := l.flag.TryLock()
	now := platform.Epoch()
	if ok {
		l.fastAcquires.Add(1)
		if l.metrics != nil {
			l.metrics.fast.Inc(1)
		}
		l.acquired.V.Store(now)
	}
	if l.timing != nil {
		l.timing.end("trylock", now)
	}
	return ok
}

func (l *FSLock) spin() bool {
	budget := l.spinBudget
	if budget == 0 {
		budget = DefaultSpinBudget
	}
	if budget < 0 {
		return false
	}
	l.contenders.Add(1)
	defer l.contenders.Add(-1)
	var spins int
	for range budget {
		pause(&spins)
		if l.flag.TryLock() {
			return true
		}
	}
	return false
}

// park queues the caller in the wait table and blocks until a releaser
// hands it the lock. It returns false if the flag was found free while
// registering, in which case the caller owns the lock without parking.
func (l *FSLock) park() bool {
	l.config.Lock()
	if l.table == nil {
		l.initTable(DefaultWaitTableSize, DefaultWaitTableSize)
	}
	for {
		cur := l.flag.word.Load()
		if cur&tasLocked == 0 {
			if l.flag.word.CompareAndSwap(cur, cur|tasLocked) {
				l.config.Unlock()
				return false
			}
			continue
		}
		if l.flag.word.CompareAndSwap(cur, cur+fsBlockerUnit) {
			break
		}
	}
	h := l.handle()
	h.ticket = l.ticket
	l.ticket++
	l.table[h.ticket&l.mask].push(h)
	l.config.Unlock()

	start := platform.Epoch()
	h.cond.waitFor(h.granted.Load)
	l.parks.Add(1)
	if l.metrics != nil {
		l.metrics.parked.Inc(1)
		l.metrics.wait.Update(time.Duration(platform.Epoch() - start))
	}

	l.config.Lock()
	l.recycle(h)
	l.config.Unlock()
	return true
}

// handle returns a wait handle for a thread about to park. Caller holds
// config.
func (l *FSLock) handle() *fsWaitHandle {
	if h := l.free; h != nil {
		l.free = h.next
		h.next = nil
		return h
	}
	if l.pooled < l.poolCap {
		l.pooled++
		return &fsWaitHandle{cond: NewCondVar(l.name+".wait", false)}
	}
	if h := l.spare; h != nil {
		l.spare = h.next
		h.next = nil
		return h
	}
	return &fsWaitHandle{cond: l.blockCond, shared: true}
}

// recycle returns a granted handle to its free list. Caller holds config.
func (l *FSLock) recycle(h *fsWaitHandle) {
	h.granted.Store(false)
	if h.shared {
		h.next = l.spare
		l.spare = h
		return
	}
	h.next = l.free
	l.free = h
}

// Unlock releases the lock, or hands it to the oldest parked thread.
// Unlocking an FSLock that is not held is a fatal misuse.
func (l *FSLock) Unlock() {
	now := platform.Epoch()
	if l.timing != nil {
		l.timing.begin("unlock", now)
	}
	if l.metrics != nil {
		l.metrics.hold.Update(time.Duration(now - l.acquired.V.Load()))
	}
	l.released.V.Store(now)
	if !l.release() {
		l.handoff()
	}
	if l.timing != nil {
		l.timing.end("unlock", platform.Epoch())
	}
}

// release clears the flag if nobody is parked.
func (l *FSLock) release() bool {
	for {
		cur := l.flag.word.Load()
		if cur&tasLocked == 0 {
			panic("sxlock: unlock of unlocked FSLock " + l.name)
		}
		if cur>>1 != 0 {
			return false
		}
		if l.flag.word.CompareAndSwap(cur, cur&^tasLocked) {
			return true
		}
	}
}

// handoff grants the still-held flag to the oldest parked ticket. Parked
// counts only grow while the owner is inside Unlock, so the table holds at
// least one handle here.
//
// config stays held across the wakeup: once granted, the waiter may run,
// release and let Close retire its condition variable, which must not
// happen before Signal returns. Signal and Broadcast never block.
func (l *FSLock) handoff() {
	l.config.Lock()
	defer l.config.Unlock()
	h := l.table[l.serve&l.mask].pop()
	if h == nil || h.ticket != l.serve {
		panic(fmt.Sprintf("sxlock: FSLock %s wait table lost ticket %d", l.name, l.serve))
	}
	l.serve++
	l.flag.word.Add(^uint64(fsBlockerUnit - 1))

	h.granted.Store(true)
	if h.shared {
		l.blockCond.Broadcast()
	} else {
		h.cond.Signal()
	}
}

// Close releases the lock's condition variables. It fails with ErrLockBusy
// while threads are parked.
func (l *FSLock) Close() error {
	l.config.Lock()
	defer l.config.Unlock()
	if n := l.Blockers(); n > 0 {
		return fmt.Errorf("%w: %q has %d", ErrLockBusy, l.name, n)
	}
	for h := l.free; h != nil; h = h.next {
		if err := h.cond.Close(); err != nil {
			return err
		}
	}
	l.free = nil
	l.spare = nil
	l.pooled = 0
	if l.blockCond == nil {
		return nil
	}
	return l.blockCond.Close()
}

// Contenders returns the number of threads in the spin phase.
func (l *FSLock) Contenders() int {
	return int(l.contenders.Load())
}

// Blockers returns the number of threads parked in the wait table.
func (l *FSLock) Blockers() int {
	return int(l.flag.word.Load() >> 1)
}

// Locked reports whether the lock is held.
func (l *FSLock) Locked() bool {
	return l.flag.Locked()
}

// LastAcquire returns the Epoch time of the most recent acquisition.
func (l *FSLock) LastAcquire() int64 {
	return l.acquired.V.Load()
}

// LastRelease returns the Epoch time of the most recent release.
func (l *FSLock) LastRelease() int64 {
	return l.released.V.Load()
}

// FSLockStats is a point-in-time view of an FSLock's counters.
type FSLockStats struct {
	Name         string
	Contenders   int
	Blockers     int
	FastAcquires uint64
	SpinAcquires uint64
	Parks        uint64
	LastAcquire  int64
	LastRelease  int64
}

// Stats returns the lock's counters. Fields are read independently and
// may be mutually inconsistent under load.
func (l *FSLock) Stats() FSLockStats {
	return FSLockStats{
		Name:         l.name,
		Contenders:   l.Contenders(),
		Blockers:     l.Blockers(),
		FastAcquires: l.fastAcquires.Load(),
		SpinAcquires: l.spinAcquires.Load(),
		Parks:        l.parks.Load(),
		LastAcquire:  l.LastAcquire(),
		LastRelease:  l.LastRelease(),
	}
}

// Diagnostics implements Diagnoser.
func (l *FSLock) Diagnostics() Diagnostics {
	return Diagnostics{
		Kind:        KindFSLock,
		Name:        l.name,
		Contenders:  l.Contenders(),
		Blockers:    l.Blockers(),
		LastAcquire: l.LastAcquire(),
		LastRelease: l.LastRelease(),
	}
}
