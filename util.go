package sxlock

import (
	_ "unsafe" // for linkname

	"github.com/storagesync/sxlock/internal/platform"
)

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

const (
	// pauseYields is the number of pause steps, spins included, after which
	// a busy-wait stops yielding and starts sleeping.
	pauseYields = 64

	// pauseSleepUsecs is the backoff sleep of a long busy-wait.
	pauseSleepUsecs = 50
)

// pause is one step of a busy-wait. It spins on the processor while the
// runtime allows active spinning (multicore, idle Ps, few spins so far),
// then yields, and once the wait has lasted pauseYields steps it backs off
// with a short sleep so an oversubscribed machine can run the holder.
func pause(spins *int) {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return
	}
	if *spins < pauseYields {
		*spins++
		platform.Yield()
		return
	}
	platform.Sleep(pauseSleepUsecs)
}

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()
