package sxlock

import (
	"fmt"
	"sort"

	"github.com/llxisdsh/pb"
)

// Kind names a primitive in Diagnostics.
type Kind string

const (
	KindCondVar  Kind = "condvar"
	KindRWLock   Kind = "rwlock"
	KindFairLock Kind = "fairlock"
	KindFSLock   Kind = "fslock"
)

// Diagnostics is a point-in-time view of one primitive, for contention
// tooling. Fields that do not apply to a kind are zero.
type Diagnostics struct {
	Kind Kind
	Name string
	// Queued is the number of tickets handed out and not yet released
	// (RWLock, FairLock).
	Queued int
	// Waiters is the number of threads blocked on a CondVar, -1 when a
	// signal is latched.
	Waiters int
	// Contenders and Blockers are the FSLock spin-phase and parked counts.
	Contenders int
	Blockers   int
	// LastAcquire and LastRelease are FSLock Epoch timestamps.
	LastAcquire int64
	LastRelease int64
}

// Diagnoser is implemented by every primitive in this package.
type Diagnoser interface {
	Diagnostics() Diagnostics
}

// Registry is a table of named primitives, so that diagnostics tooling can
// enumerate the locks of a running engine. It is safe for concurrent use
// and its zero value is empty and ready.
type Registry struct {
	_ noCopy
	m pb.MapOf[string, Diagnoser]
}

// Register adds d under name. It fails with ErrDuplicateName if the name is
// taken.
func (r *Registry) Register(name string, d Diagnoser) error {
	if _, loaded := r.m.LoadOrStore(name, d); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

// Unregister removes name. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.m.Delete(name)
}

// Lookup returns the primitive registered under name.
func (r *Registry) Lookup(name string) (Diagnoser, bool) {
	return r.m.Load(name)
}

// Len returns the number of registered primitives.
func (r *Registry) Len() int {
	return r.m.Size()
}

// Snapshot collects Diagnostics from every registered primitive, sorted by
// name. Name is set to the registered name when the primitive is unnamed.
func (r *Registry) Snapshot() []Diagnostics {
	var out []Diagnostics
	r.m.Range(func(name string, d Diagnoser) bool {
		diag := d.Diagnostics()
		if diag.Name == "" {
			diag.Name = name
		}
		out = append(out, diag)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
