package sxlock

import "errors"

var (
	// ErrCondVarBusy is returned by CondVar.Close while goroutines are
	// still blocked on the condition variable.
	ErrCondVarBusy = errors.New("sxlock: condition variable has waiters")

	// ErrLockBusy is returned by FSLock.Close while threads are parked on
	// the lock.
	ErrLockBusy = errors.New("sxlock: lock has parked waiters")

	// ErrTicketBits is returned when an RWLock is configured with a ticket
	// width outside [MinTicketBits, MaxTicketBits].
	ErrTicketBits = errors.New("sxlock: ticket width out of range")

	// ErrDuplicateName is returned by Registry.Register when the name is
	// already taken.
	ErrDuplicateName = errors.New("sxlock: lock name already registered")
)
