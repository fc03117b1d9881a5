//go:build linux

package platform

import "golang.org/x/sys/unix"

// ThreadID returns the kernel id of the OS thread running the caller. The
// goroutine may migrate afterwards; the value identifies where an event
// happened, not an owner.
func ThreadID() int {
	return unix.Gettid()
}
