//go:build !linux

package platform

import "os"

// ThreadID returns the process id where no per-thread id is available.
func ThreadID() int {
	return os.Getpid()
}
