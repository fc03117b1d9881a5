package opt

import (
	"sync/atomic"
	"unsafe"
)

// Stamp_ is a 64-bit timestamp slot that owns a whole cache line, so the
// acquire and release stamps of a hot lock never share a line with each
// other or with the lock word.
type Stamp_ struct {
	V atomic.Int64
	_ [(CacheLineSize_ - unsafe.Sizeof(struct {
		V atomic.Int64
	}{})%CacheLineSize_) % CacheLineSize_]byte
}
