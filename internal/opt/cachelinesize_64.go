//go:build sxlock_cachelinesize_64

package opt

// CacheLineSize_ forced to 64 bytes.
// Use: go build -tags=sxlock_cachelinesize_64
const CacheLineSize_ = 64
