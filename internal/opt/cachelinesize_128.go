//go:build sxlock_cachelinesize_128

package opt

// CacheLineSize_ forced to 128 bytes (Apple M-series, some POWER parts).
// Use: go build -tags=sxlock_cachelinesize_128
const CacheLineSize_ = 128
