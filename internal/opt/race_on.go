//go:build race

package opt

// Race_ reports whether the binary was built with the race detector.
// Stress tests use it to shrink their iteration counts.
const Race_ = true
