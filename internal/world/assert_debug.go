//go:build debug

package world

// debugAssert panics in debug builds.
func debugAssert(format string, args ...any) {
	invariant(format, args...)
}
