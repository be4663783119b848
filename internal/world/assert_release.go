//go:build !debug

package world

// debugAssert is a no-op outside debug builds; the caller treats the
// condition as an idempotent no-op.
func debugAssert(string, ...any) {}
