package net

import (
	"context"
	"testing"
)

// testContext stands in for testing.T.Context, which the Go 1.21 toolchain
// lacks: the context is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
