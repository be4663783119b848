package world

import "fmt"

// invariant aborts on a partition-invariant violation. Continuing would
// corrupt state shared by every observer of the partition.
func invariant(format string, args ...any) {
	panic(fmt.Sprintf("world: invariant violated: "+format, args...))
}
