package system

import "time"

// Phase defines execution ordering within a single partition tick.
// The order is fixed; systems sharing a phase run in registration order.
type Phase int

const (
	PhaseMailbox      Phase = iota // 0: drain cross-thread mailbox
	PhaseSessionIO                 // 1: pump observer session input
	PhaseObserverTick              // 2: observers' own simulation
	PhaseVisitReset                // 3: clear visited-cell markers
	PhaseVisit                     // 4: cell visitation, entity update, visibility
	PhaseFlush                     // 5: removal list + replication flush
	PhaseHousekeeping              // 6: grid expiry / unload
	PhaseScheduled                 // 7: deferred actions whose time has come
	PhaseVariant                   // 8: instance / match specific hook
)

func (p Phase) String() string {
	switch p {
	case PhaseMailbox:
		return "mailbox"
	case PhaseSessionIO:
		return "session_io"
	case PhaseObserverTick:
		return "observer_tick"
	case PhaseVisitReset:
		return "visit_reset"
	case PhaseVisit:
		return "visit"
	case PhaseFlush:
		return "flush"
	case PhaseHousekeeping:
		return "housekeeping"
	case PhaseScheduled:
		return "scheduled"
	case PhaseVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Func adapts a plain function to System.
type Func struct {
	P  Phase
	Fn func(dt time.Duration)
}

func (f Func) Phase() Phase            { return f.P }
func (f Func) Update(dt time.Duration) { f.Fn(dt) }
