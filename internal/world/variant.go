package world

import (
	"time"

	"go.uber.org/zap"
)

// Variant specialises a partition's lifecycle. The set is closed: open
// world, instance and match.
type Variant interface {
	Kind() PartitionKind
	// HousekeepingEnabled reports whether idle grids may be unloaded.
	HousekeepingEnabled() bool
	// Done reports that the partition has finished and can be closed.
	Done() bool

	attach(p *Partition)
	observerJoined(o *Observer)
	observerLeft(o *Observer)
	onEvent(id int32)
	tick(dt time.Duration)
}

// OpenWorld is the long-lived partition shared by everyone on a map.
type OpenWorld struct{}

func NewOpenWorld() *OpenWorld { return &OpenWorld{} }

func (*OpenWorld) Kind() PartitionKind       { return KindOpenWorld }
func (*OpenWorld) HousekeepingEnabled() bool { return true }
func (*OpenWorld) Done() bool                { return false }
func (*OpenWorld) attach(*Partition)         {}
func (*OpenWorld) observerJoined(*Observer)  {}
func (*OpenWorld) observerLeft(*Observer)    {}
func (*OpenWorld) onEvent(int32)             {}
func (*OpenWorld) tick(time.Duration)        {}

// InstanceConfig are the instance lifecycle timers.
type InstanceConfig struct {
	IdleTimeout   time.Duration // empty instance lifetime
	ResetInterval time.Duration // 0 disables periodic resets
}

// Instance is a private copy of a map bound to a group. Once empty it
// expires after IdleTimeout. A reset requested while players are inside is
// deferred until the last one leaves.
type Instance struct {
	cfg InstanceConfig
	p   *Partition

	idle         bool
	idleLeft     time.Duration
	resetLeft    time.Duration
	resetPending bool
	resets       int
}

func NewInstance(cfg InstanceConfig) *Instance {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Instance{cfg: cfg}
}

func (in *Instance) Kind() PartitionKind       { return KindInstance }
func (in *Instance) HousekeepingEnabled() bool { return true }
func (in *Instance) Done() bool                { return in.idle && in.idleLeft <= 0 }
func (in *Instance) ResetPending() bool        { return in.resetPending }
func (in *Instance) Resets() int               { return in.resets }
func (in *Instance) Idle() bool                { return in.idle }

func (in *Instance) attach(p *Partition) {
	in.p = p
	in.idle = true
	in.idleLeft = in.cfg.IdleTimeout
	in.resetLeft = in.cfg.ResetInterval
}

func (in *Instance) observerJoined(*Observer) {
	in.idle = false
}

func (in *Instance) observerLeft(*Observer) {
	if in.p.roster.Len() > 0 {
		return
	}
	in.idle = true
	in.idleLeft = in.cfg.IdleTimeout
}

func (in *Instance) onEvent(int32) {}

func (in *Instance) tick(dt time.Duration) {
	// Deferred resets run here rather than from observerLeft, which is
	// called while the removal list is being flushed.
	if in.resetPending && in.p.roster.Len() == 0 {
		in.reset()
	}
	if in.cfg.ResetInterval > 0 {
		in.resetLeft -= dt
		if in.resetLeft <= 0 {
			in.resetLeft = in.cfg.ResetInterval
			in.RequestReset()
		}
	}
	if in.idle && in.idleLeft > 0 {
		in.idleLeft -= dt
	}
}

// RequestReset resets the instance now if it is empty, otherwise on the
// first tick after the last observer has left.
func (in *Instance) RequestReset() {
	if in.p.roster.Len() > 0 {
		if !in.resetPending {
			in.p.log.Info("副本仍有玩家，延後重置", zap.Int("observers", in.p.roster.Len()))
		}
		in.resetPending = true
		return
	}
	in.reset()
}

// reset drops every grid; spawns are reloaded from the store on next entry.
func (in *Instance) reset() {
	in.resetPending = false
	for c := range in.p.grids {
		in.p.Unload(c, true)
	}
	in.resets++
	in.p.log.Info("副本已重置", zap.Int("resets", in.resets))
}

// MatchPhase is the phase of a match partition.
type MatchPhase uint8

const (
	MatchWaiting MatchPhase = iota
	MatchLive
	MatchEnded
)

func (ph MatchPhase) String() string {
	switch ph {
	case MatchWaiting:
		return "waiting"
	case MatchLive:
		return "live"
	case MatchEnded:
		return "ended"
	}
	return "unknown"
}

// matchScoreEvent is the base of the per-team score event ids.
const matchScoreEvent int32 = 1000

// ScoreEvent returns the partition event id that gives one point to team.
func ScoreEvent(team uint32) int32 { return matchScoreEvent + int32(team) }

// MatchConfig are the match rules.
type MatchConfig struct {
	Warmup     time.Duration
	Duration   time.Duration
	ScoreLimit int // 0: play until the duration elapses
}

// Match is a battleground partition. Its lifetime follows the match phase;
// grids are never expired while the match is live, and at the end every
// observer is sent home and every grid is force-unloaded.
type Match struct {
	cfg MatchConfig
	p   *Partition

	phase     MatchPhase
	remaining time.Duration
	scores    map[uint32]int
	winner    uint32
}

func NewMatch(cfg MatchConfig) *Match {
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Minute
	}
	return &Match{cfg: cfg, scores: make(map[uint32]int)}
}

func (m *Match) Kind() PartitionKind       { return KindMatch }
func (m *Match) HousekeepingEnabled() bool { return m.phase != MatchLive }
func (m *Match) Done() bool                { return m.phase == MatchEnded }
func (m *Match) Phase() MatchPhase         { return m.phase }
func (m *Match) Winner() uint32            { return m.winner }
func (m *Match) Remaining() time.Duration  { return m.remaining }
func (m *Match) Score(team uint32) int     { return m.scores[team] }

func (m *Match) attach(p *Partition) {
	m.p = p
	if m.cfg.Warmup <= 0 {
		m.start()
		return
	}
	p.sched.After(m.cfg.Warmup, m.start)
}

func (m *Match) start() {
	if m.phase != MatchWaiting {
		return
	}
	m.phase = MatchLive
	m.remaining = m.cfg.Duration
	m.p.log.Info("戰場開始", zap.Duration("duration", m.cfg.Duration))
}

func (m *Match) observerJoined(*Observer) {}
func (m *Match) observerLeft(*Observer)   {}

func (m *Match) onEvent(id int32) {
	if m.phase != MatchLive || id <= matchScoreEvent {
		return
	}
	team := uint32(id - matchScoreEvent)
	m.scores[team]++
	if m.cfg.ScoreLimit > 0 && m.scores[team] >= m.cfg.ScoreLimit {
		m.end(team)
	}
}

func (m *Match) tick(dt time.Duration) {
	if m.phase != MatchLive {
		return
	}
	m.remaining -= dt
	if m.remaining <= 0 {
		m.end(m.leader())
	}
}

// leader returns the team with the highest score, 0 on a tie.
func (m *Match) leader() uint32 {
	var best uint32
	top, tied := -1, false
	for team, s := range m.scores {
		switch {
		case s > top:
			best, top, tied = team, s, false
		case s == top:
			tied = true
		}
	}
	if tied {
		return 0
	}
	return best
}

// end finishes the match: observers are transferred home and all grids are
// force-unloaded.
func (m *Match) end(winner uint32) {
	if m.phase == MatchEnded {
		return
	}
	m.phase = MatchEnded
	m.winner = winner
	m.p.log.Info("戰場結束", zap.Uint32("winner", winner), zap.Any("scores", m.scores))
	m.p.EachObserver(func(o *Observer) {
		if o.Body.Removed() {
			return
		}
		if err := m.p.Transfer(o.Body, o.Home, o.HomePos); err != nil {
			m.p.log.Warn("戰場結束時無法送回玩家", zap.Stringer("guid", o.Body.GUID), zap.Error(err))
			m.p.Remove(o.Body)
		}
	})
	for c := range m.p.grids {
		m.p.Unload(c, true)
	}
}
