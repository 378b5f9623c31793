package world

import (
	"agentworld.ai/internal/sim/spatial"
)

// Agent status values. The connection lifecycle is
// disconnected -> connected/IDLE <-> MOVING <-> BUSY -> disconnected,
// with AWAY as the pre-timeout idle stage.
const (
	StatusIdle   = "IDLE"
	StatusMoving = "MOVING"
	StatusBusy   = "BUSY"
	StatusAway   = "AWAY"
)

// Agent is the engine's authoritative presence record for one connected
// agent. It exists in exactly one region's membership set. Owned by the
// engine loop; everything outside holds only the agent id.
type Agent struct {
	ID        string
	Name      string
	SessionID string

	Region string
	Pos    spatial.Vec3
	Facing float64
	Status string
	Mood   string

	// Items carried, by item name. Transferred via GIVE_ITEM/TAKE_ITEM;
	// discarded with the presence record on disconnect.
	Inventory map[string]int

	// Regions this agent may enter when entry is PERMIT-gated. Supplied by
	// the external identity service at connect; the engine does not re-derive
	// it.
	Permits map[string]bool

	LastActive uint64 // tick of the last admitted action or heartbeat

	move   *moveState
	follow *followState

	sub *subscriber

	// Rate-limit windows per action class.
	rl map[string]*rateWindow
}

type moveState struct {
	Target spatial.Vec3
	// Follow movement emits a MOVEMENT event per step; plain MOVE_TO only on
	// arrival.
	EmitSteps bool
}

type followState struct {
	TargetID string
	Distance float64
}

type rateWindow struct {
	StartTick uint64
	Count     int
}

func (a *Agent) touch(nowTick uint64) {
	a.LastActive = nowTick
	if a.Status == StatusAway {
		a.Status = StatusIdle
	}
}

// rateLimitAllow counts one request against the fixed window for class.
// Returns the remaining ticks until the window resets when rejected.
func (a *Agent) rateLimitAllow(class string, nowTick, window uint64, max int) (ok bool, retryTicks uint64) {
	if window == 0 || max <= 0 {
		return true, 0
	}
	win, found := a.rl[class]
	if !found {
		win = &rateWindow{StartTick: nowTick}
		a.rl[class] = win
	}
	if nowTick-win.StartTick >= window {
		win.StartTick = nowTick
		win.Count = 0
	}
	if win.Count >= max {
		return false, (win.StartTick + window) - nowTick
	}
	win.Count++
	return true, 0
}
