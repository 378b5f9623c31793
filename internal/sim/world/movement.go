package world

import (
	"math"
	"sort"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/spatial"
)

// systemMovement advances every ticked movement once per tick, so positions
// never change mid-tick. Agents are walked in id order for determinism.
func (w *Engine) systemMovement(nowTick uint64) {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := w.agents[id]
		if a == nil {
			continue
		}
		if a.follow != nil {
			w.tickFollow(a, nowTick)
		}
		if a.move != nil {
			w.tickMove(a, nowTick)
		}
	}
}

// tickFollow re-targets the follower at the target's live position. The
// behavior is cancelled when the target leaves the region or disconnects.
func (w *Engine) tickFollow(a *Agent, nowTick uint64) {
	target := w.agents[a.follow.TargetID]
	if target == nil || target.Region != a.Region {
		a.follow = nil
		a.move = nil
		a.Status = StatusIdle
		return
	}
	if a.Pos.DistanceTo(target.Pos) <= a.follow.Distance {
		a.move = nil
		return
	}
	a.move = &moveState{Target: target.Pos, EmitSteps: true}
}

func (w *Engine) tickMove(a *Agent, nowTick uint64) {
	reg := w.regionOf(a)
	from := a.Pos
	target := a.move.Target
	dist := from.DistanceTo(target)
	stop := 0.0
	if a.follow != nil {
		stop = a.follow.Distance
	}
	if dist <= stop {
		a.move = nil
		return
	}

	step := w.cfg.MoveSpeed
	arrived := false
	var next spatial.Vec3
	if dist-stop <= step {
		if stop == 0 {
			next = target
		} else {
			frac := (dist - stop) / dist
			next = spatial.Vec3{
				X: from.X + (target.X-from.X)*frac,
				Y: from.Y + (target.Y-from.Y)*frac,
				Z: from.Z + (target.Z-from.Z)*frac,
			}
		}
		arrived = true
	} else {
		frac := step / dist
		next = spatial.Vec3{
			X: from.X + (target.X-from.X)*frac,
			Y: from.Y + (target.Y-from.Y)*frac,
			Z: from.Z + (target.Z-from.Z)*frac,
		}
	}

	a.Facing = math.Atan2(next.Y-from.Y, next.X-from.X)
	a.Pos = next
	reg.index.Upsert(a.ID, a.Pos)

	emit := a.move.EmitSteps || arrived
	if arrived {
		a.move = nil
		if a.follow == nil {
			a.Status = StatusIdle
		}
	}
	if emit {
		w.publish(reg, protocol.Event{
			Type:   protocol.EventMovement,
			Source: a.ID,
			Origin: a.Pos.Array(),
			Radius: w.cfg.NormalRadius,
			Content: map[string]any{
				"from":    from.Array(),
				"to":      a.Pos.Array(),
				"arrived": arrived,
			},
		})
	}
}
