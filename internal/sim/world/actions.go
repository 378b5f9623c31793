package world

import (
	"fmt"
	"strings"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/spatial"
)

// actionHandler applies one admitted action. An empty code means success.
type actionHandler func(w *Engine, a *Agent, p protocol.ActionParams, nowTick uint64) (code, msg string)

var actionDispatch = map[string]actionHandler{
	protocol.ActionMoveTo:    (*Engine).handleMoveTo,
	protocol.ActionTeleport:  (*Engine).handleTeleport,
	protocol.ActionSay:       (*Engine).handleSay,
	protocol.ActionEmote:     (*Engine).handleEmote,
	protocol.ActionUseObject: (*Engine).handleUseObject,
	protocol.ActionFollow:    (*Engine).handleFollow,
	protocol.ActionStop:      (*Engine).handleStop,
	protocol.ActionGiveItem:  (*Engine).handleGiveItem,
	protocol.ActionTakeItem:  (*Engine).handleTakeItem,
	protocol.ActionSetStatus: (*Engine).handleSetStatus,
	protocol.ActionSetMood:   (*Engine).handleSetMood,
}

// applyAction is the executor entry point. Admission first, then the
// handler; a panic inside a handler is confined to this one submission.
func (w *Engine) applyAction(req actionReq) {
	nowTick := w.tick.Load()
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             req.Act.ID,
		Tick:            nowTick,
	}
	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Code = protocol.ErrInternal
			res.Message = "internal fault"
		}
		req.Resp <- res
	}()

	a := w.agents[req.AgentID]
	if a == nil {
		res.Code = protocol.ErrNotConnected
		res.Message = "not connected"
		return
	}
	if code, msg := w.admit(a, req.Act.Action, nowTick); code != "" {
		res.Code = code
		res.Message = msg
		return
	}
	a.touch(nowTick)
	h := actionDispatch[req.Act.Action]
	code, msg := h(w, a, req.Act.Params, nowTick)
	if code != "" {
		res.Code = code
		res.Message = msg
		return
	}
	res.OK = true
}

func (w *Engine) handleMoveTo(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	reg := w.regionOf(a)
	if p.X == nil || p.Y == nil {
		return protocol.ErrValidation, "missing destination"
	}
	target := spatial.Vec3{X: *p.X, Y: *p.Y, Z: p.Z}
	if !inBounds(reg.def, target) {
		return protocol.ErrValidation, "destination outside region bounds"
	}
	if w.destinationBlocked(reg, target) {
		return protocol.ErrConflict, "destination blocked"
	}
	a.follow = nil
	a.move = &moveState{Target: target}
	a.Status = StatusMoving
	return "", ""
}

func (w *Engine) handleTeleport(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	dst := w.regions[p.Region]
	if dst == nil {
		return protocol.ErrNotFound, "unknown region"
	}
	if dst.def.Entry == regions.EntryPermit && !a.Permits[p.Region] {
		return protocol.ErrNoPermission, "region entry denied"
	}
	// Absent coordinates mean the destination spawn; explicit (0,0) is a
	// real position.
	target := spatial.Vec3{X: dst.def.Spawn[0], Y: dst.def.Spawn[1], Z: dst.def.Spawn[2]}
	if p.X != nil || p.Y != nil {
		if p.X == nil || p.Y == nil {
			return protocol.ErrValidation, "incomplete destination"
		}
		target = spatial.Vec3{X: *p.X, Y: *p.Y, Z: p.Z}
	}
	if !inBounds(dst.def, target) {
		return protocol.ErrValidation, "destination outside region bounds"
	}
	src := w.regionOf(a)
	if src == dst {
		a.Pos = target
		src.index.Upsert(a.ID, a.Pos)
		return "", ""
	}

	// Membership, index and subscription move in one critical section, so no
	// snapshot ever sees the agent in both regions or neither.
	delete(src.members, a.ID)
	delete(src.subs, a.ID)
	src.index.Remove(a.ID)
	w.publish(src, protocol.Event{
		Type:    protocol.EventDeparture,
		Source:  a.ID,
		Origin:  a.Pos.Array(),
		Radius:  protocol.RadiusRegionWide,
		Content: map[string]any{"name": a.Name, "reason": "teleport", "to": dst.def.Name},
	})

	a.Region = dst.def.Name
	a.Pos = target
	a.move = nil
	a.follow = nil
	a.Status = StatusIdle
	dst.members[a.ID] = struct{}{}
	dst.subs[a.ID] = a.sub
	dst.index.Upsert(a.ID, a.Pos)
	w.publish(dst, protocol.Event{
		Type:    protocol.EventArrival,
		Source:  a.ID,
		Origin:  a.Pos.Array(),
		Radius:  protocol.RadiusRegionWide,
		Content: map[string]any{"name": a.Name, "from": src.def.Name},
	})
	return "", ""
}

func (w *Engine) handleSay(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	text := p.Text
	if text == "" {
		return protocol.ErrValidation, "empty message"
	}
	if len(text) > w.cfg.MaxMessageLen {
		return protocol.ErrValidation, fmt.Sprintf("message exceeds %d bytes", w.cfg.MaxMessageLen)
	}
	tier := p.Tier
	if tier == "" {
		tier = protocol.TierNormal
	}
	var radius float64
	switch tier {
	case protocol.TierWhisper:
		radius = w.cfg.WhisperRadius
	case protocol.TierNormal:
		radius = w.cfg.NormalRadius
	case protocol.TierShout:
		radius = protocol.RadiusRegionWide
	default:
		return protocol.ErrValidation, "unknown tier"
	}
	w.publish(w.regionOf(a), protocol.Event{
		Type:    protocol.EventSpeech,
		Source:  a.ID,
		Target:  p.TargetID,
		Origin:  a.Pos.Array(),
		Radius:  radius,
		Content: map[string]any{"text": text, "tier": tier},
	})
	return "", ""
}

func (w *Engine) handleEmote(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	gesture := strings.ToUpper(p.Gesture)
	if !w.gestures[gesture] {
		return protocol.ErrValidation, "unknown gesture"
	}
	w.publish(w.regionOf(a), protocol.Event{
		Type:    protocol.EventEmote,
		Source:  a.ID,
		Target:  p.TargetID,
		Origin:  a.Pos.Array(),
		Radius:  w.cfg.NormalRadius,
		Content: map[string]any{"gesture": gesture},
	})
	return "", ""
}

func (w *Engine) handleUseObject(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	reg := w.regionOf(a)
	o := reg.objects[p.ObjectID]
	if o == nil {
		return protocol.ErrNotFound, "unknown object"
	}
	verb := strings.ToUpper(p.Verb)
	if !o.supports(verb) {
		return protocol.ErrValidation, "verb not supported by object"
	}
	if code, msg := w.applyVerb(a, o, verb); code != "" {
		return code, msg
	}
	w.publish(reg, protocol.Event{
		Type:    protocol.EventObjectUse,
		Source:  a.ID,
		Target:  o.ID,
		Origin:  o.Pos.Array(),
		Radius:  w.cfg.NormalRadius,
		Content: map[string]any{"verb": verb, "object": o.Kind},
	})
	return "", ""
}

func (w *Engine) handleGiveItem(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	if p.Item == "" || p.TargetID == "" || p.TargetID == a.ID {
		return protocol.ErrValidation, "invalid item transfer"
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}
	target := w.agents[p.TargetID]
	if target == nil || target.Region != a.Region {
		return protocol.ErrNotFound, "target not present in region"
	}
	if a.Pos.DistanceTo(target.Pos) > w.cfg.NormalRadius {
		return protocol.ErrConflict, "target out of reach"
	}
	if a.Inventory[p.Item] < qty {
		return protocol.ErrConflict, "not enough of item"
	}
	a.Inventory[p.Item] -= qty
	if a.Inventory[p.Item] == 0 {
		delete(a.Inventory, p.Item)
	}
	target.Inventory[p.Item] += qty
	w.publish(w.regionOf(a), protocol.Event{
		Type:    protocol.EventItem,
		Source:  a.ID,
		Target:  target.ID,
		Origin:  a.Pos.Array(),
		Radius:  w.cfg.NormalRadius,
		Content: map[string]any{"item": p.Item, "quantity": qty},
	})
	return "", ""
}

func (w *Engine) handleTakeItem(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	if p.Item == "" || p.ObjectID == "" {
		return protocol.ErrValidation, "invalid item transfer"
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}
	reg := w.regionOf(a)
	o := reg.objects[p.ObjectID]
	if o == nil {
		return protocol.ErrNotFound, "unknown object"
	}
	if o.Items[p.Item] == 0 {
		return protocol.ErrNotFound, "item not held by object"
	}
	if o.Items[p.Item] < qty {
		return protocol.ErrConflict, "not enough of item"
	}
	o.Items[p.Item] -= qty
	if o.Items[p.Item] == 0 {
		delete(o.Items, p.Item)
	}
	a.Inventory[p.Item] += qty
	w.publish(reg, protocol.Event{
		Type:    protocol.EventItem,
		Source:  a.ID,
		Target:  o.ID,
		Origin:  o.Pos.Array(),
		Radius:  w.cfg.NormalRadius,
		Content: map[string]any{"item": p.Item, "quantity": qty, "from_object": o.Kind},
	})
	return "", ""
}

func (w *Engine) handleSetStatus(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	status := strings.ToUpper(p.Status)
	switch status {
	case StatusIdle, StatusBusy, StatusAway:
	default:
		return protocol.ErrValidation, "unknown status"
	}
	a.Status = status
	w.publish(w.regionOf(a), protocol.Event{
		Type:    protocol.EventStatus,
		Source:  a.ID,
		Origin:  a.Pos.Array(),
		Radius:  w.cfg.NormalRadius,
		Content: map[string]any{"status": status},
	})
	return "", ""
}

func (w *Engine) handleSetMood(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	if p.Mood == "" || len(p.Mood) > 64 {
		return protocol.ErrValidation, "invalid mood"
	}
	a.Mood = p.Mood
	w.publish(w.regionOf(a), protocol.Event{
		Type:    protocol.EventStatus,
		Source:  a.ID,
		Origin:  a.Pos.Array(),
		Radius:  w.cfg.NormalRadius,
		Content: map[string]any{"mood": a.Mood},
	})
	return "", ""
}

func (w *Engine) handleFollow(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	if p.TargetID == "" || p.TargetID == a.ID {
		return protocol.ErrValidation, "invalid follow target"
	}
	target := w.agents[p.TargetID]
	if target == nil || target.Region != a.Region {
		return protocol.ErrNotFound, "target not present in region"
	}
	dist := p.Distance
	if dist <= 0 {
		dist = w.cfg.WhisperRadius
	}
	a.move = nil
	a.follow = &followState{TargetID: p.TargetID, Distance: dist}
	a.Status = StatusMoving
	return "", ""
}

func (w *Engine) handleStop(a *Agent, p protocol.ActionParams, nowTick uint64) (string, string) {
	a.move = nil
	a.follow = nil
	if a.Status == StatusMoving {
		a.Status = StatusIdle
	}
	return "", ""
}

func inBounds(def regions.Region, pos spatial.Vec3) bool {
	return pos.X >= 0 && pos.X <= def.Width && pos.Y >= 0 && pos.Y <= def.Height
}

// destinationBlocked reports whether a solid object sits on the target spot.
func (w *Engine) destinationBlocked(reg *Region, target spatial.Vec3) bool {
	for _, m := range reg.index.QueryRadius(target, 0.5) {
		if o := reg.objects[m.ID]; o != nil && o.Solid() {
			return true
		}
	}
	return false
}
