package world

import (
	"fmt"
	"sort"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/spatial"
)

// Rate-limit action classes.
const (
	classGeneral    = "general"
	classSpeech     = "speech"
	classPerception = "perception"
)

var actionClass = map[string]string{
	protocol.ActionMoveTo:    classGeneral,
	protocol.ActionTeleport:  classGeneral,
	protocol.ActionSay:       classSpeech,
	protocol.ActionEmote:     classGeneral,
	protocol.ActionUseObject: classGeneral,
	protocol.ActionFollow:    classGeneral,
	protocol.ActionStop:      classGeneral,
	protocol.ActionGiveItem:  classGeneral,
	protocol.ActionTakeItem:  classGeneral,
	protocol.ActionSetStatus: classGeneral,
	protocol.ActionSetMood:   classGeneral,
}

func (w *Engine) classWindow(class string) (window uint64, max int) {
	rl := w.cfg.RateLimits
	switch class {
	case classSpeech:
		return uint64(rl.SpeechWindowTicks), rl.SpeechMax
	case classPerception:
		return uint64(rl.PerceptionWindowTicks), rl.PerceptionMax
	default:
		return uint64(rl.GeneralWindowTicks), rl.GeneralMax
	}
}

// admit is the governor gate: every action passes through here before the
// executor. Rejections are cheap and never mutate world state.
func (w *Engine) admit(a *Agent, action string, nowTick uint64) (code, msg string) {
	class, known := actionClass[action]
	if !known {
		return protocol.ErrUnknownAction, "unknown action"
	}
	window, max := w.classWindow(class)
	if ok, retry := a.rateLimitAllow(class, nowTick, window, max); !ok {
		return protocol.ErrRateLimit, rateLimitMsg(retry)
	}
	return "", ""
}

func rateLimitMsg(retryTicks uint64) string {
	return fmt.Sprintf("rate limited; window resets in %d ticks", retryTicks)
}

func (w *Engine) handleJoin(req joinReq) {
	nowTick := w.tick.Load()
	r := req.Req
	if r.AgentID == "" {
		req.Resp <- joinResp{Code: protocol.ErrValidation, Msg: "empty agent id"}
		return
	}
	if _, connected := w.agents[r.AgentID]; connected {
		req.Resp <- joinResp{Code: protocol.ErrConflict, Msg: "agent already connected"}
		return
	}
	name := r.Region
	if name == "" {
		name = w.DefaultRegion()
	}
	reg := w.regions[name]
	if reg == nil {
		req.Resp <- joinResp{Code: protocol.ErrNotFound, Msg: "unknown region"}
		return
	}
	permits := map[string]bool{}
	for _, p := range r.Permits {
		permits[p] = true
	}
	if reg.def.Entry == regions.EntryPermit && !permits[name] {
		req.Resp <- joinResp{Code: protocol.ErrNoPermission, Msg: "region entry denied"}
		return
	}

	queue := r.Queue
	if queue <= 0 {
		queue = w.cfg.SubscriberQueue
	}
	a := &Agent{
		ID:         r.AgentID,
		Name:       r.Name,
		SessionID:  newSessionID(),
		Region:     name,
		Pos:        spatial.Vec3{X: reg.def.Spawn[0], Y: reg.def.Spawn[1], Z: reg.def.Spawn[2]},
		Status:     StatusIdle,
		Permits:    permits,
		LastActive: nowTick,
		Inventory:  map[string]int{},
		rl:         map[string]*rateWindow{},
	}
	a.sub = &subscriber{
		agentID: a.ID,
		ch:      make(chan protocol.Event, queue),
		dropped: &w.droppedEvents,
	}
	w.agents[a.ID] = a
	reg.members[a.ID] = struct{}{}
	reg.index.Upsert(a.ID, a.Pos)
	reg.subs[a.ID] = a.sub

	w.publish(reg, protocol.Event{
		Type:    protocol.EventArrival,
		Source:  a.ID,
		Origin:  a.Pos.Array(),
		Radius:  protocol.RadiusRegionWide,
		Content: map[string]any{"name": a.Name},
	})

	req.Resp <- joinResp{Conn: ConnectResponse{
		SessionID: a.SessionID,
		Region:    name,
		Spawn:     a.Pos.Array(),
		Tick:      nowTick,
		Events:    a.sub.ch,
	}}
}

func (w *Engine) handleLeave(req leaveReq) {
	a := w.agents[req.AgentID]
	if a == nil {
		return
	}
	w.removeAgent(a, req.Reason)
}

// removeAgent tears down the presence record: membership, spatial index and
// subscription go together, then a DEPARTURE is published region-wide.
func (w *Engine) removeAgent(a *Agent, reason string) {
	reg := w.regionOf(a)
	delete(w.agents, a.ID)
	if reg != nil {
		delete(reg.members, a.ID)
		delete(reg.subs, a.ID)
		reg.index.Remove(a.ID)
		w.publish(reg, protocol.Event{
			Type:    protocol.EventDeparture,
			Source:  a.ID,
			Origin:  a.Pos.Array(),
			Radius:  protocol.RadiusRegionWide,
			Content: map[string]any{"name": a.Name, "reason": reason},
		})
	}
	close(a.sub.ch)
}

func (w *Engine) handleHeartbeat(agentID string) {
	if a := w.agents[agentID]; a != nil {
		a.touch(w.tick.Load())
	}
}

// expireIdle is the only engine-initiated disconnect. It runs once per tick.
func (w *Engine) expireIdle(nowTick uint64) {
	var expired []string
	for id, a := range w.agents {
		idleFor := nowTick - a.LastActive
		if w.cfg.IdleTimeoutTicks > 0 && idleFor >= uint64(w.cfg.IdleTimeoutTicks) {
			expired = append(expired, id)
			continue
		}
		if w.cfg.AwayAfterTicks > 0 && idleFor >= uint64(w.cfg.AwayAfterTicks) && a.Status == StatusIdle {
			a.Status = StatusAway
		}
	}
	sort.Strings(expired)
	for _, id := range expired {
		w.removeAgent(w.agents[id], "idle timeout")
	}
}
