package world

import (
	"sync/atomic"
	"time"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/spatial"
)

// eventRing is a bounded per-region event history. Oldest entries are
// evicted first. Entries are stored in publish order, which is also total
// (tick, seq) order.
type eventRing struct {
	buf []protocol.Event
	cap int
	seq uint64
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &eventRing{cap: capacity}
}

func (r *eventRing) append(e protocol.Event) {
	if len(r.buf) >= r.cap {
		n := copy(r.buf, r.buf[1:])
		r.buf = r.buf[:n]
	}
	r.buf = append(r.buf, e)
}

// since returns events with Tick > sinceTick, oldest first.
func (r *eventRing) since(sinceTick uint64, limit int) []protocol.Event {
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}
	var out []protocol.Event
	for _, e := range r.buf {
		if e.Tick > sinceTick {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// subscriber is one agent's push delivery queue. The channel is bounded;
// overflow drops the oldest queued event and counts it, so a slow consumer
// never stalls the engine loop.
type subscriber struct {
	agentID string
	ch      chan protocol.Event
	dropped *atomic.Uint64
}

func (s *subscriber) offer(e protocol.Event) {
	select {
	case s.ch <- e:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// publish stamps, retains and fans out one event. Scope is resolved exactly
// once, against the spatial index as it stands right now: an agent that
// moves into range later can only see the event via replay.
func (w *Engine) publish(reg *Region, e protocol.Event) {
	reg.ring.seq++
	e.Tick = w.tick.Load()
	e.Seq = reg.ring.seq
	e.TS = time.Now().UTC()
	e.Region = reg.def.Name
	reg.ring.append(e)
	w.published = append(w.published, e)

	if e.RegionWide() {
		for id := range reg.members {
			if sub := reg.subs[id]; sub != nil {
				sub.offer(e)
			}
		}
		return
	}
	origin := spatial.Vec3{X: e.Origin[0], Y: e.Origin[1], Z: e.Origin[2]}
	for _, m := range reg.index.QueryRadius(origin, e.Radius) {
		if sub := reg.subs[m.ID]; sub != nil {
			sub.offer(e)
		}
	}
}

func (w *Engine) handleReplay(req replayReq) {
	reg := w.regions[req.Region]
	if reg == nil {
		req.Resp <- replayResp{Err: regionNotFound(req.Region)}
		return
	}
	if req.AgentID != "" {
		a := w.agents[req.AgentID]
		if a == nil {
			req.Resp <- replayResp{Code: protocol.ErrNotConnected}
			return
		}
		if ok, _ := a.rateLimitAllow(classPerception, w.tick.Load(),
			uint64(w.cfg.RateLimits.PerceptionWindowTicks), w.cfg.RateLimits.PerceptionMax); !ok {
			req.Resp <- replayResp{Code: protocol.ErrRateLimit}
			return
		}
		a.touch(w.tick.Load())
	}
	req.Resp <- replayResp{Events: reg.ring.since(req.SinceTick, req.Limit)}
}
