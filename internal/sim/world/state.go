package world

import (
	"sort"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/protocol"
)

func (w *Engine) handleQuery(req queryReq) {
	reg := w.regions[req.Region]
	if reg == nil {
		req.Resp <- queryResp{Err: regionNotFound(req.Region)}
		return
	}
	req.Resp <- queryResp{State: w.buildState(reg)}
}

// buildState renders a deterministic region snapshot: members and objects in
// id order, state blobs copied so callers never alias live engine state.
func (w *Engine) buildState(reg *Region) protocol.StateMsg {
	st := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Region:          reg.def.Name,
		Tick:            w.tick.Load(),
		Clock:           clockFor(w.tick.Load(), w.cfg.DayTicks),
		Weather:         reg.weather,
		Agents:          []protocol.AgentState{},
		Objects:         []protocol.ObjectState{},
	}
	ids := make([]string, 0, len(reg.members))
	for id := range reg.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := w.agents[id]
		if a == nil {
			continue
		}
		st.Agents = append(st.Agents, protocol.AgentState{
			ID:     a.ID,
			Name:   a.Name,
			Pos:    a.Pos.Array(),
			Facing: a.Facing,
			Status: a.Status,
			Mood:   a.Mood,
		})
	}
	oids := make([]string, 0, len(reg.objects))
	for id := range reg.objects {
		oids = append(oids, id)
	}
	sort.Strings(oids)
	for _, id := range oids {
		o := reg.objects[id]
		state := make(map[string]any, len(o.State))
		for k, v := range o.State {
			state[k] = v
		}
		var items map[string]int
		if len(o.Items) > 0 {
			items = make(map[string]int, len(o.Items))
			for k, v := range o.Items {
				items[k] = v
			}
		}
		st.Objects = append(st.Objects, protocol.ObjectState{
			ID:    o.ID,
			Name:  o.Name,
			Kind:  o.Kind,
			Pos:   o.Pos.Array(),
			Verbs: append([]string(nil), o.Verbs...),
			State: state,
			Items: items,
			Owner: o.Owner,
		})
	}
	return st
}

// refreshStateCache rebuilds the lock-free read copy. Runs once per tick so
// trusted read taps never round-trip through the loop.
func (w *Engine) refreshStateCache() {
	cache := make(map[string]protocol.StateMsg, len(w.regions))
	for _, name := range w.regionNames() {
		cache[name] = w.buildState(w.regions[name])
	}
	w.stateCache.Store(cache)
}

// CachedState returns the region snapshot as of the last tick boundary.
// Callers needing the live view use QueryState instead.
func (w *Engine) CachedState(region string) (protocol.StateMsg, bool) {
	cache, _ := w.stateCache.Load().(map[string]protocol.StateMsg)
	st, ok := cache[region]
	return st, ok
}

// ExportSnapshot captures the whole world for the persistence tap.
func (w *Engine) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, Tick: tick},
	}
	for _, name := range w.regionNames() {
		st := w.buildState(w.regions[name])
		rv := snapshot.RegionV1{
			Name:    name,
			Weather: st.Weather,
		}
		for _, a := range st.Agents {
			av := snapshot.AgentV1{
				ID:     a.ID,
				Name:   a.Name,
				Pos:    a.Pos,
				Status: a.Status,
			}
			if live := w.agents[a.ID]; live != nil && len(live.Inventory) > 0 {
				av.Items = make(map[string]int, len(live.Inventory))
				for k, v := range live.Inventory {
					av.Items[k] = v
				}
			}
			rv.Agents = append(rv.Agents, av)
		}
		for _, o := range st.Objects {
			rv.Objects = append(rv.Objects, snapshot.ObjectV1{
				ID:    o.ID,
				Kind:  o.Kind,
				Pos:   o.Pos,
				State: o.State,
				Items: o.Items,
				Owner: o.Owner,
			})
		}
		snap.Regions = append(snap.Regions, rv)
	}
	return snap
}
