package world

import (
	"strings"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/spatial"

	"github.com/google/uuid"
)

// Object is a world object: owned by exactly one region, indexed in that
// region's grid, mutated only through USE_OBJECT verbs.
type Object struct {
	ID    string
	Name  string
	Kind  string
	Pos   spatial.Vec3
	Verbs []string
	State map[string]any
	Items map[string]int
	Owner string

	// Tick at which a transient activation wears off; 0 means none pending.
	decayAt uint64
}

func newObject(def regions.Object) *Object {
	id := def.ID
	if id == "" {
		id = "O-" + uuid.NewString()
	}
	o := &Object{
		ID:    id,
		Name:  def.Name,
		Kind:  strings.ToUpper(def.Kind),
		Pos:   spatial.Vec3{X: def.Pos[0], Y: def.Pos[1], Z: def.Pos[2]},
		Verbs: make([]string, 0, len(def.Verbs)),
		State: map[string]any{},
		Items: map[string]int{},
		Owner: def.Owner,
	}
	for _, v := range def.Verbs {
		o.Verbs = append(o.Verbs, strings.ToUpper(v))
	}
	for k, v := range def.State {
		o.State[k] = v
	}
	for item, n := range def.Items {
		o.Items[item] = n
	}
	return o
}

func (o *Object) supports(verb string) bool {
	for _, v := range o.Verbs {
		if v == verb {
			return true
		}
	}
	return false
}

// Solid objects block movement destinations.
func (o *Object) Solid() bool {
	solid, _ := o.State["solid"].(bool)
	return solid
}

// applyVerb mutates the object state blob per verb semantics.
func (w *Engine) applyVerb(a *Agent, o *Object, verb string) (code, msg string) {
	switch verb {
	case "SIT":
		if occ, _ := o.State["occupied_by"].(string); occ != "" && occ != a.ID {
			return protocol.ErrConflict, "object occupied"
		}
		o.State["occupied_by"] = a.ID
		a.Status = StatusBusy
	case "STAND":
		if occ, _ := o.State["occupied_by"].(string); occ == a.ID {
			delete(o.State, "occupied_by")
			a.Status = StatusIdle
		}
	case "ACTIVATE", "TOGGLE":
		active, _ := o.State["active"].(bool)
		o.State["active"] = !active
		o.decayAt = 0
		if !active && w.cfg.ObjectDecayTicks > 0 {
			o.decayAt = w.tick.Load() + uint64(w.cfg.ObjectDecayTicks)
		}
	default:
		// Generic verbs just record usage.
	}
	count, _ := o.State["use_count"].(int)
	o.State["use_count"] = count + 1
	o.State["last_used_by"] = a.ID
	return "", ""
}

// systemDecay wears off transient activations once their tick arrives.
func (w *Engine) systemDecay(nowTick uint64) {
	for _, name := range w.regionNames() {
		reg := w.regions[name]
		for _, o := range reg.objects {
			if o.decayAt != 0 && nowTick >= o.decayAt {
				o.State["active"] = false
				o.decayAt = 0
			}
		}
	}
}
