package world

import (
	"testing"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/spatial"
	"agentworld.ai/internal/sim/tuning"
)

// testWorldConfig is the fixture world: an open plaza with a few objects, an
// open market and a permit-gated atelier.
func testWorldConfig() regions.Config {
	return regions.Config{
		Regions: []regions.Region{
			{
				Name:   "plaza",
				Width:  256,
				Height: 256,
				Spawn:  [3]float64{128, 128, 0},
				Entry:  regions.EntryOpen,
				Objects: []regions.Object{
					{ID: "bench-1", Name: "Bench", Kind: "BENCH", Pos: [3]float64{120, 132, 0}, Verbs: []string{"SIT", "STAND"}},
					{ID: "fountain", Name: "Fountain", Kind: "FOUNTAIN", Pos: [3]float64{10, 10, 0}, Verbs: []string{"ACTIVATE"}, State: map[string]any{"solid": true}},
					{ID: "basket-1", Name: "Basket", Kind: "BASKET", Pos: [3]float64{126, 130, 0}, Items: map[string]int{"apple": 3}},
				},
			},
			{
				Name:   "market",
				Width:  128,
				Height: 128,
				Spawn:  [3]float64{64, 64, 0},
				Entry:  regions.EntryOpen,
			},
			{
				Name:   "atelier",
				Width:  64,
				Height: 64,
				Spawn:  [3]float64{32, 32, 0},
				Entry:  regions.EntryPermit,
			},
		},
		Gestures: regions.DefaultGestures(),
	}
}

// tuningT keeps test tweaks short.
type tuningT = tuning.Tuning

func f64(v float64) *float64 { return &v }

func newTestEngine(t *testing.T, mut func(*tuningT)) *Engine {
	t.Helper()
	tune := tuning.Default()
	tune.WeatherEveryTicks = 0 // keep weather static unless a test opts in
	if mut != nil {
		mut(&tune)
	}
	w, err := New(Config{Tuning: tune, World: testWorldConfig(), Seed: 42})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return w
}

func join(t *testing.T, w *Engine, id, region string, permits ...string) *Agent {
	t.Helper()
	resp := make(chan joinResp, 1)
	w.handleJoin(joinReq{
		Req:  ConnectRequest{AgentID: id, Name: id, Region: region, Permits: permits},
		Resp: resp,
	})
	r := <-resp
	if r.Code != "" {
		t.Fatalf("join %s: %s %s", id, r.Code, r.Msg)
	}
	return w.agents[id]
}

func submit(w *Engine, agentID, ref, action string, p protocol.ActionParams) protocol.ResultMsg {
	resp := make(chan protocol.ResultMsg, 1)
	w.applyAction(actionReq{
		AgentID: agentID,
		Act:     protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: ref, Action: action, Params: p},
		Resp:    resp,
	})
	return <-resp
}

// setPos moves an agent directly, keeping the spatial index in sync.
func setPos(w *Engine, a *Agent, x, y float64) {
	a.Pos = spatial.Vec3{X: x, Y: y}
	w.regionOf(a).index.Upsert(a.ID, a.Pos)
}

// drain empties an agent's push queue and returns what was there.
func drain(a *Agent) []protocol.Event {
	var out []protocol.Event
	for {
		select {
		case e, ok := <-a.sub.ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(events []protocol.Event, typ string) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}
