package world

import (
	"testing"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/tuning"
)

func weatherSequence(t *testing.T, seed int64, steps int) []string {
	t.Helper()
	tune := tuning.Default()
	tune.WeatherEveryTicks = 1
	w, err := New(Config{Tuning: tune, World: testWorldConfig(), Seed: seed})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	var seq []string
	for i := 0; i < steps; i++ {
		w.step()
		seq = append(seq, w.regions["plaza"].weather)
	}
	return seq
}

func TestWeather_DeterministicPerSeed(t *testing.T) {
	a := weatherSequence(t, 7, 40)
	b := weatherSequence(t, 7, 40)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at step %d: %q vs %q", i, a[i], b[i])
		}
	}

	c := weatherSequence(t, 8, 40)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds should drift apart over 40 steps")
	}
}

func TestWeather_ChangeIsAnnouncedRegionWide(t *testing.T) {
	w := newTestEngine(t, func(tn *tuningT) {
		tn.WeatherEveryTicks = 1
	})
	a := join(t, w, "ada", "plaza")
	drain(a)

	var ev *protocol.Event
	for i := 0; i < 50 && ev == nil; i++ {
		w.step()
		for _, e := range drain(a) {
			if e.Type == protocol.EventWeather {
				ev = &e
				break
			}
		}
	}
	if ev == nil {
		t.Fatalf("no weather change in 50 ticks at every-tick cadence")
	}
	if !ev.RegionWide() {
		t.Fatalf("weather events are region-wide, got radius %v", ev.Radius)
	}
	if got, _ := ev.Content["weather"].(string); got == "" {
		t.Fatalf("weather event content: %+v", ev.Content)
	}
}

func TestWeather_DisabledWhenZero(t *testing.T) {
	w := newTestEngine(t, nil) // cadence zeroed in the fixture
	before := w.regions["plaza"].weather
	for i := 0; i < 20; i++ {
		w.step()
	}
	if w.regions["plaza"].weather != before {
		t.Fatalf("weather drifted with cadence disabled")
	}
}
