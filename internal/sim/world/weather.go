package world

import (
	"agentworld.ai/internal/protocol"
)

var weatherKinds = []string{"CLEAR", "CLOUDY", "RAIN", "FOG", "STORM"}

// systemWeather drifts each region's weather on its own seeded RNG, so runs
// with the same seed produce the same weather sequence. A change is
// announced region-wide.
func (w *Engine) systemWeather(nowTick uint64) {
	every := uint64(w.cfg.WeatherEveryTicks)
	if every == 0 || nowTick == 0 || nowTick%every != 0 {
		return
	}
	for _, name := range w.regionNames() {
		reg := w.regions[name]
		next := weatherKinds[reg.rng.Intn(len(weatherKinds))]
		if next == reg.weather {
			continue
		}
		prev := reg.weather
		reg.weather = next
		w.publish(reg, protocol.Event{
			Type:    protocol.EventWeather,
			Radius:  protocol.RadiusRegionWide,
			Content: map[string]any{"weather": next, "previous": prev},
		})
	}
}
