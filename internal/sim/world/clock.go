package world

import "agentworld.ai/internal/protocol"

// clockFor derives the world clock deterministically from the tick count:
// one day is DayTicks ticks, daylight runs 06:00-18:00.
func clockFor(tick uint64, dayTicks int) protocol.ClockInfo {
	if dayTicks <= 0 {
		dayTicks = 1
	}
	day := uint64(dayTicks)
	frac := float64(tick%day) / float64(day)
	minutes := int(frac * 24 * 60)
	hour := minutes / 60
	return protocol.ClockInfo{
		TimeOfDay: frac,
		Hour:      hour,
		Minute:    minutes % 60,
		Day:       int(tick/day) + 1,
		IsDay:     hour >= 6 && hour < 18,
	}
}
