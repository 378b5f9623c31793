package protocol

import "time"

// Event types.
const (
	EventArrival   = "ARRIVAL"
	EventDeparture = "DEPARTURE"
	EventMovement  = "MOVEMENT"
	EventSpeech    = "SPEECH"
	EventEmote     = "EMOTE"
	EventObjectUse = "OBJECT_USE"
	EventItem      = "ITEM_TRANSFER"
	EventStatus    = "STATUS"
	EventWeather   = "WEATHER"
	EventSystem    = "SYSTEM"
)

// RadiusRegionWide marks an event delivered to every region member
// regardless of position.
const RadiusRegionWide = 0

// Event is an immutable world event record. It is produced exactly once by
// the action executor, retained in a bounded per-region ring buffer and
// pushed to the subscribers in scope at publish time. Within one region
// events are totally ordered by (Tick, Seq).
type Event struct {
	Type    string         `json:"type"`
	Source  string         `json:"source,omitempty"`
	Target  string         `json:"target,omitempty"`
	Region  string         `json:"region"`
	Content map[string]any `json:"content,omitempty"`
	Tick    uint64         `json:"tick"`
	Seq     uint64         `json:"seq"`
	TS      time.Time      `json:"ts"`
	Origin  [3]float64     `json:"origin"`
	Radius  float64        `json:"radius,omitempty"` // RadiusRegionWide (0) = whole region
}

// RegionWide reports whether the event is scoped to the whole region rather
// than a finite radius around its origin.
func (e Event) RegionWide() bool { return e.Radius <= RadiusRegionWide }
