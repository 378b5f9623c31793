package protocol

// Action types accepted in an ACT message.
const (
	ActionMoveTo    = "MOVE_TO"
	ActionTeleport  = "TELEPORT"
	ActionSay       = "SAY"
	ActionEmote     = "EMOTE"
	ActionUseObject = "USE_OBJECT"
	ActionFollow    = "FOLLOW"
	ActionStop      = "STOP"
	ActionGiveItem  = "GIVE_ITEM"
	ActionTakeItem  = "TAKE_ITEM"
	ActionSetStatus = "SET_STATUS"
	ActionSetMood   = "SET_MOOD"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AgentID         string     `json:"agent_id"`
	AgentName       string     `json:"agent_name,omitempty"`
	Region          string     `json:"region,omitempty"`
	MaxQueue        int        `json:"max_queue,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AgentID         string      `json:"agent_id"`
	Region          string      `json:"region"`
	Spawn           [3]float64  `json:"spawn"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz    int     `json:"tick_rate_hz"`
	DayTicks      int     `json:"day_ticks"`
	WhisperRadius float64 `json:"whisper_radius"`
	NormalRadius  float64 `json:"normal_radius"`
	MaxMessageLen int     `json:"max_message_len"`
}

// ACT (client -> server): one action submission. The server answers every
// ACT with exactly one RESULT carrying the same ref id.
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ID              string       `json:"id"`
	Action          string       `json:"action"`
	Params          ActionParams `json:"params,omitempty"`
}

// ActionParams carries the union of per-action parameters. All fields are
// untrusted client input; the executor bounds-checks them against the
// target region. Coordinates are pointers so an absent destination is
// distinguishable from an explicit zero.
type ActionParams struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z float64  `json:"z,omitempty"`

	Region string `json:"region,omitempty"`

	Text string `json:"text,omitempty"`
	Tier string `json:"tier,omitempty"`

	Gesture string `json:"gesture,omitempty"`

	ObjectID string `json:"object_id,omitempty"`
	Verb     string `json:"verb,omitempty"`

	TargetID string  `json:"target_id,omitempty"`
	Distance float64 `json:"distance,omitempty"`

	Item     string `json:"item,omitempty"`
	Quantity int    `json:"quantity,omitempty"`

	Status string `json:"status,omitempty"`
	Mood   string `json:"mood,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`
}

// EVENT (server -> client): one pushed world event.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           Event  `json:"event"`
}

// HEARTBEAT (client -> server): keeps an otherwise idle session alive.
type HeartbeatMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// REPLAY_REQ (client -> server): pull-based catch-up from the region ring
// buffer, for reconnecting or polling clients.
type ReplayReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Region          string `json:"region,omitempty"`
	SinceTick       uint64 `json:"since_tick"`
	Limit           int    `json:"limit,omitempty"`
}

// REPLAY (server -> client)
type ReplayMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id"`
	Region          string  `json:"region"`
	Events          []Event `json:"events"`
}

// STATE (server -> client): a read-only region snapshot.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Region          string        `json:"region"`
	Tick            uint64        `json:"tick"`
	Clock           ClockInfo     `json:"clock"`
	Weather         string        `json:"weather"`
	Agents          []AgentState  `json:"agents"`
	Objects         []ObjectState `json:"objects"`
}

type ClockInfo struct {
	TimeOfDay float64 `json:"time_of_day"` // 0..1
	Hour      int     `json:"hour"`
	Minute    int     `json:"minute"`
	Day       int     `json:"day"`
	IsDay     bool    `json:"is_day"`
}

type AgentState struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Pos    [3]float64 `json:"pos"`
	Facing float64    `json:"facing"`
	Status string     `json:"status"`
	Mood   string     `json:"mood,omitempty"`
}

type ObjectState struct {
	ID    string         `json:"id"`
	Name  string         `json:"name,omitempty"`
	Kind  string         `json:"kind"`
	Pos   [3]float64     `json:"pos"`
	Verbs []string       `json:"verbs,omitempty"`
	State map[string]any `json:"state,omitempty"`
	Items map[string]int `json:"items,omitempty"`
	Owner string         `json:"owner,omitempty"`
}
