package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeAct       = "ACT"
	TypeResult    = "RESULT"
	TypeEvent     = "EVENT"
	TypeHeartbeat = "HEARTBEAT"
	TypeReplayReq = "REPLAY_REQ"
	TypeReplay    = "REPLAY"
	TypeState     = "STATE"
)

// Speech tiers. A tier names a propagation radius class; SHOUT is
// region-wide.
const (
	TierWhisper = "WHISPER"
	TierNormal  = "NORMAL"
	TierShout   = "SHOUT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
