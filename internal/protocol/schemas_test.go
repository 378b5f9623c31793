package protocol_test

import (
	"testing"

	"agentworld.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	ok := func(msgType, raw string) {
		t.Helper()
		if err := protocol.ValidateClientFrame(msgType, []byte(raw)); err != nil {
			t.Fatalf("validate %s: %v", msgType, err)
		}
	}
	bad := func(msgType, raw string) {
		t.Helper()
		if err := protocol.ValidateClientFrame(msgType, []byte(raw)); err == nil {
			t.Fatalf("expected %s frame rejected: %s", msgType, raw)
		}
	}

	ok(protocol.TypeHello, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "agent_id":"ada",
	  "agent_name":"Ada",
	  "region":"plaza",
	  "max_queue":16,
	  "auth":{"token":"tok-1"}
	}`)

	ok(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A1",
	  "action":"SAY",
	  "params":{"text":"hi","tier":"NORMAL"}
	}`)

	ok(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A2",
	  "action":"MOVE_TO",
	  "params":{"x":12.5,"y":40}
	}`)

	ok(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A5",
	  "action":"GIVE_ITEM",
	  "params":{"target_id":"bea","item":"apple","quantity":2}
	}`)

	ok(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A6",
	  "action":"SET_STATUS",
	  "params":{"status":"BUSY"}
	}`)

	ok(protocol.TypeReplayReq, `{
	  "type":"REPLAY_REQ",
	  "protocol_version":"1.0",
	  "req_id":"R1",
	  "region":"plaza",
	  "since_tick":41,
	  "limit":100
	}`)

	// Unknown action and unknown tier must be rejected before the engine
	// ever sees them.
	bad(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A3",
	  "action":"FLY"
	}`)
	bad(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A4",
	  "action":"SAY",
	  "params":{"text":"hi","tier":"MEGAPHONE"}
	}`)
	bad(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A7",
	  "action":"SET_STATUS",
	  "params":{"status":"DANCING"}
	}`)
	bad(protocol.TypeAct, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"A8",
	  "action":"GIVE_ITEM",
	  "params":{"target_id":"bea","item":"apple","quantity":0}
	}`)
	bad(protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`)
}
