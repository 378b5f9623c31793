package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

func startServer(t *testing.T, auth Authenticator, mut func(*tuning.Tuning)) string {
	t.Helper()
	tune := tuning.Default()
	tune.WeatherEveryTicks = 0
	tune.TickRateHz = 50
	if mut != nil {
		mut(&tune)
	}
	eng, err := world.New(world.Config{Tuning: tune, World: regions.Default(), Seed: 1})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()

	srv := httptest.NewServer(NewServer(eng, auth, log.New(io.Discard, "", 0)).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readFrame reads until a frame of the wanted type arrives, skipping
// interleaved EVENT pushes.
func readFrame(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", want, err)
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			t.Fatalf("frame: %v", err)
		}
		if base.Type == want {
			return raw
		}
	}
}

func hello(agentID string) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentID:         agentID,
	}
}

func TestHandshake_HelloWelcome(t *testing.T) {
	url := startServer(t, nil, nil)
	conn := dial(t, url)
	writeJSON(t, conn, hello("wanderer"))

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.SessionID == "" || welcome.AgentID != "wanderer" {
		t.Fatalf("welcome: %+v", welcome)
	}
	if welcome.Region != "plaza" || welcome.Spawn != [3]float64{128, 128, 0} {
		t.Fatalf("default region landing: %+v", welcome)
	}
	if welcome.WorldParams.TickRateHz <= 0 {
		t.Fatalf("world params missing: %+v", welcome.WorldParams)
	}
}

func TestHandshake_VersionMismatchCloses(t *testing.T) {
	url := startServer(t, nil, nil)
	conn := dial(t, url)
	h := hello("wanderer")
	h.ProtocolVersion = "0.9"
	writeJSON(t, conn, h)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection should close on version mismatch")
	}
}

func TestHandshake_AuthRejected(t *testing.T) {
	auth := StaticTokens{Tokens: map[string]Grant{"s3cret": {Name: "Keyholder"}}}
	url := startServer(t, auth, nil)

	conn := dial(t, url)
	h := hello("stranger")
	h.Auth = &protocol.HelloAuth{Token: "wrong"}
	writeJSON(t, conn, h)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("bad token should close the connection")
	}

	conn2 := dial(t, url)
	h2 := hello("keyholder")
	h2.Auth = &protocol.HelloAuth{Token: "s3cret"}
	writeJSON(t, conn2, h2)
	readFrame(t, conn2, protocol.TypeWelcome)
}

func TestActResultRoundTrip(t *testing.T) {
	url := startServer(t, nil, nil)
	conn := dial(t, url)
	writeJSON(t, conn, hello("speaker"))
	readFrame(t, conn, protocol.TypeWelcome)

	writeJSON(t, conn, protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ID:              "act-1",
		Action:          protocol.ActionSay,
		Params:          protocol.ActionParams{Text: "hello out there", Tier: protocol.TierShout},
	})
	var res protocol.ResultMsg
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if !res.OK || res.Ref != "act-1" {
		t.Fatalf("result: %+v", res)
	}

	// The speaker is inside its own shout scope and gets the push.
	var ev protocol.EventMsg
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeEvent), &ev); err != nil {
		t.Fatalf("event: %v", err)
	}
	for ev.Event.Type != protocol.EventSpeech {
		if err := json.Unmarshal(readFrame(t, conn, protocol.TypeEvent), &ev); err != nil {
			t.Fatalf("event: %v", err)
		}
	}
	if text, _ := ev.Event.Content["text"].(string); text != "hello out there" {
		t.Fatalf("speech push: %+v", ev.Event)
	}
}

func TestAct_SchemaViolationGetsProtocolError(t *testing.T) {
	url := startServer(t, nil, nil)
	conn := dial(t, url)
	writeJSON(t, conn, hello("sloppy"))
	readFrame(t, conn, protocol.TypeWelcome)

	// id is required by the frame schema.
	frame := map[string]any{
		"type":             protocol.TypeAct,
		"protocol_version": protocol.Version,
		"action":           protocol.ActionSay,
	}
	writeJSON(t, conn, frame)
	var res protocol.ResultMsg
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("got %q want %q", res.Code, protocol.ErrProtoBadRequest)
	}
}

func TestReplayReq_ReturnsHistory(t *testing.T) {
	url := startServer(t, nil, nil)
	conn := dial(t, url)
	writeJSON(t, conn, hello("historian"))
	readFrame(t, conn, protocol.TypeWelcome)

	// Let at least one tick pass so the speech lands past since_tick=0.
	time.Sleep(100 * time.Millisecond)
	writeJSON(t, conn, protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ID:              "act-1",
		Action:          protocol.ActionSay,
		Params:          protocol.ActionParams{Text: "for the record", Tier: protocol.TierShout},
	})
	readFrame(t, conn, protocol.TypeResult)

	writeJSON(t, conn, protocol.ReplayReqMsg{
		Type:            protocol.TypeReplayReq,
		ProtocolVersion: protocol.Version,
		ReqID:           "rq-1",
	})
	var rep protocol.ReplayMsg
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeReplay), &rep); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.ReqID != "rq-1" || rep.Region != "plaza" {
		t.Fatalf("replay envelope: %+v", rep)
	}
	found := false
	for _, e := range rep.Events {
		if e.Type == protocol.EventSpeech {
			found = true
		}
	}
	if !found {
		t.Fatalf("replay should include the recorded speech, got %+v", rep.Events)
	}
}

func TestDuplicateAgentRejectedInHandshake(t *testing.T) {
	url := startServer(t, nil, nil)
	first := dial(t, url)
	writeJSON(t, first, hello("solo"))
	readFrame(t, first, protocol.TypeWelcome)

	second := dial(t, url)
	writeJSON(t, second, hello("solo"))
	var res protocol.ResultMsg
	if err := json.Unmarshal(readFrame(t, second, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Code != protocol.ErrConflict {
		t.Fatalf("duplicate agent: got %q want %q", res.Code, protocol.ErrConflict)
	}
}

func TestAct_BadEnvelopeStillGetsAResult(t *testing.T) {
	url := startServer(t, nil, nil)
	conn := dial(t, url)
	writeJSON(t, conn, hello("mumbler"))
	readFrame(t, conn, protocol.TypeWelcome)

	// Stale protocol version on a post-handshake frame.
	frame := map[string]any{
		"type":             protocol.TypeAct,
		"protocol_version": "0.9",
		"id":               "act-1",
		"action":           protocol.ActionStop,
	}
	writeJSON(t, conn, frame)
	var res protocol.ResultMsg
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.OK || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("stale version: %+v", res)
	}

	// Unparseable bytes get the same answer instead of silence.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := json.Unmarshal(readFrame(t, conn, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.OK || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("garbage frame: %+v", res)
	}
}

func TestIdleDisconnectClosesConnectionPromptly(t *testing.T) {
	url := startServer(t, nil, func(tune *tuning.Tuning) {
		tune.AwayAfterTicks = 1
		tune.IdleTimeoutTicks = 2
	})
	conn := dial(t, url)
	writeJSON(t, conn, hello("sleeper"))
	readFrame(t, conn, protocol.TypeWelcome)

	// At 50 Hz the engine evicts the idle session within a few ticks; the
	// server must close the socket then, not at the read deadline.
	start := time.Now()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("disconnect took %v, engine eviction should close the socket", elapsed)
	}
}
