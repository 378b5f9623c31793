package world

import (
	"agentworld.ai/internal/protocol"
)

// The exported API below is what transports call. Every call is forwarded to
// the engine loop over a channel, so callers never touch world state
// directly and all mutations stay serialized.

type ConnectRequest struct {
	AgentID string
	Name    string
	Region  string
	Permits []string
	// Push queue capacity for this subscriber; 0 uses the tuned default.
	Queue int
}

type ConnectResponse struct {
	SessionID string
	Region    string
	Spawn     [3]float64
	Tick      uint64
	// Events is this agent's push stream. Closed on disconnect.
	Events <-chan protocol.Event
}

type joinReq struct {
	Req  ConnectRequest
	Resp chan joinResp
}

type joinResp struct {
	Conn ConnectResponse
	Code string
	Msg  string
}

type leaveReq struct {
	AgentID string
	Reason  string
}

type actionReq struct {
	AgentID string
	Act     protocol.ActMsg
	Resp    chan protocol.ResultMsg
}

type queryReq struct {
	Region string
	Resp   chan queryResp
}

type queryResp struct {
	State protocol.StateMsg
	Err   error
}

type replayReq struct {
	// AgentID is empty for trusted callers (HTTP state tap); when set, the
	// perception rate class applies.
	AgentID   string
	Region    string
	SinceTick uint64
	Limit     int
	Resp      chan replayResp
}

type replayResp struct {
	Events []protocol.Event
	Code   string
	Err    error
}

// Connect admits an agent into a region and opens its event stream.
// The returned code is one of the protocol error codes when it fails.
func (w *Engine) Connect(req ConnectRequest) (ConnectResponse, string, string) {
	resp := make(chan joinResp, 1)
	w.join <- joinReq{Req: req, Resp: resp}
	r := <-resp
	return r.Conn, r.Code, r.Msg
}

// Disconnect removes the agent voluntarily. Idempotent.
func (w *Engine) Disconnect(agentID string) {
	w.leave <- leaveReq{AgentID: agentID, Reason: "disconnect"}
}

// Submit runs one action through admission and, if admitted, the executor.
// Every submission gets exactly one result; nothing is silently dropped.
func (w *Engine) Submit(agentID string, act protocol.ActMsg) protocol.ResultMsg {
	resp := make(chan protocol.ResultMsg, 1)
	w.inbox <- actionReq{AgentID: agentID, Act: act, Resp: resp}
	return <-resp
}

// Heartbeat refreshes the idle-timeout clock without submitting an action.
func (w *Engine) Heartbeat(agentID string) {
	select {
	case w.heartbeat <- agentID:
	default:
	}
}

// QueryState returns a read-only snapshot of one region. Two calls with no
// admitted mutation in between return identical snapshots.
func (w *Engine) QueryState(region string) (protocol.StateMsg, error) {
	resp := make(chan queryResp, 1)
	w.queryReq <- queryReq{Region: region, Resp: resp}
	r := <-resp
	return r.State, r.Err
}

// Replay returns events from the region ring buffer with tick > sinceTick,
// in (tick, seq) order.
func (w *Engine) Replay(region string, sinceTick uint64, limit int) ([]protocol.Event, error) {
	return w.replay("", region, sinceTick, limit)
}

// ReplayFor is Replay on behalf of a connected agent; the perception rate
// class applies and counts against the agent's window.
func (w *Engine) ReplayFor(agentID, region string, sinceTick uint64, limit int) ([]protocol.Event, string) {
	ev, err := w.replay(agentID, region, sinceTick, limit)
	if err != nil {
		if ce, ok := err.(codeError); ok {
			return nil, string(ce)
		}
		return nil, protocol.ErrNotFound
	}
	return ev, ""
}

func (w *Engine) replay(agentID, region string, sinceTick uint64, limit int) ([]protocol.Event, error) {
	resp := make(chan replayResp, 1)
	w.replayReq <- replayReq{AgentID: agentID, Region: region, SinceTick: sinceTick, Limit: limit, Resp: resp}
	r := <-resp
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Code != "" {
		return nil, codeError(r.Code)
	}
	return r.Events, nil
}

type codeError string

func (e codeError) Error() string { return string(e) }

// Code extracts a protocol error code from an error produced by this
// package, or E_INTERNAL.
func Code(err error) string {
	if ce, ok := err.(codeError); ok {
		return string(ce)
	}
	return protocol.ErrInternal
}
