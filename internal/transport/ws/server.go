package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 5 * time.Second
)

type Server struct {
	world *world.Engine
	auth  Authenticator
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.Engine, auth Authenticator, logger *log.Logger) *Server {
	if auth == nil {
		auth = AllowAll{}
	}
	return &Server{
		world: w,
		auth:  auth,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, sess := s.handshake(conn)
		if agentID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 64)

		// Writer: the only goroutine touching the connection for writes.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Event pump: engine push stream -> EVENT frames. The engine closes
		// the stream on disconnect or idle timeout; closing the connection
		// here unblocks the read loop so the client sees the disconnect
		// right away instead of at the read deadline.
		go func() {
			for ev := range sess.Events {
				b, err := json.Marshal(protocol.EventMsg{
					Type:            protocol.TypeEvent,
					ProtocolVersion: protocol.Version,
					Event:           ev,
				})
				if err != nil {
					continue
				}
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(time.Second))
			cancel()
			_ = conn.Close()
		}()

		s.readLoop(ctx, conn, agentID, sess.Region, out)

		s.world.Disconnect(agentID)
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, agentID, region string, out chan []byte) {
	send := func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		select {
		case out <- b:
		case <-ctx.Done():
		}
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.ProtocolVersion != protocol.Version {
			// Every inbound frame gets an answer, even unparseable ones.
			send(protocol.ResultMsg{
				Type:            protocol.TypeResult,
				ProtocolVersion: protocol.Version,
				Code:            protocol.ErrProtoBadRequest,
				Message:         "bad message envelope",
			})
			continue
		}
		if err := protocol.ValidateClientFrame(base.Type, msg); err != nil {
			send(protocol.ResultMsg{
				Type:            protocol.TypeResult,
				ProtocolVersion: protocol.Version,
				Code:            protocol.ErrProtoBadRequest,
				Message:         "schema validation failed",
			})
			continue
		}

		switch base.Type {
		case protocol.TypeHeartbeat:
			s.world.Heartbeat(agentID)

		case protocol.TypeAct:
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			send(s.world.Submit(agentID, act))

		case protocol.TypeReplayReq:
			var req protocol.ReplayReqMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			reg := req.Region
			if reg == "" {
				reg = region
			}
			events, code := s.world.ReplayFor(agentID, reg, req.SinceTick, req.Limit)
			if code != "" {
				send(protocol.ResultMsg{
					Type:            protocol.TypeResult,
					ProtocolVersion: protocol.Version,
					Ref:             req.ReqID,
					Code:            code,
				})
				continue
			}
			if events == nil {
				events = []protocol.Event{}
			}
			send(protocol.ReplayMsg{
				Type:            protocol.TypeReplay,
				ProtocolVersion: protocol.Version,
				ReqID:           req.ReqID,
				Region:          reg,
				Events:          events,
			})
		}
	}
}

// handshake reads the HELLO frame, authenticates and admits the agent.
func (s *Server) handshake(conn *websocket.Conn) (string, world.ConnectResponse) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", world.ConnectResponse{}
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.closePolicy(conn, "expected HELLO")
		return "", world.ConnectResponse{}
	}
	if base.ProtocolVersion != protocol.Version {
		s.closePolicy(conn, "bad protocol_version")
		return "", world.ConnectResponse{}
	}
	if err := protocol.ValidateClientFrame(protocol.TypeHello, msg); err != nil {
		s.closePolicy(conn, "malformed HELLO")
		return "", world.ConnectResponse{}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", world.ConnectResponse{}
	}

	token := ""
	if hello.Auth != nil {
		token = hello.Auth.Token
	}
	grant, ok := s.auth.Verify(hello.AgentID, token)
	if !ok {
		s.closePolicy(conn, "auth failed")
		return "", world.ConnectResponse{}
	}
	name := hello.AgentName
	if name == "" {
		name = grant.Name
	}

	sess, code, msgText := s.world.Connect(world.ConnectRequest{
		AgentID: hello.AgentID,
		Name:    name,
		Region:  hello.Region,
		Permits: grant.Permits,
		Queue:   hello.MaxQueue,
	})
	if code != "" {
		b, _ := json.Marshal(protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			OK:              false,
			Code:            code,
			Message:         msgText,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, b)
		return "", world.ConnectResponse{}
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.SessionID,
		AgentID:         hello.AgentID,
		Region:          sess.Region,
		Spawn:           sess.Spawn,
		Tick:            sess.Tick,
		WorldParams:     s.world.Params(),
	}
	b, err := json.Marshal(welcome)
	if err != nil {
		return "", world.ConnectResponse{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.world.Disconnect(hello.AgentID)
		return "", world.ConnectResponse{}
	}
	return hello.AgentID, sess
}

func (s *Server) closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}
