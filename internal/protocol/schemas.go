package protocol

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Compiled schemas for the client->server frames. Server->client frames are
// produced by us and not validated.
var (
	HelloSchema     = mustCompile("hello.schema.json")
	ActSchema       = mustCompile("act.schema.json")
	ReplayReqSchema = mustCompile("replay_req.schema.json")
)

func mustCompile(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(fmt.Sprintf("embedded schema %s: %v", name, err))
	}
	s, err := jsonschema.CompileString(name, string(raw))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return s
}

// ValidateClientFrame validates a raw inbound frame against the schema for
// its declared type. Types without a schema (e.g. HEARTBEAT) pass.
func ValidateClientFrame(msgType string, raw []byte) error {
	var s *jsonschema.Schema
	switch msgType {
	case TypeHello:
		s = HelloSchema
	case TypeAct:
		s = ActSchema
	case TypeReplayReq:
		s = ReplayReqSchema
	default:
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
