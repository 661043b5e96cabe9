package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kanephamphu/connex-agi/agierr"
)

// envelope carries an Event's type tag alongside its JSON payload so a
// decoder can reconstruct the right concrete shape without relying on
// the SSE "event:" field surviving every intermediary.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeSSE renders event as one `event: <type>\ndata: <json>\n\n`
// frame, the wire format the external API streams to clients.
func EncodeSSE(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "events: marshal payload", err)
	}
	env := envelope{Type: event.EventType(), Payload: payload}
	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "events: marshal envelope", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", event.EventType())
	buf.WriteString("data: ")
	buf.Write(encoded)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// DecodeEnvelope parses the JSON body of a "data:" line back into its
// type tag and raw payload, leaving the caller to unmarshal Payload
// into the concrete event struct its Type names.
func DecodeEnvelope(data []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, agierr.Wrap(agierr.KindValidation, "events: decode envelope", err)
	}
	return env.Type, env.Payload, nil
}
