// Package protocol parses and validates inbound relay messages. It turns
// untrusted JSON payloads into a closed set of typed events, or into a
// structured Error from the taxonomy below. It performs no I/O and touches
// no shared state, so every rule is testable in isolation.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/whiteboard-labs/whiteboard-relay/backend/model"
)

// ErrorKind classifies a protocol fault. All kinds are client-input or
// handler-execution faults; none of them close the connection.
type ErrorKind int

const (
	MalformedPayload ErrorKind = iota
	UnexpectedShape
	MissingType
	MissingField
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedPayload:
		return "malformed_payload"
	case UnexpectedShape:
		return "unexpected_shape"
	case MissingType:
		return "missing_type"
	case MissingField:
		return "missing_field"
	case InternalError:
		return "internal_error"
	}
	return "unknown"
}

// Error is a protocol fault reported back to the offending connection only.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Event is one validated inbound message. The set of implementations is
// closed: Join, Draw, Chat and Signal.
type Event interface {
	event()
}

type Join struct {
	Username string
}

// Draw has From and To untouched by validation beyond presence; defaults
// are already applied to Color and Size.
type Draw struct {
	From  json.RawMessage
	To    json.RawMessage
	Color string
	Size  float64
}

type Chat struct {
	Username string
	Text     string
}

// Signal keeps the inbound kind (webrtc_offer, webrtc_answer or
// webrtc_candidate) so the outbound event can carry the same type. An
// empty Target means broadcast.
type Signal struct {
	Kind    string
	Payload json.RawMessage
	Sender  string
	Target  string
}

func (Join) event()   {}
func (Draw) event()   {}
func (Chat) event()   {}
func (Signal) event() {}

// Decode runs the validation pipeline over one raw inbound message. It
// returns the typed event on success, (nil, nil) for unrecognized message
// kinds (which are ignored by policy, so forward-compatible clients keep
// working), or the protocol fault.
func Decode(data []byte) (Event, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if json.Valid(data) {
			return nil, &Error{Kind: UnexpectedShape, Message: "expected a JSON object"}
		}
		return nil, &Error{Kind: MalformedPayload, Message: "invalid JSON format, expected a JSON object"}
	}
	if fields == nil {
		// A bare JSON null unmarshals into a nil map without an error.
		return nil, &Error{Kind: UnexpectedShape, Message: "expected a JSON object"}
	}

	raw, ok := fields["type"]
	if !ok {
		return nil, &Error{Kind: MissingType, Message: "message type is required"}
	}
	var kind string
	if err := json.Unmarshal(raw, &kind); err != nil {
		// A non-string type cannot match any recognized kind, so it falls
		// under the permissive-unknown policy rather than the taxonomy.
		return nil, nil
	}
	if kind == "" {
		return nil, &Error{Kind: MissingType, Message: "message type is required"}
	}

	switch kind {
	case model.KindJoin:
		return decodeJoin(fields)
	case model.KindDraw:
		return decodeDraw(fields)
	case model.KindChat:
		return decodeChat(fields)
	case model.KindOffer, model.KindAnswer, model.KindCandidate:
		return decodeSignal(kind, fields)
	}
	return nil, nil
}

func decodeJoin(fields map[string]json.RawMessage) (Event, *Error) {
	username, ok := stringField(fields, "username")
	if !ok {
		return nil, missingFields(model.KindJoin, "username")
	}
	return Join{Username: username}, nil
}

func decodeDraw(fields map[string]json.RawMessage) (Event, *Error) {
	var absent []string
	from, ok := fields["from"]
	if !ok {
		absent = append(absent, "from")
	}
	to, ok := fields["to"]
	if !ok {
		absent = append(absent, "to")
	}
	if len(absent) > 0 {
		return nil, missingFields(model.KindDraw, absent...)
	}

	ev := Draw{
		From:  from,
		To:    to,
		Color: model.DefaultDrawColor,
		Size:  model.DefaultDrawSize,
	}
	if color, ok := stringField(fields, "color"); ok {
		ev.Color = color
	}
	if raw, ok := fields["size"]; ok {
		var size float64
		if err := json.Unmarshal(raw, &size); err == nil {
			ev.Size = size
		}
	}
	return ev, nil
}

func decodeChat(fields map[string]json.RawMessage) (Event, *Error) {
	var absent []string
	text, ok := stringField(fields, "text")
	if !ok {
		absent = append(absent, "text")
	}
	username, ok := stringField(fields, "username")
	if !ok {
		absent = append(absent, "username")
	}
	if len(absent) > 0 {
		return nil, missingFields(model.KindChat, absent...)
	}
	return Chat{Username: username, Text: text}, nil
}

func decodeSignal(kind string, fields map[string]json.RawMessage) (Event, *Error) {
	var absent []string
	payload, ok := fields["payload"]
	if !ok {
		absent = append(absent, "payload")
	}
	sender, ok := stringField(fields, "sender")
	if !ok {
		absent = append(absent, "sender")
	}
	if len(absent) > 0 {
		return nil, missingFields(kind, absent...)
	}

	// Target is optional; a wrong-typed target is treated as absent.
	target, _ := stringField(fields, "target")
	return Signal{
		Kind:    kind,
		Payload: payload,
		Sender:  sender,
		Target:  target,
	}, nil
}

// stringField extracts a string-typed field. A field that is present but
// not a string is unusable by any handler and reported as absent.
func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func missingFields(kind string, names ...string) *Error {
	return &Error{
		Kind:    MissingField,
		Message: fmt.Sprintf("missing required fields for %s: %s", kind, strings.Join(names, ", ")),
	}
}
