package model

import (
	"encoding/json"
	"time"
)

// Inbound message kinds recognized by the relay. Signaling kinds keep the
// same value on the way out.
const (
	KindJoin      = "join"
	KindDraw      = "draw"
	KindChat      = "chat"
	KindOffer     = "webrtc_offer"
	KindAnswer    = "webrtc_answer"
	KindCandidate = "webrtc_candidate"
)

// Outbound-only message kinds.
const (
	KindUserList = "user_list"
	KindError    = "error"
)

// Defaults applied to draw events when the client omits the optional fields.
const (
	DefaultDrawColor = "#000000"
	DefaultDrawSize  = 4
)

// Event is one outbound wire message. Concrete types marshal to the JSON
// object shapes clients expect.
type Event interface {
	EventType() string
}

type UserList struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

func (e UserList) EventType() string { return e.Type }

// Draw carries one stroke segment. From and To are opaque to the relay and
// passed through verbatim.
type Draw struct {
	Type  string          `json:"type"`
	From  json.RawMessage `json:"from"`
	To    json.RawMessage `json:"to"`
	Color string          `json:"color"`
	Size  float64         `json:"size"`
}

func (e Draw) EventType() string { return e.Type }

type Chat struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

func (e Chat) EventType() string { return e.Type }

// Signal is a relayed WebRTC negotiation event. Type is one of the
// webrtc_* kinds. An empty Target means the event was broadcast.
type Signal struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender"`
	Target  string          `json:"target,omitempty"`
}

func (e Signal) EventType() string { return e.Type }

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e Error) EventType() string { return e.Type }

// Wire is a connection's outbound send path. TX is drained by the
// connection's sender pump and written to by the relay; submission never
// blocks (see relay.Member).
type Wire struct {
	TX chan Event
}

func NewWire(queueLen int) Wire {
	return Wire{TX: make(chan Event, queueLen)}
}

// Room is room metadata managed over the HTTP API. The relay itself never
// reads it.
type Room struct {
	Code         string                 `json:"code"`
	Name         string                 `json:"name"`
	Private      bool                   `json:"private"`
	CreatedAt    time.Time              `json:"created_at"`
	Participants map[string]Participant `json:"participants,omitempty"`
}

type Participant struct {
	ID string `json:"id"`
}

// CanvasState is the stored snapshot of a room's canvas, a list of stroke
// segments as submitted by clients.
type CanvasState struct {
	Data      []json.RawMessage `json:"data"`
	UpdatedAt time.Time         `json:"updated_at"`
}
