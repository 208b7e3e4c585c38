package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whiteboard-labs/whiteboard-relay/backend/model"
	"github.com/whiteboard-labs/whiteboard-relay/backend/protocol"
)

var ErrNotUnbound = errors.New("session was already connected")

// State is a connection's lifecycle position. Transitions only move
// forward: Unbound -> Connected -> Joined -> Closed, with Joined optional.
// Closed is terminal.
type State int

const (
	StateUnbound State = iota
	StateConnected
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "invalid"
}

// Exchange is the registry surface a session drives. *Registry implements
// it.
type Exchange interface {
	Subscribe(roomID string, m Member)
	Unsubscribe(roomID string, m Member)
	Join(roomID string, m Member) []string
	Broadcast(roomID string, ev model.Event, pred Predicate)
}

// Session is the relay-side half of one connection. It owns the
// connection's state machine and turns decoded protocol events into
// registry mutations and group broadcasts. The transport feeds it through
// HandleInbound from a single goroutine and calls Close exactly when the
// underlying stream dies.
type Session struct {
	id       string
	roomID   string
	exchange Exchange
	wire     model.Wire
	logger   zerolog.Logger

	mx       sync.Mutex
	state    State
	identity string
	named    bool
}

func NewSession(id, roomID string, exchange Exchange, wire model.Wire, logger *zerolog.Logger) *Session {
	return &Session{
		id:       id,
		roomID:   roomID,
		exchange: exchange,
		wire:     wire,
		logger: logger.With().
			Str("component", "session").
			Str("roomID", roomID).
			Str("connID", id).
			Logger(),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) RoomID() string { return s.roomID }

// Identity reports the display identity set by the first join. It keeps
// reporting it after Close so disconnect cleanup can see it.
func (s *Session) Identity() (string, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.identity, s.named
}

func (s *Session) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// Enqueue implements Member. It never blocks: a full send queue drops the
// event, delivery is best effort.
func (s *Session) Enqueue(ev model.Event) bool {
	select {
	case s.wire.TX <- ev:
		return true
	default:
		return false
	}
}

// Connect moves the session into the room group. Valid only once, on an
// Unbound session.
func (s *Session) Connect() error {
	s.mx.Lock()
	if s.state != StateUnbound {
		state := s.state
		s.mx.Unlock()
		return fmt.Errorf("%w: %s", ErrNotUnbound, state)
	}
	s.state = StateConnected
	s.mx.Unlock()

	s.exchange.Subscribe(s.roomID, s)
	return nil
}

// Close is the disconnect handler. The first call removes the session from
// the room group and, if it had joined, from the presence set (with the
// user_list broadcast to the remaining members); later calls are no-ops.
func (s *Session) Close() {
	s.mx.Lock()
	prev := s.state
	s.state = StateClosed
	s.mx.Unlock()

	if prev == StateConnected || prev == StateJoined {
		s.exchange.Unsubscribe(s.roomID, s)
		s.logger.Debug().Msg("session closed")
	}
}

// HandleInbound processes one raw inbound message: decode, validate,
// dispatch. Protocol faults and handler panics turn into a single error
// event on this session's own wire and never touch the rest of the room;
// the connection stays open either way.
func (s *Session) HandleInbound(data []byte) {
	defer func() {
		if cause := recover(); cause != nil {
			s.logger.Error().Any("cause", cause).Msg("recovered handler panic")
			s.sendError(&protocol.Error{
				Kind:    protocol.InternalError,
				Message: fmt.Sprintf("server error: %v", cause),
			})
		}
	}()

	if s.State() == StateClosed {
		return
	}

	ev, perr := protocol.Decode(data)
	if perr != nil {
		s.sendError(perr)
		return
	}
	if ev == nil {
		// Unrecognized kind, ignored by policy.
		return
	}

	switch ev := ev.(type) {
	case protocol.Join:
		s.handleJoin(ev)
	case protocol.Draw:
		s.handleDraw(ev)
	case protocol.Chat:
		s.handleChat(ev)
	case protocol.Signal:
		s.handleSignal(ev)
	}
}

func (s *Session) handleJoin(ev protocol.Join) {
	s.mx.Lock()
	if s.state != StateConnected {
		// First join wins: a joined session ignores further joins, so an
		// identity is added to the registry at most once per connection.
		state := s.state
		s.mx.Unlock()
		s.logger.Debug().
			Str("username", ev.Username).
			Str("state", state.String()).
			Msg("join ignored")
		return
	}
	s.state = StateJoined
	s.identity = ev.Username
	s.named = true
	s.mx.Unlock()

	s.exchange.Join(s.roomID, s)
}

// Draw and chat are pure relay: broadcast to the whole group, sender
// included, so a client without local echo still sees its own strokes.

func (s *Session) handleDraw(ev protocol.Draw) {
	s.exchange.Broadcast(s.roomID, model.Draw{
		Type:  model.KindDraw,
		From:  ev.From,
		To:    ev.To,
		Color: ev.Color,
		Size:  ev.Size,
	}, nil)
}

func (s *Session) handleChat(ev protocol.Chat) {
	s.exchange.Broadcast(s.roomID, model.Chat{
		Type:     model.KindChat,
		Username: ev.Username,
		Text:     ev.Text,
	}, nil)
}

// handleSignal relays a negotiation payload without inspecting it. With a
// target, only members joined under that exact identity receive it; a
// target matching nobody delivers nowhere and is not an error.
func (s *Session) handleSignal(ev protocol.Signal) {
	var pred Predicate
	if ev.Target != "" {
		pred = TargetedAt(ev.Target)
	}
	s.exchange.Broadcast(s.roomID, model.Signal{
		Type:    ev.Kind,
		Payload: ev.Payload,
		Sender:  ev.Sender,
		Target:  ev.Target,
	}, pred)
}

func (s *Session) sendError(perr *protocol.Error) {
	if !s.Enqueue(model.Error{Type: model.KindError, Message: perr.Message}) {
		s.logger.Debug().
			Str("kind", perr.Kind.String()).
			Msg("send queue full, error event dropped")
	}
}
