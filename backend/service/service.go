// Package service wires the room store and the relay registry to the two
// servers.
package service

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/whiteboard-labs/whiteboard-relay/backend/model"
	"github.com/whiteboard-labs/whiteboard-relay/backend/relay"
)

var (
	ErrCreate  = errors.New("unable to create room")
	ErrGet     = errors.New("unable to get room")
	ErrJoin    = errors.New("unable to join room")
	ErrCanvas  = errors.New("unable to access canvas state")
	ErrConnect = errors.New("unable to connect")
)

type (
	RoomStore interface {
		CreateRoom(name string, private bool) (*model.Room, error)
		GetRoom(code string) (*model.Room, error)
		JoinRoom(code string, userID string) (*model.Room, error)
		GetCanvas(code string) (*model.CanvasState, error)
		PutCanvas(code string, data []json.RawMessage) (*model.CanvasState, error)
	}

	Service struct {
		store    RoomStore
		registry *relay.Registry
		logger   zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Registry  *relay.Registry
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:    cfg.RoomStore,
		registry: cfg.Registry,
		logger:   cfg.Logger.With().Str("component", "api").Logger(),
	}
}

// CreateRelaySession binds a new connection to a room group. The room code
// is not validated against the store: the HTTP API is the authorization
// boundary, and connecting to an unknown code starts an empty group.
func (svc *Service) CreateRelaySession(roomID, connID string, wire model.Wire) (*relay.Session, error) {
	sess := relay.NewSession(connID, roomID, svc.registry, wire, &svc.logger)
	if err := sess.Connect(); err != nil {
		return nil, errors.Join(ErrConnect, err)
	}
	svc.logger.Debug().
		Str("connID", connID).
		Str("roomID", roomID).
		Msg("relay session connected")
	return sess, nil
}

func (svc *Service) CreateRoom(name string, private bool) (*model.Room, error) {
	room, err := svc.store.CreateRoom(name, private)
	if err != nil {
		return nil, errors.Join(ErrCreate, err)
	}
	svc.logger.Debug().
		Str("roomCode", room.Code).
		Str("name", room.Name).
		Msg("room created")
	return room, nil
}

func (svc *Service) GetRoom(code string) (*model.Room, error) {
	room, err := svc.store.GetRoom(code)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return room, nil
}

func (svc *Service) JoinRoom(code, userID string) (*model.Room, error) {
	room, err := svc.store.JoinRoom(code, userID)
	if err != nil {
		return nil, errors.Join(ErrJoin, err)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomCode", code).
		Msg("user joined room")
	return room, nil
}

func (svc *Service) GetCanvas(code string) (*model.CanvasState, error) {
	canvas, err := svc.store.GetCanvas(code)
	if err != nil {
		return nil, errors.Join(ErrCanvas, err)
	}
	return canvas, nil
}

func (svc *Service) PutCanvas(code string, data []json.RawMessage) (*model.CanvasState, error) {
	canvas, err := svc.store.PutCanvas(code, data)
	if err != nil {
		return nil, errors.Join(ErrCanvas, err)
	}
	svc.logger.Debug().
		Str("roomCode", code).
		Int("segments", len(data)).
		Msg("canvas snapshot saved")
	return canvas, nil
}

// Stats reports live relay occupancy for the stats endpoint.
func (svc *Service) Stats() (rooms, conns int) {
	return svc.registry.Stats()
}
