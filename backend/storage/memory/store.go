// Package memory holds room metadata and canvas snapshots in process
// memory. The relay never touches this store; it backs the HTTP API only.
package memory

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whiteboard-labs/whiteboard-relay/backend/model"
)

const roomCodeLen = 10

var ErrRoomNotFound = errors.New("room is not found")

type MemStore struct {
	mx       *sync.Mutex
	rooms    map[string]*model.Room
	canvases map[string]*model.CanvasState
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:       &sync.Mutex{},
		rooms:    make(map[string]*model.Room),
		canvases: make(map[string]*model.CanvasState),
	}
}

func (ms *MemStore) CreateRoom(name string, private bool) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room := &model.Room{
		Code:         generateRoomCode(),
		Name:         name,
		Private:      private,
		CreatedAt:    time.Now().UTC(),
		Participants: make(map[string]model.Participant),
	}
	ms.rooms[room.Code] = room
	return cloneRoom(room), nil
}

func (ms *MemStore) GetRoom(code string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (ms *MemStore) JoinRoom(code string, userID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room.Participants[userID] = model.Participant{ID: userID}
	return cloneRoom(room), nil
}

// cloneRoom copies a room so callers never hold a reference into the
// store; the live Participants map mutates under the store lock while
// handlers marshal responses outside it.
func cloneRoom(room *model.Room) *model.Room {
	clone := *room
	clone.Participants = make(map[string]model.Participant, len(room.Participants))
	for id, p := range room.Participants {
		clone.Participants[id] = p
	}
	return &clone
}

// GetCanvas returns the stored snapshot for a room, or an empty one if
// nothing was ever saved for it.
func (ms *MemStore) GetCanvas(code string) (*model.CanvasState, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.rooms[code]; !ok {
		return nil, ErrRoomNotFound
	}
	canvas, ok := ms.canvases[code]
	if !ok {
		canvas = &model.CanvasState{Data: []json.RawMessage{}}
		ms.canvases[code] = canvas
	}
	return canvas, nil
}

func (ms *MemStore) PutCanvas(code string, data []json.RawMessage) (*model.CanvasState, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.rooms[code]; !ok {
		return nil, ErrRoomNotFound
	}
	canvas := &model.CanvasState{
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	ms.canvases[code] = canvas
	return canvas, nil
}

func generateRoomCode() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:])[:roomCodeLen])
}
