package memory

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_Rooms(t *testing.T) {
	ms := NewMemStore()

	room, err := ms.CreateRoom("sketching", true)
	require.NoError(t, err)
	assert.Len(t, room.Code, 10)
	assert.Equal(t, "sketching", room.Name)
	assert.True(t, room.Private)
	assert.False(t, room.CreatedAt.IsZero())

	got, err := ms.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Equal(t, room, got)

	_, err = ms.GetRoom("NOPE")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	other, err := ms.CreateRoom("second", false)
	require.NoError(t, err)
	assert.NotEqual(t, room.Code, other.Code)
}

func TestMemStore_JoinRoom(t *testing.T) {
	ms := NewMemStore()
	room, err := ms.CreateRoom("sketching", false)
	require.NoError(t, err)

	joinedRoom, err := ms.JoinRoom(room.Code, "alice")
	require.NoError(t, err)
	assert.Contains(t, joinedRoom.Participants, "alice")

	// Joining twice is idempotent.
	joinedRoom, err = ms.JoinRoom(room.Code, "alice")
	require.NoError(t, err)
	assert.Len(t, joinedRoom.Participants, 1)

	_, err = ms.JoinRoom("NOPE", "alice")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

// Returned rooms must be detached from the store: marshaling a result
// while other participants keep joining must not touch a map the store
// is mutating.
func TestMemStore_ConcurrentJoinAndRead(t *testing.T) {
	const iterations = 500

	ms := NewMemStore()
	room, err := ms.CreateRoom("sketching", false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			if _, err := ms.JoinRoom(room.Code, fmt.Sprintf("user%d", i)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for i := 0; i < iterations; i++ {
		got, err := ms.GetRoom(room.Code)
		require.NoError(t, err)
		_, err = json.Marshal(got)
		require.NoError(t, err)
	}
	<-done

	got, err := ms.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Len(t, got.Participants, iterations)
}

func TestMemStore_Canvas(t *testing.T) {
	ms := NewMemStore()
	room, err := ms.CreateRoom("sketching", false)
	require.NoError(t, err)

	canvas, err := ms.GetCanvas(room.Code)
	require.NoError(t, err)
	assert.Empty(t, canvas.Data)

	segments := []json.RawMessage{
		json.RawMessage(`{"x": 1, "y": 1, "color": "#000000", "size": 4}`),
		json.RawMessage(`{"x": 2, "y": 2, "color": "#ff0000", "size": 2}`),
	}
	saved, err := ms.PutCanvas(room.Code, segments)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	canvas, err = ms.GetCanvas(room.Code)
	require.NoError(t, err)
	assert.Equal(t, segments, canvas.Data)

	_, err = ms.GetCanvas("NOPE")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = ms.PutCanvas("NOPE", segments)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
