package chathub

import (
	"fmt"
	"strings"
	"time"

	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/models"

	"github.com/google/uuid"
)

// RoomIDFunc derives a room id from the creation time.
type RoomIDFunc func(t time.Time) string

// NewRoomID returns "room_<unix millis>_<9 random hex chars>".
func NewRoomID(t time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("room_%d_%s", t.UnixMilli(), random[:9])
}

// RoomManager creates and dissolves two-party rooms. It keeps the session
// registry and the waiting pool in step with the room table.
type RoomManager struct {
	rooms    map[string]*models.Room
	sessions *SessionRegistry
	pool     *WaitingPool
	newID    RoomIDFunc
	now      func() time.Time
}

func NewRoomManager(sessions *SessionRegistry, pool *WaitingPool, newID RoomIDFunc, now func() time.Time) *RoomManager {
	if newID == nil {
		newID = NewRoomID
	}
	if now == nil {
		now = time.Now
	}
	return &RoomManager{
		rooms:    make(map[string]*models.Room),
		sessions: sessions,
		pool:     pool,
		newID:    newID,
		now:      now,
	}
}

// CreateRoom pairs a and b. Both sessions are checked before anything is
// mutated, so either both end up attached or nothing changes.
func (m *RoomManager) CreateRoom(a, b string) (models.Room, error) {
	if a == b {
		return models.Room{}, apperrors.Conflict("cannot pair a session with itself")
	}
	sa, err := m.sessions.Get(a)
	if err != nil {
		return models.Room{}, err
	}
	sb, err := m.sessions.Get(b)
	if err != nil {
		return models.Room{}, err
	}
	for _, s := range []models.Session{sa, sb} {
		if _, live := m.rooms[s.RoomID]; s.RoomID != "" && live {
			return models.Room{}, apperrors.Conflict("session " + s.ID + " is already in room " + s.RoomID)
		}
	}

	created := m.now()
	id := m.newID(created)
	if _, dup := m.rooms[id]; dup {
		return models.Room{}, apperrors.AlreadyExists("room " + id)
	}
	room := &models.Room{
		ID:        id,
		Members:   [2]models.Snapshot{sa.Snapshot(), sb.Snapshot()},
		CreatedAt: created,
	}
	m.rooms[id] = room

	// Both sessions were just read, so attaching cannot fail.
	_ = m.sessions.AttachRoom(a, id, room.Members[1])
	_ = m.sessions.AttachRoom(b, id, room.Members[0])
	m.pool.Remove(a)
	m.pool.Remove(b)

	return copyRoom(room), nil
}

func (m *RoomManager) GetRoom(roomID string) (models.Room, error) {
	room, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, apperrors.RoomNotFound(roomID)
	}
	return copyRoom(room), nil
}

// AppendMessage logs msg in the room. Only the two members may write.
func (m *RoomManager) AppendMessage(roomID string, msg models.Message) error {
	room, ok := m.rooms[roomID]
	if !ok {
		return apperrors.RoomNotFound(roomID)
	}
	if !room.Has(msg.SenderID) {
		return apperrors.NotInRoom(msg.SenderID)
	}
	msg.RoomID = roomID
	room.Messages = append(room.Messages, msg)
	return nil
}

// Dissolve removes the room and its log, returning what was removed.
// Dissolving an unknown room is a no-op.
func (m *RoomManager) Dissolve(roomID string) (models.Room, bool) {
	room, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	delete(m.rooms, roomID)
	return *room, true
}

func (m *RoomManager) Len() int { return len(m.rooms) }

// Rooms returns copies of every live room.
func (m *RoomManager) Rooms() []models.Room {
	out := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, copyRoom(r))
	}
	return out
}

func copyRoom(r *models.Room) models.Room {
	c := *r
	c.Messages = append([]models.Message(nil), r.Messages...)
	return c
}
