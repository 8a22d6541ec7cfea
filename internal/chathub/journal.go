package chathub

import (
	"time"

	"matchchat/backend/internal/models"
)

// JournalKind tells the Recorder what happened.
type JournalKind int

const (
	JournalRoomOpened JournalKind = iota + 1
	JournalRoomClosed
	JournalStats
)

func (k JournalKind) String() string {
	switch k {
	case JournalRoomOpened:
		return "room_opened"
	case JournalRoomClosed:
		return "room_closed"
	case JournalStats:
		return "stats"
	}
	return "unknown"
}

// JournalEvent is emitted by the Coordinator after a state change and
// consumed off the lock by the Recorder.
type JournalEvent struct {
	Kind JournalKind
	// Room is set for JournalRoomOpened and JournalRoomClosed. A closed room
	// still carries its message log so the archive can count it.
	Room   models.Room
	Reason string
	At     time.Time
	Stats  models.Stats
}
