package models

import "time"

// Room is one live two-party conversation. Members are frozen at match time.
type Room struct {
	ID        string
	Members   [2]Snapshot
	CreatedAt time.Time
	Messages  []Message
}

// Has reports whether connID is one of the two members.
func (r Room) Has(connID string) bool {
	return r.Members[0].ID == connID || r.Members[1].ID == connID
}

// Member returns the snapshot of connID taken when the room was created.
func (r Room) Member(connID string) (Snapshot, bool) {
	for _, m := range r.Members {
		if m.ID == connID {
			return m, true
		}
	}
	return Snapshot{}, false
}

// Partner returns the other member of the room.
func (r Room) Partner(connID string) (Snapshot, bool) {
	switch connID {
	case r.Members[0].ID:
		return r.Members[1], true
	case r.Members[1].ID:
		return r.Members[0], true
	}
	return Snapshot{}, false
}

// ChatRoom is the archived record of a room. Message text is never stored.
type ChatRoom struct {
	// RoomID is the time+random identifier of the room.
	RoomID string `gorm:"primaryKey"`

	User1ID     string `gorm:"index"`
	User1Name   string
	User1Gender string
	User2ID     string `gorm:"index"`
	User2Name   string
	User2Gender string

	// IsActive is true until the room is dissolved.
	IsActive  bool `gorm:"index"`
	StartedAt time.Time
	EndedAt   *time.Time
	// CloseReason is one of the Close* constants.
	CloseReason  string
	MessageCount int
}

const (
	CloseSkip       = "skip"
	CloseRematch    = "rematch"
	CloseDisconnect = "disconnect"
	CloseRestart    = "restart"
)

// NewChatRoom builds the archive record for a freshly created room.
func NewChatRoom(r Room) *ChatRoom {
	return &ChatRoom{
		RoomID:      r.ID,
		User1ID:     r.Members[0].ID,
		User1Name:   r.Members[0].Name,
		User1Gender: string(r.Members[0].Gender),
		User2ID:     r.Members[1].ID,
		User2Name:   r.Members[1].Name,
		User2Gender: string(r.Members[1].Gender),
		IsActive:    true,
		StartedAt:   r.CreatedAt,
	}
}
