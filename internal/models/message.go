package models

import "time"

// Message is one chat line appended to a room's log.
type Message struct {
	RoomID       string    `json:"-"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderColor  string    `json:"senderColor"`
	Text         string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	IsOwnMessage bool      `json:"isOwnMessage"`
}
