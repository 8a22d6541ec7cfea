package models

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventSetPreferences  = "setPreferences"
	EventSendMessage     = "sendMessage"
	EventSkipMatch       = "skipMatch"
	EventRematch         = "rematch"
	EventGetWaitingCount = "getWaitingCount"
)

// Outbound event names.
const (
	EventConnected           = "connected"
	EventPreferencesSet      = "preferencesSet"
	EventNeedPreferences     = "needPreferences"
	EventAlreadyMatched      = "alreadyMatched"
	EventWaitingForMatch     = "waitingForMatch"
	EventWaitingUpdate       = "waitingUpdate"
	EventWaitingCount        = "waitingCount"
	EventMatchFound          = "matchFound"
	EventNewMessage          = "newMessage"
	EventMessageSent         = "messageSent"
	EventPartnerLeft         = "partnerLeft"
	EventPartnerDisconnected = "partnerDisconnected"
	EventPartnerSkipped      = "partnerSkipped"
	EventMatchSkipped        = "matchSkipped"
	EventError               = "error"
)

// InboundEvent is a client request. ConnID is stamped by the transport.
type InboundEvent struct {
	ConnID string          `json:"-"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type PreferencesPayload struct {
	Gender          string `json:"gender"`
	MatchPreference string `json:"matchPreference"`
}

type SendMessagePayload struct {
	Message string `json:"message"`
}

// Notification is an outbound event addressed to a single connection.
type Notification struct {
	To    string `json:"-"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ConnectedPayload struct {
	Message  string `json:"message"`
	SocketID string `json:"socketId"`
}

type PreferencesSetPayload struct {
	Message  string   `json:"message"`
	UserInfo Snapshot `json:"userInfo"`
}

// MessagePayload carries only a human readable text (needPreferences,
// partnerLeft, error).
type MessagePayload struct {
	Message string `json:"message"`
}

type AlreadyMatchedPayload struct {
	Partner Snapshot `json:"partner"`
	RoomID  string   `json:"roomId"`
}

// WaitingPayload is used by waitingForMatch and matchSkipped.
type WaitingPayload struct {
	Message      string `json:"message"`
	WaitingCount int    `json:"waitingCount"`
}

type WaitingUpdatePayload struct {
	WaitingCount int `json:"waitingCount"`
}

type WaitingCountPayload struct {
	Count int `json:"count"`
}

type MatchFoundPayload struct {
	Message string   `json:"message"`
	Partner Snapshot `json:"partner"`
	RoomID  string   `json:"roomId"`
}

// PartnerGonePayload is used by partnerDisconnected and partnerSkipped.
type PartnerGonePayload struct {
	Message string   `json:"message"`
	Partner Snapshot `json:"partner"`
}

// Stats is a point-in-time view of the matching engine.
type Stats struct {
	Waiting     int       `json:"waiting"`
	ActiveRooms int       `json:"activeRooms"`
	Online      int       `json:"online"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
