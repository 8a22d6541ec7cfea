package chathub

import "matchchat/backend/internal/models"

// Client is the interface for any type of connection (e.g., WebSocket, Telegram).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetUserID returns the connection identifier. It must stay stable for
	// the lifetime of the connection.
	GetUserID() string

	// GetSendChannel returns the channel to which the ManagerService (hub) sends
	// notifications intended for this specific client. It is a send-only channel.
	GetSendChannel() chan<- models.Notification

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's send side. The hub calls it exactly once,
	// after the client has been unregistered.
	Close()
}
