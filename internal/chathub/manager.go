package chathub

import (
	"context"

	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// ManagerService is the hub. Its Run loop is the only goroutine that touches
// Clients, and it feeds every transport event to the Coordinator one at a time.
type ManagerService struct {
	Clients map[string]Client

	// Channels
	IncomingCh   chan models.InboundEvent
	RegisterCh   chan Client
	UnregisterCh chan Client

	Coordinator *Coordinator

	done chan struct{}
}

func NewManagerService(c *Coordinator) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		IncomingCh:   make(chan models.InboundEvent),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Coordinator:  c,
		done:         make(chan struct{}),
	}
}

// Run processes hub events until ctx is cancelled, then disconnects and
// closes every remaining client.
func (m *ManagerService) Run(ctx context.Context) {
	log.Info().Msg("hub started")
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			log.Info().Msg("hub stopped")
			return

		case client := <-m.RegisterCh:
			m.register(client)

		case client := <-m.UnregisterCh:
			m.unregister(client)

		case ev := <-m.IncomingCh:
			notes, err := m.Coordinator.Handle(ev)
			logEventError(ev.ConnID, ev.Event, err)
			m.dispatch(notes)
		}
	}
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// Register hands client to the hub. It returns false if the hub has stopped.
func (m *ManagerService) Register(client Client) bool {
	select {
	case m.RegisterCh <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) Unregister(client Client) bool {
	select {
	case m.UnregisterCh <- client:
		return true
	case <-m.done:
		return false
	}
}

// Submit queues an inbound event. It returns false if the hub has stopped.
func (m *ManagerService) Submit(ev models.InboundEvent) bool {
	select {
	case m.IncomingCh <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) register(client Client) {
	id := client.GetUserID()
	if _, exists := m.Clients[id]; exists {
		log.Error().Str("connId", id).Msg("duplicate connection id, closing new client")
		client.Close()
		return
	}

	notes, err := m.Coordinator.Connect(id)
	if err != nil {
		log.Error().Err(err).Str("connId", id).Msg("failed to create session")
		client.Close()
		return
	}
	m.Clients[id] = client
	log.Info().Str("connId", id).Int("clients", len(m.Clients)).Msg("client registered")
	m.dispatch(notes)
}

func (m *ManagerService) unregister(client Client) {
	id := client.GetUserID()
	current, ok := m.Clients[id]
	if !ok || current != client {
		return
	}
	delete(m.Clients, id)
	client.Close()

	notes, err := m.Coordinator.Disconnect(id)
	logEventError(id, "disconnect", err)
	log.Info().Str("connId", id).Int("clients", len(m.Clients)).Msg("client unregistered")
	m.dispatch(notes)
}

// dispatch delivers notifications best-effort. A vanished or saturated
// client is skipped.
func (m *ManagerService) dispatch(notes []models.Notification) {
	for _, n := range notes {
		client, ok := m.Clients[n.To]
		if !ok {
			log.Debug().Str("connId", n.To).Str("event", n.Event).Msg("recipient gone, notification dropped")
			continue
		}
		select {
		case client.GetSendChannel() <- n:
		default:
			log.Warn().Str("connId", n.To).Str("event", n.Event).Msg("send buffer full, notification dropped")
		}
	}
}

func (m *ManagerService) closeAll() {
	for id, client := range m.Clients {
		delete(m.Clients, id)
		client.Close()
		if _, err := m.Coordinator.Disconnect(id); err != nil {
			log.Warn().Err(err).Str("connId", id).Msg("disconnect on shutdown failed")
		}
	}
}

func logEventError(connID, event string, err error) {
	if err == nil {
		return
	}
	if apperrors.CodeOf(err).UserFacing() {
		log.Debug().Err(err).Str("connId", connID).Str("event", event).Msg("event rejected")
		return
	}
	log.Error().Err(err).Str("connId", connID).Str("event", event).Msg("event failed")
}
