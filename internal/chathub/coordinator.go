package chathub

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/localization"
	"matchchat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Texts resolves human readable notification messages.
type Texts interface {
	GetString(lang, key string) string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLanguage(lang string) Option {
	return func(c *Coordinator) { c.lang = lang }
}

// WithJournal makes the Coordinator report room and stats changes on ch.
// Sends never block; when ch is full the event is dropped.
func WithJournal(ch chan<- JournalEvent) Option {
	return func(c *Coordinator) { c.journal = ch }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIdentity(fn IdentityFunc) Option {
	return func(c *Coordinator) { c.identity = fn }
}

func WithRoomIDs(fn RoomIDFunc) Option {
	return func(c *Coordinator) { c.roomIDs = fn }
}

// WithMaxMessageLength caps chat messages at n runes. Zero disables the cap.
func WithMaxMessageLength(n int) Option {
	return func(c *Coordinator) { c.maxMessageLength = n }
}

// Coordinator is the matching state machine. Every event runs under one
// lock covering the registry, the pool and the room table, and returns the
// notifications the transport must deliver.
type Coordinator struct {
	mu       sync.RWMutex
	sessions *SessionRegistry
	pool     *WaitingPool
	rooms    *RoomManager

	texts            Texts
	lang             string
	journal          chan<- JournalEvent
	now              func() time.Time
	identity         IdentityFunc
	roomIDs          RoomIDFunc
	maxMessageLength int
}

func NewCoordinator(texts Texts, opts ...Option) *Coordinator {
	c := &Coordinator{
		texts: texts,
		lang:  localization.DefaultLanguage,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessions = NewSessionRegistry(c.identity, c.now)
	c.pool = NewWaitingPool()
	c.rooms = NewRoomManager(c.sessions, c.pool, c.roomIDs, c.now)
	return c
}

// Handle decodes and dispatches an inbound event for ev.ConnID.
func (c *Coordinator) Handle(ev models.InboundEvent) ([]models.Notification, error) {
	switch ev.Event {
	case models.EventSetPreferences:
		var p models.PreferencesPayload
		if err := decodePayload(ev.Data, &p); err != nil {
			return c.reject(ev.ConnID, "invalid_preferences", apperrors.InvalidInput("data", err.Error()))
		}
		return c.SetPreferences(ev.ConnID, p.Gender, p.MatchPreference)
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := decodePayload(ev.Data, &p); err != nil {
			return c.reject(ev.ConnID, "invalid_event", apperrors.InvalidInput("data", err.Error()))
		}
		return c.SendMessage(ev.ConnID, p.Message)
	case models.EventSkipMatch:
		return c.Skip(ev.ConnID)
	case models.EventRematch:
		return c.Rematch(ev.ConnID)
	case models.EventGetWaitingCount:
		return c.WaitingCount(ev.ConnID), nil
	}
	return c.reject(ev.ConnID, "invalid_event", apperrors.InvalidEvent(ev.Event))
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Connect registers a session for a freshly accepted connection.
func (c *Coordinator) Connect(connID string) ([]models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.sessions.Create(connID); err != nil {
		return nil, err
	}
	c.emitStats()
	return []models.Notification{
		notify(connID, models.EventConnected, models.ConnectedPayload{
			Message:  c.text("connected"),
			SocketID: connID,
		}),
	}, nil
}

// SetPreferences stores gender and preference and puts the connection in
// the pool. A connection already in a live room gets alreadyMatched and
// nothing changes.
func (c *Coordinator) SetPreferences(connID, gender, preference string) ([]models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.sessions.Get(connID)
	if err != nil {
		return nil, err
	}
	if _, _, err := parsePreferences(gender, preference); err != nil {
		return c.reject(connID, "invalid_preferences", err)
	}

	if sess.RoomID != "" {
		if room, err := c.rooms.GetRoom(sess.RoomID); err == nil {
			partner, _ := room.Partner(connID)
			return []models.Notification{
				notify(connID, models.EventAlreadyMatched, models.AlreadyMatchedPayload{
					Partner: partner,
					RoomID:  room.ID,
				}),
			}, nil
		}
		_ = c.sessions.DetachRoom(connID)
	}

	// Resubmission moves the connection to the back of the queue.
	c.pool.Remove(connID)

	sess, err = c.sessions.SetPreferences(connID, gender, preference)
	if err != nil {
		return nil, err
	}
	notes := []models.Notification{
		notify(connID, models.EventPreferencesSet, models.PreferencesSetPayload{
			Message:  c.text("preferences_set"),
			UserInfo: sess.Snapshot(),
		}),
	}

	if err := c.enqueue(sess.Snapshot()); err != nil {
		return notes, err
	}
	matched, ok := c.tryMatch(connID, "match_found")
	if ok {
		notes = append(notes, matched...)
	} else {
		size := c.pool.Size()
		notes = append(notes, notify(connID, models.EventWaitingForMatch, models.WaitingPayload{
			Message:      c.text("waiting_for_match", size),
			WaitingCount: size,
		}))
	}
	c.emitStats()
	return notes, nil
}

// SendMessage relays text to the partner and echoes it back to the sender.
// Blank messages are dropped silently.
func (c *Coordinator) SendMessage(connID, text string) ([]models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.sessions.Get(connID)
	if err != nil {
		return nil, err
	}
	if sess.RoomID == "" {
		return c.reject(connID, "not_in_room", apperrors.NotInRoom(connID))
	}
	room, err := c.rooms.GetRoom(sess.RoomID)
	if err != nil {
		return c.reject(connID, "room_not_found", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if c.maxMessageLength > 0 && utf8.RuneCountInString(text) > c.maxMessageLength {
		return c.reject(connID, "message_too_long",
			apperrors.InvalidInput("message", fmt.Sprintf("longer than %d characters", c.maxMessageLength)),
			c.maxMessageLength)
	}

	msg := models.Message{
		RoomID:      room.ID,
		SenderID:    connID,
		SenderName:  sess.Name,
		SenderColor: sess.Color,
		Text:        text,
		Timestamp:   c.now(),
	}
	if err := c.rooms.AppendMessage(room.ID, msg); err != nil {
		return c.reject(connID, "room_not_found", err)
	}

	partner, _ := room.Partner(connID)
	own := msg
	own.IsOwnMessage = true
	return []models.Notification{
		notify(partner.ID, models.EventNewMessage, msg),
		notify(connID, models.EventMessageSent, own),
	}, nil
}

// Skip leaves the current room. The partner is requeued and, if connID has
// preferences, so is connID.
func (c *Coordinator) Skip(connID string) ([]models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.sessions.Get(connID)
	if err != nil {
		return nil, err
	}

	var notes []models.Notification
	if sess.RoomID != "" {
		notes = c.leaveRoom(sess, models.CloseSkip)
	}

	if !sess.HasPreferences() {
		notes = append(notes, notify(connID, models.EventNeedPreferences, models.MessagePayload{
			Message: c.text("need_preferences"),
		}))
		c.emitStats()
		return notes, nil
	}

	if err := c.enqueue(sess.Snapshot()); err != nil {
		return notes, err
	}
	size := c.pool.Size()
	notes = append(notes, notify(connID, models.EventMatchSkipped, models.WaitingPayload{
		Message:      c.text("match_skipped"),
		WaitingCount: size,
	}))
	if matched, ok := c.tryMatch(connID, "match_found"); ok {
		notes = append(notes, matched...)
	}
	c.emitStats()
	return notes, nil
}

// Rematch leaves the current room (if any) and searches again.
func (c *Coordinator) Rematch(connID string) ([]models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.sessions.Get(connID)
	if err != nil {
		return nil, err
	}

	var notes []models.Notification
	if sess.RoomID != "" {
		notes = c.leaveRoom(sess, models.CloseRematch)
	}

	if !sess.HasPreferences() {
		notes = append(notes, notify(connID, models.EventNeedPreferences, models.MessagePayload{
			Message: c.text("need_preferences"),
		}))
		c.emitStats()
		return notes, nil
	}

	if err := c.enqueue(sess.Snapshot()); err != nil {
		return notes, err
	}
	if matched, ok := c.tryMatch(connID, "rematch_found"); ok {
		notes = append(notes, matched...)
	} else {
		size := c.pool.Size()
		notes = append(notes, notify(connID, models.EventWaitingForMatch, models.WaitingPayload{
			Message:      c.text("searching_again", size),
			WaitingCount: size,
		}))
	}
	c.emitStats()
	return notes, nil
}

// Disconnect tears down everything connID owns. Calling it again for the
// same id is a no-op.
func (c *Coordinator) Disconnect(connID string) ([]models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.sessions.Get(connID)
	if err != nil {
		return nil, nil
	}

	var notes []models.Notification
	if sess.RoomID != "" {
		notes = c.leaveRoom(sess, models.CloseDisconnect)
	}
	c.pool.Remove(connID)
	c.sessions.Remove(connID)

	size := c.pool.Size()
	for _, id := range c.pool.IDs() {
		notes = append(notes, notify(id, models.EventWaitingUpdate, models.WaitingUpdatePayload{
			WaitingCount: size,
		}))
	}
	log.Debug().Str("connId", connID).Int("waiting", size).Msg("session removed")
	c.emitStats()
	return notes, nil
}

// WaitingCount answers a getWaitingCount query.
func (c *Coordinator) WaitingCount(connID string) []models.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return []models.Notification{
		notify(connID, models.EventWaitingCount, models.WaitingCountPayload{Count: c.pool.Size()}),
	}
}

// leaveRoom dissolves the room sess is in, notifies the partner and puts the
// partner back in the pool from its room snapshot. sess itself is detached
// but not requeued.
func (c *Coordinator) leaveRoom(sess models.Session, reason string) []models.Notification {
	_ = c.sessions.DetachRoom(sess.ID)

	room, ok := c.rooms.Dissolve(sess.RoomID)
	if !ok {
		return nil
	}
	c.emit(JournalEvent{Kind: JournalRoomClosed, Room: room, Reason: reason, At: c.now()})

	partner, _ := room.Partner(sess.ID)
	leaver, _ := room.Member(sess.ID)
	log.Info().Str("roomId", room.ID).Str("connId", sess.ID).Str("partnerId", partner.ID).
		Str("reason", reason).Msg("room dissolved")

	if _, err := c.sessions.Get(partner.ID); err != nil {
		return nil
	}
	_ = c.sessions.DetachRoom(partner.ID)

	var notes []models.Notification
	switch reason {
	case models.CloseSkip:
		notes = append(notes, notify(partner.ID, models.EventPartnerSkipped, models.PartnerGonePayload{
			Message: c.text("partner_skipped"),
			Partner: leaver,
		}))
	case models.CloseDisconnect:
		notes = append(notes, notify(partner.ID, models.EventPartnerDisconnected, models.PartnerGonePayload{
			Message: c.text("partner_disconnected"),
			Partner: leaver,
		}))
	default:
		notes = append(notes, notify(partner.ID, models.EventPartnerLeft, models.MessagePayload{
			Message: c.text("partner_left"),
		}))
	}

	if err := c.enqueue(partner); err != nil {
		log.Error().Err(err).Str("connId", partner.ID).Msg("failed to requeue partner")
		return notes
	}
	size := c.pool.Size()
	notes = append(notes, notify(partner.ID, models.EventWaitingForMatch, models.WaitingPayload{
		Message:      c.text("searching_again", size),
		WaitingCount: size,
	}))
	if matched, ok := c.tryMatch(partner.ID, "match_found"); ok {
		notes = append(notes, matched...)
	}
	return notes
}

// enqueue puts snap in the pool unless it is already waiting.
func (c *Coordinator) enqueue(snap models.Snapshot) error {
	if !c.pool.Contains(snap.ID) {
		if err := c.pool.Add(models.WaitingEntry{Snapshot: snap, JoinedAt: c.now()}); err != nil {
			log.Error().Err(err).Str("connId", snap.ID).Msg("duplicate pool insertion")
			return err
		}
	}
	return c.sessions.MarkWaiting(snap.ID)
}

// tryMatch looks for a partner for the waiting connection connID and opens a
// room on success. Every pool insertion is followed by a call, so no two
// waiting connections are ever compatible with each other.
func (c *Coordinator) tryMatch(connID, textKey string) ([]models.Notification, bool) {
	candidate, ok := c.pool.Get(connID)
	if !ok {
		return nil, false
	}

	found, ok := FindMatch(candidate, c.pool.Entries())
	if !ok {
		return nil, false
	}
	room, err := c.rooms.CreateRoom(connID, found.ID)
	if err != nil {
		log.Error().Err(err).Str("connId", connID).Str("partnerId", found.ID).Msg("failed to create room")
		return nil, false
	}
	c.emit(JournalEvent{Kind: JournalRoomOpened, Room: room, At: room.CreatedAt})
	log.Info().Str("roomId", room.ID).Str("connId", connID).Str("partnerId", found.ID).Msg("match found")

	msg := c.text(textKey)
	return []models.Notification{
		notify(connID, models.EventMatchFound, models.MatchFoundPayload{
			Message: msg, Partner: room.Members[1], RoomID: room.ID,
		}),
		notify(found.ID, models.EventMatchFound, models.MatchFoundPayload{
			Message: msg, Partner: room.Members[0], RoomID: room.ID,
		}),
	}, true
}

// reject builds the error notification for a user-facing failure.
func (c *Coordinator) reject(connID, key string, err error, args ...any) ([]models.Notification, error) {
	return []models.Notification{
		notify(connID, models.EventError, models.MessagePayload{Message: c.text(key, args...)}),
	}, err
}

func (c *Coordinator) text(key string, args ...any) string {
	s := key
	if c.texts != nil {
		s = c.texts.GetString(c.lang, key)
	}
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

func (c *Coordinator) emit(ev JournalEvent) {
	if c.journal == nil {
		return
	}
	select {
	case c.journal <- ev:
	default:
		log.Warn().Stringer("kind", ev.Kind).Str("roomId", ev.Room.ID).Msg("journal full, dropping event")
	}
}

func (c *Coordinator) emitStats() {
	if c.journal == nil {
		return
	}
	c.emit(JournalEvent{Kind: JournalStats, At: c.now(), Stats: c.stats()})
}

func notify(to, event string, data any) models.Notification {
	return models.Notification{To: to, Event: event, Data: data}
}

// Stats returns a consistent snapshot of the engine's counters.
func (c *Coordinator) Stats() models.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats()
}

func (c *Coordinator) stats() models.Stats {
	return models.Stats{
		Waiting:     c.pool.Size(),
		ActiveRooms: c.rooms.Len(),
		Online:      c.sessions.Len(),
		UpdatedAt:   c.now(),
	}
}

func (c *Coordinator) Session(connID string) (models.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions.Get(connID)
}

func (c *Coordinator) Room(roomID string) (models.Room, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms.GetRoom(roomID)
}

func (c *Coordinator) IsWaiting(connID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.Contains(connID)
}

// WaitingIDs lists waiting connections, oldest first.
func (c *Coordinator) WaitingIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.IDs()
}

// CheckConsistency verifies the cross-collection invariants: waiting and
// matched are mutually exclusive, every room has two members attached to it,
// and the pool never holds a compatible pair.
func (c *Coordinator) CheckConsistency() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.pool.Entries()
	for i, a := range entries {
		for _, b := range entries[i+1:] {
			if Compatible(a.Snapshot, b.Snapshot) {
				return fmt.Errorf("waiting entries %s and %s are compatible but unmatched", a.ID, b.ID)
			}
		}
	}

	for _, id := range c.pool.IDs() {
		s, err := c.sessions.Get(id)
		if err != nil {
			return fmt.Errorf("pool entry %s has no session", id)
		}
		if s.Status != models.StatusWaiting || s.RoomID != "" {
			return fmt.Errorf("pool entry %s has status %s room %q", id, s.Status, s.RoomID)
		}
	}
	for _, id := range c.sessions.IDs() {
		s, _ := c.sessions.Get(id)
		if s.Status == models.StatusWaiting && !c.pool.Contains(id) {
			return fmt.Errorf("session %s is waiting outside the pool", id)
		}
		if s.Status == models.StatusMatched {
			if _, err := c.rooms.GetRoom(s.RoomID); err != nil {
				return fmt.Errorf("session %s is matched to missing room %s", id, s.RoomID)
			}
		}
	}
	for _, room := range c.rooms.Rooms() {
		if room.Members[0].ID == room.Members[1].ID {
			return fmt.Errorf("room %s pairs %s with itself", room.ID, room.Members[0].ID)
		}
		for _, m := range room.Members {
			s, err := c.sessions.Get(m.ID)
			if err != nil {
				return fmt.Errorf("room %s member %s has no session", room.ID, m.ID)
			}
			if s.RoomID != room.ID || s.Status != models.StatusMatched {
				return fmt.Errorf("room %s member %s is not attached", room.ID, m.ID)
			}
		}
	}
	return nil
}
