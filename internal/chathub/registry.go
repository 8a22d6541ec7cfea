package chathub

import (
	"time"

	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/models"
)

// SessionRegistry owns the per-connection Session records.
// It is not safe for concurrent use; the Coordinator serializes access.
type SessionRegistry struct {
	sessions map[string]*models.Session
	identity IdentityFunc
	now      func() time.Time
}

func NewSessionRegistry(identity IdentityFunc, now func() time.Time) *SessionRegistry {
	if identity == nil {
		identity = GenerateIdentity
	}
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		sessions: make(map[string]*models.Session),
		identity: identity,
		now:      now,
	}
}

// parsePreferences validates the raw gender and match preference pair.
func parsePreferences(gender, preference string) (models.Gender, models.Preference, error) {
	g, okG := models.ParseGender(gender)
	p, okP := models.ParsePreference(preference)
	if !okG || !okP {
		return "", "", apperrors.InvalidPreference(gender, preference)
	}
	return g, p, nil
}

// Create registers an unmatched session for connID.
func (r *SessionRegistry) Create(connID string) (models.Session, error) {
	if _, ok := r.sessions[connID]; ok {
		return models.Session{}, apperrors.AlreadyExists("session " + connID)
	}
	s := &models.Session{
		ID:          connID,
		Status:      models.StatusUnset,
		ConnectedAt: r.now(),
	}
	r.sessions[connID] = s
	return *s, nil
}

// SetPreferences validates and stores gender and preference. The display
// identity is generated once per connection and kept on later calls.
func (r *SessionRegistry) SetPreferences(connID, gender, preference string) (models.Session, error) {
	g, p, err := parsePreferences(gender, preference)
	if err != nil {
		return models.Session{}, err
	}
	s, ok := r.sessions[connID]
	if !ok {
		return models.Session{}, apperrors.NotFound("session " + connID)
	}
	if s.Name == "" {
		s.Name, s.Color = r.identity()
	}
	s.Gender = g
	s.Preference = p
	s.Status = models.StatusUnset
	return *s, nil
}

func (r *SessionRegistry) Get(connID string) (models.Session, error) {
	s, ok := r.sessions[connID]
	if !ok {
		return models.Session{}, apperrors.NotFound("session " + connID)
	}
	return *s, nil
}

// AttachRoom marks connID as matched into roomID with the given partner.
func (r *SessionRegistry) AttachRoom(connID, roomID string, partner models.Snapshot) error {
	s, ok := r.sessions[connID]
	if !ok {
		return apperrors.NotFound("session " + connID)
	}
	s.Status = models.StatusMatched
	s.RoomID = roomID
	s.Partner = &partner
	return nil
}

// DetachRoom clears the room reference. The last partner snapshot is dropped as well.
func (r *SessionRegistry) DetachRoom(connID string) error {
	s, ok := r.sessions[connID]
	if !ok {
		return apperrors.NotFound("session " + connID)
	}
	s.Status = models.StatusUnset
	s.RoomID = ""
	s.Partner = nil
	return nil
}

func (r *SessionRegistry) MarkWaiting(connID string) error {
	s, ok := r.sessions[connID]
	if !ok {
		return apperrors.NotFound("session " + connID)
	}
	s.Status = models.StatusWaiting
	return nil
}

// Remove deletes the session. Removing an unknown id is a no-op.
func (r *SessionRegistry) Remove(connID string) bool {
	if _, ok := r.sessions[connID]; !ok {
		return false
	}
	delete(r.sessions, connID)
	return true
}

func (r *SessionRegistry) Len() int { return len(r.sessions) }

// IDs returns the registered connection ids in no particular order.
func (r *SessionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
