package models

import "time"

// Gender is the self-declared gender a session matches with.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender validates a raw gender value.
func ParseGender(s string) (Gender, bool) {
	switch g := Gender(s); g {
	case GenderMale, GenderFemale, GenderOther:
		return g, true
	}
	return "", false
}

// Preference is the gender a session wants to be matched with.
type Preference string

const (
	PreferMale   Preference = "male"
	PreferFemale Preference = "female"
	PreferAny    Preference = "any"
)

// ParsePreference validates a raw match preference value.
func ParsePreference(s string) (Preference, bool) {
	switch p := Preference(s); p {
	case PreferMale, PreferFemale, PreferAny:
		return p, true
	}
	return "", false
}

// Accepts reports whether a partner of gender g satisfies p.
func (p Preference) Accepts(g Gender) bool {
	return p == PreferAny || string(p) == string(g)
}

// MatchStatus is the lifecycle state of a session.
type MatchStatus string

const (
	StatusUnset   MatchStatus = "unset"
	StatusWaiting MatchStatus = "waiting"
	StatusMatched MatchStatus = "matched"
)

// Snapshot is an immutable copy of a session's identity and preferences.
// Rooms keep one per member so the partner can still be described (and
// requeued) after the original session is gone.
type Snapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"username"`
	Color      string     `json:"color"`
	Gender     Gender     `json:"gender"`
	Preference Preference `json:"matchPreference"`
}

// Session is the authoritative per-connection state.
type Session struct {
	ID          string
	Name        string
	Color       string
	Gender      Gender
	Preference  Preference
	Status      MatchStatus
	RoomID      string
	Partner     *Snapshot
	ConnectedAt time.Time
}

// HasPreferences reports whether gender and preference were submitted.
func (s Session) HasPreferences() bool {
	return s.Gender != "" && s.Preference != ""
}

// Snapshot returns a value copy of the matchable attributes.
func (s Session) Snapshot() Snapshot {
	return Snapshot{
		ID:         s.ID,
		Name:       s.Name,
		Color:      s.Color,
		Gender:     s.Gender,
		Preference: s.Preference,
	}
}

// WaitingEntry is a pool record for a connection seeking a partner.
type WaitingEntry struct {
	Snapshot
	JoinedAt time.Time
}
