package chathub

import "matchchat/backend/internal/models"

// Compatible reports whether a and b accept each other's gender.
func Compatible(a, b models.Snapshot) bool {
	return a.Preference.Accepts(b.Gender) && b.Preference.Accepts(a.Gender)
}

// FindMatch scans pool oldest first and returns the first entry that is
// mutually compatible with candidate. The candidate itself is never returned,
// even if it is already sitting in the pool.
func FindMatch(candidate models.WaitingEntry, pool []models.WaitingEntry) (models.WaitingEntry, bool) {
	for _, entry := range pool {
		if entry.ID == candidate.ID {
			continue
		}
		if Compatible(candidate.Snapshot, entry.Snapshot) {
			return entry, true
		}
	}
	return models.WaitingEntry{}, false
}
