package chathub

import (
	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/models"
)

// WaitingPool is the insertion-ordered set of connections seeking a partner.
// Like SessionRegistry it relies on the Coordinator for locking.
type WaitingPool struct {
	entries []models.WaitingEntry
	index   map[string]struct{}
}

func NewWaitingPool() *WaitingPool {
	return &WaitingPool{index: make(map[string]struct{})}
}

// Add appends entry to the back of the pool. A connection may appear only once.
func (p *WaitingPool) Add(entry models.WaitingEntry) error {
	if _, ok := p.index[entry.ID]; ok {
		return apperrors.AlreadyWaiting(entry.ID)
	}
	p.entries = append(p.entries, entry)
	p.index[entry.ID] = struct{}{}
	return nil
}

// Remove drops connID from the pool and reports whether it was present.
func (p *WaitingPool) Remove(connID string) bool {
	if _, ok := p.index[connID]; !ok {
		return false
	}
	delete(p.index, connID)
	for i, e := range p.entries {
		if e.ID == connID {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
	return true
}

func (p *WaitingPool) Contains(connID string) bool {
	_, ok := p.index[connID]
	return ok
}

// Get returns the pool entry for connID.
func (p *WaitingPool) Get(connID string) (models.WaitingEntry, bool) {
	if !p.Contains(connID) {
		return models.WaitingEntry{}, false
	}
	for _, e := range p.entries {
		if e.ID == connID {
			return e, true
		}
	}
	return models.WaitingEntry{}, false
}

func (p *WaitingPool) Size() int { return len(p.entries) }

// Entries returns a copy of the pool, oldest first.
func (p *WaitingPool) Entries() []models.WaitingEntry {
	out := make([]models.WaitingEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// IDs returns the waiting connection ids, oldest first.
func (p *WaitingPool) IDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.ID
	}
	return ids
}
