// Package waitlist maintains the priority-ordered list of patients waiting for
// an organ.
//
// Entries are kept in a slice sorted by descending priority. A new entry is
// placed after every existing entry with the same or higher priority, so
// patients with equal priority keep their insertion order. Positions are
// derived from the slice index and never stored.
//
// All operations are serialized through a read/write mutex: mutations take the
// write lock, traversals the read lock, so a traversal never observes a
// partially applied insertion or removal.
package waitlist

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"transplantcore/pkg/domain"
)

// Waitlist is a concurrency-safe, priority-ordered collection of patients.
type Waitlist struct {
	mu      sync.RWMutex
	entries []domain.Entry
	drawer  PriorityDrawer
}

// New returns an empty waitlist drawing priorities from drawer. A nil drawer
// selects a randomly seeded RandomDrawer.
func New(drawer PriorityDrawer) *Waitlist {
	if drawer == nil {
		drawer = NewRandomDrawer(0)
	}
	return &Waitlist{drawer: drawer}
}

// Insert draws a priority for p and places it behind every entry whose
// priority is greater than or equal to the drawn value. It returns the
// assigned priority.
func (w *Waitlist) Insert(p domain.Patient) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.indexLocked(p.ID) >= 0 {
		return 0, domain.ErrDuplicate{Entity: domain.EntityWaitlistEntry, ID: p.ID}
	}
	priority, err := w.drawLocked(p.ID)
	if err != nil {
		return 0, err
	}
	w.insertLocked(domain.Entry{Patient: p, Priority: priority})
	return priority, nil
}

// RemoveHighest removes and returns the head of the list.
func (w *Waitlist) RemoveHighest() (domain.Patient, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.entries) == 0 {
		return domain.Patient{}, false
	}
	head := w.entries[0]
	w.entries = slices.Delete(w.entries, 0, 1)
	return head.Patient, true
}

// Remove removes the entry for the patient with the given id.
func (w *Waitlist) Remove(id string) (domain.Patient, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexLocked(id)
	if idx < 0 {
		return domain.Patient{}, false
	}
	removed := w.entries[idx]
	w.entries = slices.Delete(w.entries, idx, idx+1)
	return removed.Patient, true
}

// UpdatePriority reinserts the patient with a freshly drawn priority. The
// new priority may be lower than the old one. When the draw fails the entry
// keeps its original place.
func (w *Waitlist) UpdatePriority(id string) (int, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexLocked(id)
	if idx < 0 {
		return 0, false, nil
	}
	entry := w.entries[idx]
	priority, err := w.drawLocked(id)
	if err != nil {
		return 0, true, err
	}
	w.entries = slices.Delete(w.entries, idx, idx+1)
	entry.Priority = priority
	w.insertLocked(entry)
	return priority, true, nil
}

// PositionOf returns the 1-indexed rank of the patient.
func (w *Waitlist) PositionOf(id string) (int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx := w.indexLocked(id)
	if idx < 0 {
		return 0, false
	}
	return idx + 1, true
}

// Get returns the entry of the patient with the given id.
func (w *Waitlist) Get(id string) (domain.Entry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx := w.indexLocked(id)
	if idx < 0 {
		return domain.Entry{}, false
	}
	return w.entries[idx], true
}

// IsEmpty reports whether no patient is waiting.
func (w *Waitlist) IsEmpty() bool {
	return w.Len() == 0
}

// Len returns the number of waiting patients.
func (w *Waitlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Snapshot returns the ranked entries from highest to lowest priority.
func (w *Waitlist) Snapshot() []domain.RankedEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.RankedEntry, len(w.entries))
	for i, e := range w.entries {
		out[i] = ranked(i, e)
	}
	return out
}

// Scan calls fn for each entry from highest to lowest priority until fn
// returns false. The read lock is held for the whole scan, so fn must not
// call mutating methods on the same waitlist.
func (w *Waitlist) Scan(fn func(domain.RankedEntry) bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i, e := range w.entries {
		if !fn(ranked(i, e)) {
			return
		}
	}
}

// MatchAndRemove removes the first entry, in priority order, for which match
// returns true. Finding and removing happen under one write lock.
func (w *Waitlist) MatchAndRemove(match func(domain.RankedEntry) bool) (domain.RankedEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.entries {
		r := ranked(i, e)
		if match(r) {
			w.entries = slices.Delete(w.entries, i, i+1)
			return r, true
		}
	}
	return domain.RankedEntry{}, false
}

// Entries returns a copy of the ordered entries.
func (w *Waitlist) Entries() []domain.Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.entries)
}

// Clone returns an independent copy sharing the same priority drawer.
func (w *Waitlist) Clone() *Waitlist {
	return &Waitlist{entries: w.Entries(), drawer: w.drawer}
}

// Restore replaces the contents with previously persisted entries. The
// entries must already be in waitlist order, hold unique patient ids and
// carry priorities in range.
func (w *Waitlist) Restore(entries []domain.Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if !validPriority(e.Priority) {
			return fmt.Errorf("restore entry %s: priority %d: %w", e.Patient.ID, e.Priority, domain.ErrPriorityOutOfRange)
		}
		if _, dup := seen[e.Patient.ID]; dup {
			return domain.ErrDuplicate{Entity: domain.EntityWaitlistEntry, ID: e.Patient.ID}
		}
		seen[e.Patient.ID] = struct{}{}
		if i > 0 && entries[i-1].Priority < e.Priority {
			return fmt.Errorf("restore entry %s: priority %d follows lower priority %d", e.Patient.ID, e.Priority, entries[i-1].Priority)
		}
	}
	w.mu.Lock()
	w.entries = slices.Clone(entries)
	w.mu.Unlock()
	return nil
}

func (w *Waitlist) drawLocked(id string) (int, error) {
	priority := w.drawer.Draw()
	if !validPriority(priority) {
		return 0, fmt.Errorf("draw for patient %s returned %d: %w", id, priority, domain.ErrPriorityOutOfRange)
	}
	return priority, nil
}

func (w *Waitlist) insertLocked(e domain.Entry) {
	// First index holding a strictly lower priority; equal priorities stay ahead.
	idx := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].Priority < e.Priority
	})
	w.entries = slices.Insert(w.entries, idx, e)
}

func (w *Waitlist) indexLocked(id string) int {
	return slices.IndexFunc(w.entries, func(e domain.Entry) bool { return e.Patient.ID == id })
}

func ranked(idx int, e domain.Entry) domain.RankedEntry {
	return domain.RankedEntry{Rank: idx + 1, Patient: e.Patient, Priority: e.Priority}
}
