package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	// EnqueuePatient draws a fresh priority and inserts the patient into the waitlist.
	EnqueuePatient(Patient) (Entry, error)
	RemoveHighest() (Patient, bool)
	RemovePatient(id string) (Patient, bool)
	// ReprioritizePatient removes and reinserts the patient with a fresh priority.
	ReprioritizePatient(id string) (Entry, bool, error)
	// MatchAndRemove removes and returns the first entry, in priority order,
	// accepted by match.
	MatchAndRemove(match func(RankedEntry) bool) (RankedEntry, bool)
	CreateOrgan(Organ) (Organ, error)
	UpdateOrgan(id string, mutator func(*Organ) error) (Organ, error)
	CreateAllocation(Allocation) (Allocation, error)
	FindOrgan(id string) (Organ, bool)
}

// TransactionView provides read-only access to snapshot data for rules and readers.
type TransactionView interface {
	RuleView
	PositionOf(id string) (int, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ListWaitlist() []RankedEntry
	PositionOf(id string) (int, bool)
	GetOrgan(id string) (Organ, bool)
	ListOrgans() []Organ
	ListAllocations() []Allocation
}
