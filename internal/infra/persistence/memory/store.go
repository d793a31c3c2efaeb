// Package memory provides an in-memory implementation of the core persistence
// store used for tests, demos and as the transactional engine behind the
// snapshotting SQL backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"transplantcore/internal/waitlist"
	"transplantcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Patient aliases domain.Patient for in-memory persistence operations.
	Patient = domain.Patient
	// Organ aliases domain.Organ.
	Organ = domain.Organ
	// Allocation aliases domain.Allocation.
	Allocation = domain.Allocation
	// Entry aliases domain.Entry.
	Entry = domain.Entry
	// RankedEntry aliases domain.RankedEntry.
	RankedEntry = domain.RankedEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	patients    map[string]Patient
	organs      map[string]Organ
	allocations map[string]Allocation
	waitlist    *waitlist.Waitlist
}

// Snapshot captures a point-in-time clone of the store state. The waitlist is
// kept in rank order so it can be restored without redrawing priorities.
type Snapshot struct {
	Patients    map[string]Patient    `json:"patients"`
	Organs      map[string]Organ      `json:"organs"`
	Waitlist    []Entry               `json:"waitlist"`
	Allocations map[string]Allocation `json:"allocations"`
}

func newMemoryState(drawer waitlist.PriorityDrawer) memoryState {
	return memoryState{
		patients:    make(map[string]Patient),
		organs:      make(map[string]Organ),
		allocations: make(map[string]Allocation),
		waitlist:    waitlist.New(drawer),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Patients:    make(map[string]Patient, len(state.patients)),
		Organs:      make(map[string]Organ, len(state.organs)),
		Waitlist:    state.waitlist.Entries(),
		Allocations: make(map[string]Allocation, len(state.allocations)),
	}
	for k, v := range state.patients {
		s.Patients[k] = v
	}
	for k, v := range state.organs {
		s.Organs[k] = cloneOrgan(v)
	}
	for k, v := range state.allocations {
		s.Allocations[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot, drawer waitlist.PriorityDrawer) (memoryState, error) {
	state := newMemoryState(drawer)
	for k, v := range s.Patients {
		state.patients[k] = v
	}
	for k, v := range s.Organs {
		state.organs[k] = cloneOrgan(v)
	}
	for k, v := range s.Allocations {
		state.allocations[k] = v
	}
	if err := state.waitlist.Restore(s.Waitlist); err != nil {
		return memoryState{}, fmt.Errorf("restore waitlist: %w", err)
	}
	return state, nil
}

// normalizeSnapshot fills missing buckets and registers waitlisted patients
// absent from older snapshots that predate the patient registry.
func normalizeSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Patients == nil {
		snapshot.Patients = map[string]Patient{}
	}
	if snapshot.Organs == nil {
		snapshot.Organs = map[string]Organ{}
	}
	if snapshot.Allocations == nil {
		snapshot.Allocations = map[string]Allocation{}
	}
	for _, e := range snapshot.Waitlist {
		if _, ok := snapshot.Patients[e.Patient.ID]; !ok {
			snapshot.Patients[e.Patient.ID] = e.Patient
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		patients:    make(map[string]Patient, len(s.patients)),
		organs:      make(map[string]Organ, len(s.organs)),
		allocations: make(map[string]Allocation, len(s.allocations)),
		waitlist:    s.waitlist.Clone(),
	}
	for k, v := range s.patients {
		cloned.patients[k] = v
	}
	for k, v := range s.organs {
		cloned.organs[k] = cloneOrgan(v)
	}
	for k, v := range s.allocations {
		cloned.allocations[k] = v
	}
	return cloned
}

func cloneOrgan(o Organ) Organ {
	cp := o
	if o.AllocatedTo != nil {
		id := *o.AllocatedTo
		cp.AllocatedTo = &id
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	drawer waitlist.PriorityDrawer
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
// Waitlist priorities come from drawer; nil selects a randomly seeded drawer.
func NewStore(engine *RulesEngine, drawer waitlist.PriorityDrawer) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	if drawer == nil {
		drawer = waitlist.NewRandomDrawer(0)
	}
	return &Store{
		state:  newMemoryState(drawer),
		engine: engine,
		drawer: drawer,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. The current
// state is left untouched when the snapshot's waitlist is inconsistent.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(normalizeSnapshot(snapshot), s.drawer)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider; nil restores the UTC wall clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListWaitlist returns the ranked waitlist within the snapshot.
func (v transactionView) ListWaitlist() []RankedEntry {
	return v.state.waitlist.Snapshot()
}

// ListOrgans returns all organs ordered by ID.
func (v transactionView) ListOrgans() []Organ {
	return sortedOrgans(v.state.organs)
}

// ListAllocations returns all allocations in allocation order.
func (v transactionView) ListAllocations() []Allocation {
	return sortedAllocations(v.state.allocations)
}

// FindPatient looks up a registered patient.
func (v transactionView) FindPatient(id string) (Patient, bool) {
	p, ok := v.state.patients[id]
	return p, ok
}

// FindOrgan looks up an organ.
func (v transactionView) FindOrgan(id string) (Organ, bool) {
	o, ok := v.state.organs[id]
	if !ok {
		return Organ{}, false
	}
	return cloneOrgan(o), true
}

// PositionOf returns the 1-indexed waitlist rank of the patient.
func (v transactionView) PositionOf(id string) (int, bool) {
	return v.state.waitlist.PositionOf(id)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no blocking
// rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// EnqueuePatient registers the patient and inserts it into the waitlist with
// a freshly drawn priority.
func (tx *transaction) EnqueuePatient(p Patient) (Entry, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	priority, err := tx.state.waitlist.Insert(p)
	if err != nil {
		return Entry{}, err
	}
	before, known := tx.state.patients[p.ID]
	tx.state.patients[p.ID] = p
	if known {
		tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionUpdate, Before: before, After: p})
	} else {
		tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: p})
	}
	entry := Entry{Patient: p, Priority: priority}
	tx.recordChange(Change{Entity: domain.EntityWaitlistEntry, Action: domain.ActionCreate, After: entry})
	return entry, nil
}

// RemoveHighest pops the head of the waitlist.
func (tx *transaction) RemoveHighest() (Patient, bool) {
	head, ok := tx.MatchAndRemove(func(RankedEntry) bool { return true })
	return head.Patient, ok
}

// RemovePatient removes the patient from the waitlist. The patient stays in
// the registry.
func (tx *transaction) RemovePatient(id string) (Patient, bool) {
	entry, ok := tx.state.waitlist.Get(id)
	if !ok {
		return Patient{}, false
	}
	p, _ := tx.state.waitlist.Remove(id)
	tx.recordChange(Change{Entity: domain.EntityWaitlistEntry, Action: domain.ActionDelete, Before: entry})
	return p, true
}

// ReprioritizePatient redraws the patient's priority and repositions it.
func (tx *transaction) ReprioritizePatient(id string) (Entry, bool, error) {
	before, ok := tx.state.waitlist.Get(id)
	if !ok {
		return Entry{}, false, nil
	}
	priority, _, err := tx.state.waitlist.UpdatePriority(id)
	if err != nil {
		return Entry{}, true, err
	}
	after := Entry{Patient: before.Patient, Priority: priority}
	tx.recordChange(Change{Entity: domain.EntityWaitlistEntry, Action: domain.ActionUpdate, Before: before, After: after})
	return after, true, nil
}

// MatchAndRemove removes the first waitlist entry accepted by match.
func (tx *transaction) MatchAndRemove(match func(RankedEntry) bool) (RankedEntry, bool) {
	removed, ok := tx.state.waitlist.MatchAndRemove(match)
	if !ok {
		return RankedEntry{}, false
	}
	tx.recordChange(Change{
		Entity: domain.EntityWaitlistEntry,
		Action: domain.ActionDelete,
		Before: Entry{Patient: removed.Patient, Priority: removed.Priority},
	})
	return removed, true
}

// CreateOrgan stores a new organ within the transaction.
func (tx *transaction) CreateOrgan(o Organ) (Organ, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.organs[o.ID]; exists {
		return Organ{}, domain.ErrDuplicate{Entity: domain.EntityOrgan, ID: o.ID}
	}
	tx.state.organs[o.ID] = cloneOrgan(o)
	tx.recordChange(Change{Entity: domain.EntityOrgan, Action: domain.ActionCreate, After: cloneOrgan(o)})
	return cloneOrgan(o), nil
}

// UpdateOrgan mutates an organ using the provided mutator function.
func (tx *transaction) UpdateOrgan(id string, mutator func(*Organ) error) (Organ, error) {
	current, ok := tx.state.organs[id]
	if !ok {
		return Organ{}, domain.ErrNotFound{Entity: domain.EntityOrgan, ID: id}
	}
	before := cloneOrgan(current)
	current = cloneOrgan(current)
	if err := mutator(&current); err != nil {
		return Organ{}, err
	}
	current.ID = id
	tx.state.organs[id] = cloneOrgan(current)
	tx.recordChange(Change{Entity: domain.EntityOrgan, Action: domain.ActionUpdate, Before: before, After: cloneOrgan(current)})
	return cloneOrgan(current), nil
}

// CreateAllocation records an allocation. A zero AllocatedAt is stamped with
// the transaction time.
func (tx *transaction) CreateAllocation(a Allocation) (Allocation, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.allocations[a.ID]; exists {
		return Allocation{}, domain.ErrDuplicate{Entity: domain.EntityAllocation, ID: a.ID}
	}
	if a.AllocatedAt.IsZero() {
		a.AllocatedAt = tx.now
	}
	a.Sequence = nextSequence(tx.state.allocations)
	tx.state.allocations[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionCreate, After: a})
	return a, nil
}

// FindOrgan exposes organ lookup within the transaction scope.
func (tx *transaction) FindOrgan(id string) (Organ, bool) {
	return newTransactionView(&tx.state).FindOrgan(id)
}

// Read helpers ---------------------------------------------------------------

// ListWaitlist returns the committed waitlist in rank order.
func (s *Store) ListWaitlist() []RankedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.waitlist.Snapshot()
}

// PositionOf returns the committed rank of the patient.
func (s *Store) PositionOf(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.waitlist.PositionOf(id)
}

// GetPatient retrieves a registered patient.
func (s *Store) GetPatient(id string) (Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.patients[id]
	return p, ok
}

// GetOrgan retrieves an organ by ID from committed state.
func (s *Store) GetOrgan(id string) (Organ, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.organs[id]
	if !ok {
		return Organ{}, false
	}
	return cloneOrgan(o), true
}

// ListOrgans returns all organs ordered by ID.
func (s *Store) ListOrgans() []Organ {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedOrgans(s.state.organs)
}

// ListAllocations returns all allocations in allocation order.
func (s *Store) ListAllocations() []Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAllocations(s.state.allocations)
}

func sortedOrgans(organs map[string]Organ) []Organ {
	out := make([]Organ, 0, len(organs))
	for _, o := range organs {
		out = append(out, cloneOrgan(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func nextSequence(allocations map[string]Allocation) int64 {
	var last int64
	for _, a := range allocations {
		last = max(last, a.Sequence)
	}
	return last + 1
}

// sortedAllocations orders by sequence. Records from snapshots written before
// sequences existed carry zero and fall back to timestamp order.
func sortedAllocations(allocations map[string]Allocation) []Allocation {
	out := make([]Allocation, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		if !out[i].AllocatedAt.Equal(out[j].AllocatedAt) {
			return out[i].AllocatedAt.Before(out[j].AllocatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
