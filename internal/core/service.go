package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"transplantcore/internal/compat"
	"transplantcore/internal/infra/persistence/memory"
	"transplantcore/internal/waitlist"
	"transplantcore/pkg/domain"
)

const (
	opEnqueue       = "enqueue_patient"
	opRemoveHighest = "remove_highest"
	opRemovePatient = "remove_patient"
	opReprioritize  = "reprioritize_patient"
	opRegisterOrgan = "register_organ"
	opAllocate      = "allocate_organ"
	opFindMatch     = "find_match"
	opExport        = "export_allocations"
)

type auditTarget struct {
	entity EntityType
	action Action
}

var auditTargets = map[string]auditTarget{
	opEnqueue:       {entity: EntityWaitlistEntry, action: ActionCreate},
	opRemoveHighest: {entity: EntityWaitlistEntry, action: ActionDelete},
	opRemovePatient: {entity: EntityWaitlistEntry, action: ActionDelete},
	opReprioritize:  {entity: EntityWaitlistEntry, action: ActionUpdate},
	opRegisterOrgan: {entity: EntityOrgan, action: ActionCreate},
	opAllocate:      {entity: EntityAllocation, action: ActionCreate},
}

type nowSetter interface {
	SetNowFunc(func() time.Time)
}

// Service exposes the waitlist and allocation operations as transactions over
// a PersistentStore.
type Service struct {
	store   PersistentStore
	matcher *compat.Matcher
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService wires a service around store. When a clock is supplied and the
// store accepts one, allocation timestamps follow the same clock.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.matcher == nil {
		o.matcher = mustDefaultMatcher()
	}
	if setter, ok := store.(nowSetter); ok && o.clockSet {
		setter.SetNowFunc(o.clock.Now)
	}
	return &Service{
		store:   store,
		matcher: o.matcher,
		clock:   o.clock,
		logger:  o.logger,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
}

// NewInMemoryService creates a service over a fresh memory store.
func NewInMemoryService(engine *RulesEngine, drawer waitlist.PriorityDrawer, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine, drawer), opts...)
}

func mustDefaultMatcher() *compat.Matcher {
	m, err := compat.NewMatcher()
	if err != nil {
		panic(err)
	}
	return m
}

// Store returns the underlying store.
func (s *Service) Store() PersistentStore { return s.store }

// Matcher returns the matcher used for allocation.
func (s *Service) Matcher() *compat.Matcher { return s.matcher }

// Enqueue validates the patient and inserts it with a freshly drawn priority.
func (s *Service) Enqueue(ctx context.Context, patient Patient) (Entry, Result, error) {
	p, err := patient.Normalize()
	if err != nil {
		return Entry{}, Result{}, err
	}
	var entry Entry
	res, err := s.run(ctx, opEnqueue, func(tx Transaction) error {
		var err error
		entry, err = tx.EnqueuePatient(p)
		return err
	}, func() (string, any) { return entry.Patient.ID, entry })
	return entry, res, err
}

// RemoveHighest pops the highest priority patient.
func (s *Service) RemoveHighest(ctx context.Context) (Patient, bool, error) {
	var (
		patient Patient
		ok      bool
	)
	_, err := s.run(ctx, opRemoveHighest, func(tx Transaction) error {
		patient, ok = tx.RemoveHighest()
		return nil
	}, func() (string, any) { return patient.ID, nil })
	return patient, ok, err
}

// RemovePatient removes the patient from the waitlist.
func (s *Service) RemovePatient(ctx context.Context, id string) (Patient, bool, error) {
	var (
		patient Patient
		ok      bool
	)
	_, err := s.run(ctx, opRemovePatient, func(tx Transaction) error {
		patient, ok = tx.RemovePatient(id)
		return nil
	}, func() (string, any) { return id, nil })
	return patient, ok, err
}

// Reprioritize redraws the patient's priority and moves it accordingly.
func (s *Service) Reprioritize(ctx context.Context, id string) (Entry, bool, error) {
	var (
		entry Entry
		ok    bool
	)
	_, err := s.run(ctx, opReprioritize, func(tx Transaction) error {
		var err error
		entry, ok, err = tx.ReprioritizePatient(id)
		return err
	}, func() (string, any) { return id, entry })
	return entry, ok, err
}

// Position returns the patient's 1-indexed rank.
func (s *Service) Position(id string) (int, bool) {
	return s.store.PositionOf(id)
}

// Waitlist returns the ranked waitlist.
func (s *Service) Waitlist() []RankedEntry {
	return s.store.ListWaitlist()
}

// Organs returns the registered organs ordered by ID.
func (s *Service) Organs() []Organ {
	return s.store.ListOrgans()
}

// RegisterOrgan validates and stores an organ without allocating it.
func (s *Service) RegisterOrgan(ctx context.Context, organ Organ) (Organ, Result, error) {
	o, err := organ.Normalize()
	if err != nil {
		return Organ{}, Result{}, err
	}
	var created Organ
	res, err := s.run(ctx, opRegisterOrgan, func(tx Transaction) error {
		var err error
		created, err = tx.CreateOrgan(o)
		return err
	}, func() (string, any) { return created.ID, created })
	return created, res, err
}

// FindMatch reports the patient the organ would go to without changing
// anything. Calling RemovePatient afterwards is not atomic with this lookup;
// use Allocate for that.
func (s *Service) FindMatch(ctx context.Context, organ Organ) (compat.Match, bool) {
	ctx, span := s.tracer.Start(ctx, opFindMatch)
	var (
		match compat.Match
		ok    bool
	)
	err := s.store.View(ctx, func(view TransactionView) error {
		match, ok = s.matcher.FindMatch(organ, compat.EntriesScanner(view.ListWaitlist()))
		return nil
	})
	span.End(err)
	return match, ok
}

// Allocate atomically picks the first acceptable patient for a registered
// organ, removes it from the waitlist and records the allocation. It returns
// false when nobody on the waitlist clears the threshold; the organ then stays
// unallocated.
func (s *Service) Allocate(ctx context.Context, organID string) (Allocation, bool, Result, error) {
	var (
		allocation Allocation
		matched    bool
	)
	res, err := s.run(ctx, opAllocate, func(tx Transaction) error {
		organ, ok := tx.FindOrgan(organID)
		if !ok {
			return ErrNotFound{Entity: EntityOrgan, ID: organID}
		}
		if organ.Allocated() {
			return fmt.Errorf("organ %s: %w", organID, domain.ErrOrganAllocated)
		}
		var score Compatibility
		picked, ok := tx.MatchAndRemove(s.matcher.Predicate(organ, &score))
		if !ok {
			return nil
		}
		recipient := picked.Patient.ID
		if _, err := tx.UpdateOrgan(organID, func(o *Organ) error {
			o.AllocatedTo = &recipient
			return nil
		}); err != nil {
			return err
		}
		created, err := tx.CreateAllocation(Allocation{
			ID:          uuid.NewString(),
			OrganID:     organID,
			PatientID:   recipient,
			PatientName: picked.Patient.Name,
			Priority:    picked.Priority,
			Rank:        picked.Rank,
			Score:       score,
			Threshold:   s.matcher.Threshold(),
		})
		if err != nil {
			return err
		}
		allocation, matched = created, true
		return nil
	}, func() (string, any) {
		if !matched {
			return organID, nil
		}
		return allocation.ID, allocation
	})
	if err != nil {
		return Allocation{}, false, res, err
	}
	if !matched {
		s.logger.Info("no acceptable recipient", "organ", organID, "waitlist", len(s.store.ListWaitlist()))
	}
	return allocation, matched, res, nil
}

// ListAllocations returns allocation records in the order they were made.
func (s *Service) ListAllocations() []Allocation {
	return s.store.ListAllocations()
}

func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error, describe func() (string, any)) (Result, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	id, payload := describe()
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "id", id, "error", err)
		s.recordAudit(ctx, op, id, duration, nil, err)
		return res, err
	}
	s.logger.Debug("operation committed", "operation", op, "id", id, "duration", duration, "violations", len(res.Violations))
	if gauge, ok := s.metrics.(WaitlistGauge); ok {
		gauge.SetWaitlistLength(len(s.store.ListWaitlist()))
	}
	s.recordAudit(ctx, op, id, duration, payload, nil)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, payload any, opErr error) {
	target, ok := auditTargets[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if opErr != nil {
		entry.Status = AuditStatusError
		entry.Error = opErr.Error()
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.Payload = raw
		}
	}
	s.audit.Record(ctx, entry)
}
