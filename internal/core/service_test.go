package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"transplantcore/internal/compat"
	"transplantcore/internal/waitlist"
	"transplantcore/pkg/domain"
)

func TestServiceDemoWalkthrough(t *testing.T) {
	ctx := context.Background()
	svc := newDemoService()

	if got, want := waitlistIDs(svc.Waitlist()), []string{"P004", "P002", "P001", "P003"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("initial order %v, want %v\n%s", got, want, spew.Sdump(svc.Waitlist()))
	}

	removed, ok, err := svc.RemoveHighest(ctx)
	if err != nil || !ok || removed.ID != "P004" {
		t.Fatalf("remove highest: %+v %v %v", removed, ok, err)
	}

	entry, ok, err := svc.Reprioritize(ctx, "P003")
	if err != nil || !ok || entry.Priority != 6 {
		t.Fatalf("reprioritize: %+v %v %v", entry, ok, err)
	}
	if pos, ok := svc.Position("P003"); !ok || pos != 2 {
		t.Fatalf("expected P003 at rank 2, got %d %v\n%s", pos, ok, spew.Sdump(svc.Waitlist()))
	}

	organ, _, err := svc.RegisterOrgan(ctx, demoOrgan())
	if err != nil {
		t.Fatalf("register organ: %v", err)
	}
	match, ok := svc.FindMatch(ctx, organ)
	if !ok || match.Patient.ID != "P001" || match.Rank != 3 {
		t.Fatalf("find match: %+v %v", match, ok)
	}
	if len(svc.Waitlist()) != 3 {
		t.Fatalf("FindMatch must not mutate the waitlist")
	}

	allocation, ok, _, err := svc.Allocate(ctx, organ.ID)
	if err != nil || !ok {
		t.Fatalf("allocate: %v %v", ok, err)
	}
	if allocation.PatientID != "P001" || allocation.Priority != 5 || allocation.Rank != 3 || allocation.ID == "" {
		t.Fatalf("unexpected allocation %+v", allocation)
	}
	if math.Abs(allocation.Score.Total-70.0) > 1e-9 || allocation.Threshold != compat.DefaultAcceptanceThreshold {
		t.Fatalf("unexpected score %+v", allocation.Score)
	}
	if got, want := waitlistIDs(svc.Waitlist()), []string{"P002", "P003"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("post-allocation order %v, want %v", got, want)
	}
	stored, ok := svc.Store().GetOrgan(organ.ID)
	if !ok || stored.AllocatedTo == nil || *stored.AllocatedTo != "P001" {
		t.Fatalf("organ not marked allocated: %+v", stored)
	}
	if list := svc.ListAllocations(); len(list) != 1 || list[0].ID != allocation.ID {
		t.Fatalf("unexpected allocations %+v", list)
	}
}

func TestServiceAllocateErrors(t *testing.T) {
	ctx := context.Background()
	svc := newDemoService()

	t.Run("unknown organ", func(t *testing.T) {
		_, _, _, err := svc.Allocate(ctx, "missing")
		var nf ErrNotFound
		if !errors.As(err, &nf) || nf.Entity != EntityOrgan || nf.ID != "missing" {
			t.Fatalf("expected organ not found, got %v", err)
		}
	})

	t.Run("no acceptable recipient", func(t *testing.T) {
		organ, _, err := svc.RegisterOrgan(ctx, Organ{ID: "O-AB", Name: "Kidney", BloodType: "AB+", WeightGrams: 300, TissueType: "HLA-Z"})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		before := svc.Waitlist()
		_, ok, _, err := svc.Allocate(ctx, organ.ID)
		if err != nil || ok {
			t.Fatalf("expected no match without error, got %v %v", ok, err)
		}
		if !reflect.DeepEqual(before, svc.Waitlist()) {
			t.Fatalf("waitlist changed without a match")
		}
		if o, _ := svc.Store().GetOrgan(organ.ID); o.Allocated() {
			t.Fatalf("organ should remain unallocated")
		}
	})

	t.Run("already allocated", func(t *testing.T) {
		organ, _, err := svc.RegisterOrgan(ctx, demoOrgan())
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if _, ok, _, err := svc.Allocate(ctx, organ.ID); err != nil || !ok {
			t.Fatalf("first allocation: %v %v", ok, err)
		}
		if _, _, _, err := svc.Allocate(ctx, organ.ID); !errors.Is(err, domain.ErrOrganAllocated) {
			t.Fatalf("expected ErrOrganAllocated, got %v", err)
		}
	})
}

func TestServiceConcurrentAllocateNeverSharesPatient(t *testing.T) {
	ctx := context.Background()
	const patients, organs = 20, 30
	svc := NewInMemoryService(NewPolicyRulesEngine(compat.DefaultAcceptanceThreshold), waitlist.NewRandomDrawer(42))
	for i := range patients {
		p := Patient{ID: fmt.Sprintf("P%02d", i), Name: "Patient", BloodType: "O-", WeightKG: 70, TissueType: "HLA-A"}
		if _, _, err := svc.Enqueue(ctx, p); err != nil {
			t.Fatalf("enqueue %s: %v", p.ID, err)
		}
	}
	for i := range organs {
		o := Organ{ID: fmt.Sprintf("O%02d", i), Name: "Kidney", BloodType: "O-", WeightGrams: 70000, TissueType: "HLA-A"}
		if _, _, err := svc.RegisterOrgan(ctx, o); err != nil {
			t.Fatalf("register %s: %v", o.ID, err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		recipient = make(map[string]string)
		unmatched int
	)
	for i := range organs {
		wg.Add(1)
		go func(organID string) {
			defer wg.Done()
			a, ok, _, err := svc.Allocate(ctx, organID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("allocate %s: %v", organID, err)
				return
			}
			if !ok {
				unmatched++
				return
			}
			if prev, dup := recipient[a.PatientID]; dup {
				t.Errorf("patient %s allocated to both %s and %s", a.PatientID, prev, organID)
			}
			recipient[a.PatientID] = organID
		}(fmt.Sprintf("O%02d", i))
	}
	wg.Wait()

	if len(recipient) != patients || unmatched != organs-patients {
		t.Fatalf("matched %d unmatched %d, want %d and %d", len(recipient), unmatched, patients, organs-patients)
	}
	if left := svc.Waitlist(); len(left) != 0 {
		t.Fatalf("waitlist should be drained\n%s", spew.Sdump(left))
	}
	seen := make(map[int64]bool)
	for _, a := range svc.ListAllocations() {
		if seen[a.Sequence] {
			t.Fatalf("duplicate allocation sequence %d", a.Sequence)
		}
		seen[a.Sequence] = true
	}
	if len(seen) != patients {
		t.Fatalf("expected %d allocation records, got %d", patients, len(seen))
	}
}

func TestServiceAllocateBlockedByThresholdRule(t *testing.T) {
	ctx := context.Background()
	lenient, err := compat.NewMatcher(compat.WithThreshold(0))
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	svc := NewInMemoryService(NewPolicyRulesEngine(50), waitlist.NewSequenceDrawer(9, 4), WithMatcher(lenient))
	for _, p := range demoPatients()[1:3] {
		if _, _, err := svc.Enqueue(ctx, p); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	organ, _, err := svc.RegisterOrgan(ctx, demoOrgan())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	before := svc.Waitlist()
	_, ok, res, err := svc.Allocate(ctx, organ.ID)
	var violation RuleViolationError
	if !errors.As(err, &violation) || ok {
		t.Fatalf("expected rule violation, got %v %v", ok, err)
	}
	if !res.HasBlocking() || res.Violations[0].Rule != ruleAllocationThreshold {
		t.Fatalf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(before, svc.Waitlist()) || len(svc.ListAllocations()) != 0 {
		t.Fatalf("blocked allocation must roll back")
	}
	if o, _ := svc.Store().GetOrgan(organ.ID); o.Allocated() {
		t.Fatalf("blocked allocation left organ marked")
	}
}

func TestServiceEnqueueValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine(), waitlist.NewSequenceDrawer(3))

	if _, _, err := svc.Enqueue(ctx, Patient{ID: "P1", Name: "X", BloodType: "Q+", WeightKG: 60}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	entry, _, err := svc.Enqueue(ctx, Patient{Name: "Generated", BloodType: "ab+", WeightKG: 60})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if entry.Patient.ID == "" || entry.Patient.BloodType != domain.BloodABPos || entry.Priority != 3 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, _, err := svc.Enqueue(ctx, entry.Patient); !domain.IsDuplicate(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, _, err := svc.RegisterOrgan(ctx, Organ{Name: "Liver", BloodType: "A+"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for organ, got %v", err)
	}
}

func TestServiceDrawerContractViolation(t *testing.T) {
	ctx := context.Background()
	log := &captureLogger{}
	svc := NewInMemoryService(nil, waitlist.DrawerFunc(func() int { return 11 }), WithLogger(log))
	if _, _, err := svc.Enqueue(ctx, demoPatients()[0]); !errors.Is(err, domain.ErrPriorityOutOfRange) {
		t.Fatalf("expected ErrPriorityOutOfRange, got %v", err)
	}
	if len(svc.Waitlist()) != 0 {
		t.Fatalf("failed enqueue must not leave an entry")
	}
	if !log.has("e:operation failed") {
		t.Fatalf("expected error log, got %v", log.calls)
	}
}

func TestServiceRemoveMissing(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil, nil)
	if _, ok, err := svc.RemoveHighest(ctx); ok || err != nil {
		t.Fatalf("empty remove highest: %v %v", ok, err)
	}
	if _, ok, err := svc.RemovePatient(ctx, "nobody"); ok || err != nil {
		t.Fatalf("remove missing: %v %v", ok, err)
	}
	if _, ok, err := svc.Reprioritize(ctx, "nobody"); ok || err != nil {
		t.Fatalf("reprioritize missing: %v %v", ok, err)
	}
	if _, ok := svc.Position("nobody"); ok {
		t.Fatalf("expected no position")
	}
	if _, ok := svc.FindMatch(ctx, demoOrgan()); ok {
		t.Fatalf("empty waitlist must not match")
	}
}

func TestServiceObservability(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)
	log := &captureLogger{}
	svc := newDemoService(
		WithClock(ClockFunc(func() time.Time { return fixed })),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(log),
	)
	organ, _, err := svc.RegisterOrgan(ctx, demoOrgan())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	allocation, ok, _, err := svc.Allocate(ctx, organ.ID)
	if err != nil || !ok {
		t.Fatalf("allocate: %v %v", ok, err)
	}
	if !allocation.AllocatedAt.Equal(fixed) {
		t.Fatalf("allocation should use the service clock, got %v", allocation.AllocatedAt)
	}
	_, _, _, _ = svc.Allocate(ctx, "missing")

	entry, ok := audit.find(opAllocate, AuditStatusSuccess)
	if !ok || entry.EntityID != allocation.ID || entry.Entity != EntityAllocation || entry.Action != ActionCreate {
		t.Fatalf("missing allocation audit: %+v", audit.entries)
	}
	if !entry.Timestamp.Equal(fixed) || len(entry.Payload) == 0 {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if failed, ok := audit.find(opAllocate, AuditStatusError); !ok || failed.Error == "" {
		t.Fatalf("expected failed allocation audit: %+v", audit.entries)
	}
	if _, ok := audit.find(opEnqueue, AuditStatusSuccess); !ok {
		t.Fatalf("expected enqueue audit")
	}

	if !metrics.has(opAllocate, true) || !metrics.has(opAllocate, false) || !metrics.has(opRegisterOrgan, true) {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}
	if last := metrics.waitlist[len(metrics.waitlist)-1]; last != 3 {
		t.Fatalf("expected waitlist gauge 3, got %v", metrics.waitlist)
	}

	var spans []string
	for _, e := range tracer.Entries() {
		spans = append(spans, e.Operation+":"+string(e.Status))
	}
	want := []string{opRegisterOrgan + ":success", opAllocate + ":success", opAllocate + ":error"}
	if got := spans[len(spans)-3:]; !reflect.DeepEqual(got, want) {
		t.Fatalf("spans %v, want suffix %v", spans, want)
	}
	if !log.has("d:operation committed") || !log.has("e:operation failed") {
		t.Fatalf("unexpected log calls %v", log.calls)
	}
}

func TestDefaultServiceOptions(t *testing.T) {
	opts := defaultServiceOptions()
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil || opts.tracer == nil {
		t.Fatalf("expected defaults populated")
	}
	if opts.clockSet || opts.matcher != nil {
		t.Fatalf("unexpected non-default options %+v", opts)
	}
	WithLogger(nil)(&opts)
	WithClock(nil)(&opts)
	WithMatcher(nil)(&opts)
	if opts.clockSet || opts.logger == nil {
		t.Fatalf("nil options must keep defaults")
	}
	opts.audit.Record(context.Background(), AuditEntry{})
	opts.metrics.Observe(context.Background(), "noop", true, 0)
	_, span := opts.tracer.Start(context.Background(), "noop")
	span.End(nil)
	var l noopLogger
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
}
