package core

import (
	"context"
	"sync"
	"time"

	"transplantcore/internal/waitlist"
)

func demoPatients() []Patient {
	return []Patient{
		{ID: "P001", Name: "John Doe", BloodType: "A+", WeightKG: 70, TissueType: "HLA-A"},
		{ID: "P002", Name: "Jane Smith", BloodType: "B-", WeightKG: 65, TissueType: "HLA-B"},
		{ID: "P003", Name: "Bob Johnson", BloodType: "O+", WeightKG: 80, TissueType: "HLA-A"},
		{ID: "P004", Name: "Alice Brown", BloodType: "AB-", WeightKG: 55, TissueType: "HLA-C"},
	}
}

func demoOrgan() Organ {
	return Organ{ID: "O001", Name: "CyberHeart-X1", BloodType: "A+", WeightGrams: 350000, TissueType: "HLA-A"}
}

// newDemoService enqueues the four demo patients with priorities 5, 8, 3, 9;
// the next draw is 6.
func newDemoService(opts ...ServiceOption) *Service {
	svc := NewInMemoryService(NewDefaultRulesEngine(), waitlist.NewSequenceDrawer(5, 8, 3, 9, 6), opts...)
	for _, p := range demoPatients() {
		if _, _, err := svc.Enqueue(context.Background(), p); err != nil {
			panic(err)
		}
	}
	return svc
}

func waitlistIDs(entries []RankedEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Patient.ID
	}
	return ids
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(prefix, msg string) {
	c.mu.Lock()
	c.calls = append(c.calls, prefix+msg)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record("d:", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record("i:", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record("w:", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record("e:", msg) }

func (c *captureLogger) has(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) find(op string, status AuditStatus) (AuditEntry, bool) {
	for _, e := range c.entries {
		if e.Operation == op && e.Status == status {
			return e, true
		}
	}
	return AuditEntry{}, false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls    []metricsCall
	waitlist []int
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) SetWaitlistLength(n int) {
	c.waitlist = append(c.waitlist, n)
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}
