package waitlist

import (
	"math/rand/v2"
	"sync"
	"time"

	"transplantcore/pkg/domain"
)

// PriorityDrawer supplies the priority assigned to a patient on insertion.
// Implementations must return a uniformly distributed integer in
// [domain.MinPriority, domain.MaxPriority]; the waitlist only checks the range.
type PriorityDrawer interface {
	Draw() int
}

// DrawerFunc adapts a function to PriorityDrawer.
type DrawerFunc func() int

// Draw implements PriorityDrawer.
func (f DrawerFunc) Draw() int { return f() }

// RandomDrawer draws uniform priorities from a math/rand/v2 generator.
// It is safe for concurrent use.
type RandomDrawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDrawer returns a drawer seeded with seed. A zero seed selects a
// time-based seed so separate processes do not repeat each other.
func NewRandomDrawer(seed uint64) *RandomDrawer {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomDrawer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Draw implements PriorityDrawer.
func (d *RandomDrawer) Draw() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.MinPriority + d.rng.IntN(domain.MaxPriority-domain.MinPriority+1)
}

// SequenceDrawer replays a fixed list of priorities, cycling when exhausted.
// It exists for deterministic demos and tests.
type SequenceDrawer struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequenceDrawer returns a drawer replaying values in order.
func NewSequenceDrawer(values ...int) *SequenceDrawer {
	return &SequenceDrawer{values: append([]int(nil), values...)}
}

// Draw implements PriorityDrawer. An empty sequence always yields MinPriority.
func (d *SequenceDrawer) Draw() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == 0 {
		return domain.MinPriority
	}
	v := d.values[d.next%len(d.values)]
	d.next++
	return v
}

func validPriority(p int) bool {
	return p >= domain.MinPriority && p <= domain.MaxPriority
}
