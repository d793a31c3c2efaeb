package compat

import (
	"errors"
	"fmt"
	"math"

	"transplantcore/pkg/domain"
)

// DefaultAcceptanceThreshold is the minimum total score a pairing needs to be
// acceptable.
const DefaultAcceptanceThreshold = 50.0

// Weights controls the contribution of each sub-score to the total.
type Weights struct {
	Blood  float64 `json:"blood" mapstructure:"blood"`
	Size   float64 `json:"size" mapstructure:"size"`
	Tissue float64 `json:"tissue" mapstructure:"tissue"`
}

// DefaultWeights returns the standard 0.4/0.3/0.3 weighting.
func DefaultWeights() Weights {
	return Weights{Blood: 0.4, Size: 0.3, Tissue: 0.3}
}

const weightEpsilon = 1e-9

// Validate ensures the weights are non-negative and sum to one.
func (w Weights) Validate() error {
	if w.Blood < 0 || w.Size < 0 || w.Tissue < 0 {
		return errors.New("weights must be non-negative")
	}
	if sum := w.Blood + w.Size + w.Tissue; math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("weights must sum to 1, got %g", sum)
	}
	return nil
}

// Match is the recipient chosen for an organ.
type Match struct {
	Rank     int                  `json:"rank"`
	Patient  domain.Patient       `json:"patient"`
	Priority int                  `json:"priority"`
	Score    domain.Compatibility `json:"score"`
}

// Scanner walks ranked entries from highest to lowest priority until fn
// returns false. *waitlist.Waitlist satisfies it.
type Scanner interface {
	Scan(fn func(domain.RankedEntry) bool)
}

// Option customises a Matcher.
type Option func(*Matcher)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// WithWeights overrides the sub-score weighting.
func WithWeights(w Weights) Option {
	return func(m *Matcher) {
		m.weights = w
	}
}

// Matcher scores organ/patient pairs and performs greedy recipient selection.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	weights   Weights
	threshold float64
}

// NewMatcher builds a matcher with default weights and threshold, adjusted by opts.
func NewMatcher(opts ...Option) (*Matcher, error) {
	m := &Matcher{weights: DefaultWeights(), threshold: DefaultAcceptanceThreshold}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.weights.Validate(); err != nil {
		return nil, err
	}
	if m.threshold < MinScore || m.threshold > MaxScore {
		return nil, fmt.Errorf("threshold %g outside [%g,%g]", m.threshold, MinScore, MaxScore)
	}
	return m, nil
}

// Threshold returns the acceptance threshold in use.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Weights returns the weighting in use.
func (m *Matcher) Weights() Weights { return m.weights }

// Score computes the weighted compatibility of organ with patient.
func (m *Matcher) Score(organ domain.Organ, patient domain.Patient) domain.Compatibility {
	blood := BloodTypeScore(organ.BloodType, patient.BloodType)
	size := SizeScore(organ.WeightGrams, patient.WeightKG)
	tissue := TissueScore(organ.TissueType, patient.TissueType)
	total := blood*m.weights.Blood + size*m.weights.Size + tissue*m.weights.Tissue
	return domain.Compatibility{
		Blood:  blood,
		Size:   size,
		Tissue: tissue,
		Total:  clamp(total),
	}
}

// IsAcceptable reports whether the pairing reaches the acceptance threshold.
func (m *Matcher) IsAcceptable(organ domain.Organ, patient domain.Patient) bool {
	return m.Accepts(m.Score(organ, patient))
}

// Accepts reports whether an already computed score reaches the threshold.
func (m *Matcher) Accepts(score domain.Compatibility) bool {
	return score.Total >= m.threshold
}

// FindMatch returns the first acceptable patient in list order. A better
// scoring patient further down the list never displaces an earlier
// acceptable one.
func (m *Matcher) FindMatch(organ domain.Organ, list Scanner) (Match, bool) {
	var (
		found Match
		ok    bool
	)
	list.Scan(func(e domain.RankedEntry) bool {
		score := m.Score(organ, e.Patient)
		if !m.Accepts(score) {
			return true
		}
		found = Match{Rank: e.Rank, Patient: e.Patient, Priority: e.Priority, Score: score}
		ok = true
		return false
	})
	return found, ok
}

// Predicate adapts the matcher to a waitlist MatchAndRemove call. Each accepted
// entry's score is stored in *score so the caller can record it.
func (m *Matcher) Predicate(organ domain.Organ, score *domain.Compatibility) func(domain.RankedEntry) bool {
	return func(e domain.RankedEntry) bool {
		s := m.Score(organ, e.Patient)
		if !m.Accepts(s) {
			return false
		}
		if score != nil {
			*score = s
		}
		return true
	}
}

// EntriesScanner adapts an already materialized ranked slice to Scanner.
type EntriesScanner []domain.RankedEntry

// Scan implements Scanner.
func (s EntriesScanner) Scan(fn func(domain.RankedEntry) bool) {
	for _, e := range s {
		if !fn(e) {
			return
		}
	}
}
