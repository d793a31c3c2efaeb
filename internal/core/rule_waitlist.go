package core

import (
	"context"
	"fmt"

	"transplantcore/pkg/domain"
)

const (
	ruleWaitlistOrder         = "waitlist_order"
	ruleUniqueWaitlistPatient = "unique_waitlist_patient"
)

// NewWaitlistOrderRule blocks any state whose waitlist is not in descending
// priority order with contiguous ranks.
func NewWaitlistOrderRule() domain.Rule {
	return waitlistOrderRule{}
}

type waitlistOrderRule struct{}

func (waitlistOrderRule) Name() string { return ruleWaitlistOrder }

func (waitlistOrderRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	var res domain.Result
	entries := view.ListWaitlist()
	for i, e := range entries {
		var msg string
		switch {
		case e.Rank != i+1:
			msg = fmt.Sprintf("patient %s has rank %d at position %d", e.Patient.ID, e.Rank, i+1)
		case e.Priority < domain.MinPriority || e.Priority > domain.MaxPriority:
			msg = fmt.Sprintf("patient %s priority %d outside [%d,%d]", e.Patient.ID, e.Priority, domain.MinPriority, domain.MaxPriority)
		case i > 0 && entries[i-1].Priority < e.Priority:
			msg = fmt.Sprintf("patient %s priority %d ranked below lower priority %d", e.Patient.ID, e.Priority, entries[i-1].Priority)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     ruleWaitlistOrder,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityWaitlistEntry,
			EntityID: e.Patient.ID,
		})
	}
	return res, nil
}

// NewUniqueWaitlistPatientRule blocks a patient appearing more than once.
func NewUniqueWaitlistPatientRule() domain.Rule {
	return uniqueWaitlistPatientRule{}
}

type uniqueWaitlistPatientRule struct{}

func (uniqueWaitlistPatientRule) Name() string { return ruleUniqueWaitlistPatient }

func (uniqueWaitlistPatientRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	var res domain.Result
	seen := make(map[string]int)
	for _, e := range view.ListWaitlist() {
		if first, dup := seen[e.Patient.ID]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     ruleUniqueWaitlistPatient,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("patient %s waitlisted at ranks %d and %d", e.Patient.ID, first, e.Rank),
				Entity:   domain.EntityWaitlistEntry,
				EntityID: e.Patient.ID,
			})
			continue
		}
		seen[e.Patient.ID] = e.Rank
	}
	return res, nil
}
