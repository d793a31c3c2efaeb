package core

import (
	"context"
	"fmt"

	"transplantcore/pkg/domain"
)

const (
	ruleAllocationThreshold   = "allocation_threshold"
	ruleOrganSingleAllocation = "organ_single_allocation"
)

// NewAllocationThresholdRule blocks allocations created in the transaction
// whose total score is below threshold.
func NewAllocationThresholdRule(threshold float64) domain.Rule {
	return allocationThresholdRule{threshold: threshold}
}

type allocationThresholdRule struct {
	threshold float64
}

func (allocationThresholdRule) Name() string { return ruleAllocationThreshold }

func (r allocationThresholdRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityAllocation || change.Action != domain.ActionCreate {
			continue
		}
		a, ok := change.After.(domain.Allocation)
		if !ok {
			return domain.Result{}, fmt.Errorf("allocation change carries %T", change.After)
		}
		if a.Score.Total < r.threshold {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     ruleAllocationThreshold,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("organ %s to patient %s scores %.2f, below %.2f", a.OrganID, a.PatientID, a.Score.Total, r.threshold),
				Entity:   domain.EntityAllocation,
				EntityID: a.ID,
			})
		}
	}
	return res, nil
}

// NewOrganSingleAllocationRule blocks states where an organ is allocated more
// than once or where the organ's recipient disagrees with its allocation record.
func NewOrganSingleAllocationRule() domain.Rule {
	return organSingleAllocationRule{}
}

type organSingleAllocationRule struct{}

func (organSingleAllocationRule) Name() string { return ruleOrganSingleAllocation }

func (organSingleAllocationRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	var res domain.Result
	block := func(entity domain.EntityType, id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     ruleOrganSingleAllocation,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   entity,
			EntityID: id,
		})
	}
	byOrgan := make(map[string]domain.Allocation)
	for _, a := range view.ListAllocations() {
		if prev, dup := byOrgan[a.OrganID]; dup {
			block(domain.EntityAllocation, a.ID, fmt.Sprintf("organ %s allocated to both %s and %s", a.OrganID, prev.PatientID, a.PatientID))
			continue
		}
		byOrgan[a.OrganID] = a
		organ, ok := view.FindOrgan(a.OrganID)
		if !ok {
			block(domain.EntityAllocation, a.ID, fmt.Sprintf("allocation %s references unknown organ %s", a.ID, a.OrganID))
			continue
		}
		if organ.AllocatedTo == nil || *organ.AllocatedTo != a.PatientID {
			block(domain.EntityOrgan, organ.ID, fmt.Sprintf("organ %s recipient does not match allocation %s", organ.ID, a.ID))
		}
	}
	for _, organ := range view.ListOrgans() {
		if organ.Allocated() {
			if _, ok := byOrgan[organ.ID]; !ok {
				block(domain.EntityOrgan, organ.ID, fmt.Sprintf("organ %s marked allocated without an allocation record", organ.ID))
			}
		}
	}
	return res, nil
}
