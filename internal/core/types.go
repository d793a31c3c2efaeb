package core

import "transplantcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	BloodType          = domain.BloodType
	Patient            = domain.Patient
	Organ              = domain.Organ
	Entry              = domain.Entry
	RankedEntry        = domain.RankedEntry
	Compatibility      = domain.Compatibility
	Allocation         = domain.Allocation
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPatient       = domain.EntityPatient
	EntityOrgan         = domain.EntityOrgan
	EntityWaitlistEntry = domain.EntityWaitlistEntry
	EntityAllocation    = domain.EntityAllocation
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
