package core

import "transplantcore/internal/compat"

// NewDefaultRulesEngine builds an engine with the built-in policy set and the
// default acceptance threshold.
func NewDefaultRulesEngine() *RulesEngine {
	return NewPolicyRulesEngine(compat.DefaultAcceptanceThreshold)
}

// NewPolicyRulesEngine builds the built-in policy set enforcing threshold on
// new allocations.
func NewPolicyRulesEngine(threshold float64) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewWaitlistOrderRule())
	engine.Register(NewUniqueWaitlistPatientRule())
	engine.Register(NewAllocationThresholdRule(threshold))
	engine.Register(NewOrganSingleAllocationRule())
	return engine
}
