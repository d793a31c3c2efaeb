// Package domain defines the core entities, value types, and rule evaluation
// primitives used by transplantcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPatient identifies a registered patient record.
	EntityPatient EntityType = "patient"
	// EntityOrgan identifies a donated organ record.
	EntityOrgan EntityType = "organ"
	// EntityWaitlistEntry identifies a patient's position on the waitlist.
	EntityWaitlistEntry EntityType = "waitlist_entry"
	// EntityAllocation identifies an organ-to-patient allocation record.
	EntityAllocation EntityType = "allocation"
)

// Patient is a requester waiting for an organ. Weight is recorded in kilograms.
type Patient struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BloodType  BloodType `json:"blood_type"`
	WeightKG   int       `json:"weight_kg"`
	TissueType string    `json:"tissue_type"`
}

// Organ is an allocatable resource. Weight is recorded in grams.
type Organ struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	BloodType   BloodType `json:"blood_type"`
	WeightGrams int       `json:"weight_grams"`
	TissueType  string    `json:"tissue_type"`
	// AllocatedTo holds the receiving patient once the organ has been allocated.
	AllocatedTo *string `json:"allocated_to,omitempty"`
}

// Allocated reports whether the organ has already been assigned.
func (o Organ) Allocated() bool {
	return o.AllocatedTo != nil
}

// Priority bounds for waitlist entries.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Entry wraps one patient with its assigned waitlist priority.
type Entry struct {
	Patient  Patient `json:"patient"`
	Priority int     `json:"priority"`
}

// RankedEntry is a read-only view of an entry together with its derived,
// 1-indexed position on the waitlist.
type RankedEntry struct {
	Rank     int     `json:"rank"`
	Patient  Patient `json:"patient"`
	Priority int     `json:"priority"`
}

// Compatibility is the weighted score of an organ against a patient together
// with the sub-scores it was built from. All values lie in [0,100].
type Compatibility struct {
	Blood  float64 `json:"blood"`
	Size   float64 `json:"size"`
	Tissue float64 `json:"tissue"`
	Total  float64 `json:"total"`
}

// Allocation records the outcome of matching an organ to a waiting patient.
type Allocation struct {
	ID          string        `json:"id"`
	OrganID     string        `json:"organ_id"`
	PatientID   string        `json:"patient_id"`
	PatientName string        `json:"patient_name"`
	Priority    int           `json:"priority"`
	Rank        int           `json:"rank"`
	Score       Compatibility `json:"score"`
	Threshold   float64       `json:"threshold"`
	AllocatedAt time.Time     `json:"allocated_at"`
	Sequence    int64         `json:"sequence"`
}

// Action describes the type of mutation applied to an entity.
type Action string

// Supported mutation actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}
