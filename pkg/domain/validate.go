package domain

import (
	"fmt"
	"strings"
)

// Normalize trims the patient's fields and canonicalises the blood type. It
// returns an error wrapping ErrInvalid when a field cannot be accepted.
func (p Patient) Normalize() (Patient, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.TissueType = strings.TrimSpace(p.TissueType)
	if p.Name == "" {
		return Patient{}, fmt.Errorf("patient name: %w", ErrInvalid)
	}
	bt, err := ParseBloodType(string(p.BloodType))
	if err != nil {
		return Patient{}, fmt.Errorf("patient %s: %w: %v", p.Name, ErrInvalid, err)
	}
	p.BloodType = bt
	if p.WeightKG <= 0 {
		return Patient{}, fmt.Errorf("patient %s weight %d: %w", p.Name, p.WeightKG, ErrInvalid)
	}
	return p, nil
}

// Normalize applies the same rules as Patient.Normalize to an organ. The
// allocation marker is cleared: callers register organs, they never import
// allocated ones.
func (o Organ) Normalize() (Organ, error) {
	o.ID = strings.TrimSpace(o.ID)
	o.Name = strings.TrimSpace(o.Name)
	o.TissueType = strings.TrimSpace(o.TissueType)
	o.AllocatedTo = nil
	if o.Name == "" {
		return Organ{}, fmt.Errorf("organ name: %w", ErrInvalid)
	}
	bt, err := ParseBloodType(string(o.BloodType))
	if err != nil {
		return Organ{}, fmt.Errorf("organ %s: %w: %v", o.Name, ErrInvalid, err)
	}
	o.BloodType = bt
	if o.WeightGrams <= 0 {
		return Organ{}, fmt.Errorf("organ %s weight %d: %w", o.Name, o.WeightGrams, ErrInvalid)
	}
	return o, nil
}
