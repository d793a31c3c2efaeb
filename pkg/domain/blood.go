package domain

import (
	"fmt"
	"strings"
)

// BloodType is an ABO/Rh blood group code such as "A+" or "O-".
type BloodType string

// The eight canonical ABO/Rh codes.
const (
	BloodOPos  BloodType = "O+"
	BloodONeg  BloodType = "O-"
	BloodAPos  BloodType = "A+"
	BloodANeg  BloodType = "A-"
	BloodBPos  BloodType = "B+"
	BloodBNeg  BloodType = "B-"
	BloodABPos BloodType = "AB+"
	BloodABNeg BloodType = "AB-"
)

var bloodTypes = []BloodType{BloodONeg, BloodOPos, BloodANeg, BloodAPos, BloodBNeg, BloodBPos, BloodABNeg, BloodABPos}

// BloodTypes returns the canonical codes in a stable order.
func BloodTypes() []BloodType {
	return append([]BloodType(nil), bloodTypes...)
}

// ParseBloodType normalizes s and validates it against the canonical codes.
// Scoring never calls this; it exists for input paths that want strictness.
func ParseBloodType(s string) (BloodType, error) {
	bt := BloodType(strings.ToUpper(strings.TrimSpace(s)))
	if bt.Valid() {
		return bt, nil
	}
	return "", fmt.Errorf("invalid blood type %q", s)
}

// Valid reports whether b is one of the canonical codes.
func (b BloodType) Valid() bool {
	for _, bt := range bloodTypes {
		if b == bt {
			return true
		}
	}
	return false
}

// RhPositive reports whether the code carries a positive Rh factor.
func (b BloodType) RhPositive() bool {
	return strings.HasSuffix(string(b), "+")
}

func (b BloodType) String() string { return string(b) }
