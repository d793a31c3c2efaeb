// Package compat scores donor organs against waiting patients and selects the
// first acceptable recipient from a priority-ordered waitlist.
//
// Scoring is pure: it reads only the organ and patient passed in and never
// fails. Unknown blood or tissue codes simply score as poorly as possible.
package compat

import (
	"math"
	"strings"

	"transplantcore/pkg/domain"
)

// Sub-score bounds.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// SizeTolerance is the largest organ-to-patient weight difference, in
// kilograms, that still earns a non-zero size score.
const SizeTolerance = 30.0

// Tissue sub-scores.
const (
	TissueMatchScore    = 100.0
	TissueMismatchScore = 50.0
)

// BloodTypeScore rates how well a donor blood type suits a recipient. The
// rating is directional: BloodTypeScore(a, b) need not equal BloodTypeScore(b, a).
func BloodTypeScore(donor, recipient domain.BloodType) float64 {
	if donor == recipient {
		return 100.0
	}
	r := string(recipient)

	switch donor {
	case domain.BloodONeg:
		return 100.0
	case domain.BloodOPos:
		if recipient.RhPositive() {
			return 90.0
		}
	case domain.BloodANeg:
		if strings.HasPrefix(r, "A") || recipient == domain.BloodABNeg {
			return 80.0
		}
	case domain.BloodAPos:
		if strings.HasPrefix(r, "A") || recipient == domain.BloodABPos {
			return 70.0
		}
	case domain.BloodBNeg:
		if strings.HasPrefix(r, "B") || recipient == domain.BloodABNeg {
			return 80.0
		}
	case domain.BloodBPos:
		if strings.HasPrefix(r, "B") || recipient == domain.BloodABPos {
			return 70.0
		}
	case domain.BloodABNeg:
		if recipient == domain.BloodABNeg || recipient == domain.BloodABPos {
			return 60.0
		}
	case domain.BloodABPos:
		return 50.0
	}
	return 0.0
}

// SizeScore rates the weight difference between an organ in grams and a
// patient in kilograms. It falls linearly from 100 at an exact match to 0 at
// SizeTolerance.
func SizeScore(organGrams, patientKG int) float64 {
	diff := math.Abs(float64(organGrams)/1000.0 - float64(patientKG))
	if diff > SizeTolerance {
		return MinScore
	}
	return clamp(MaxScore - diff*(MaxScore/SizeTolerance))
}

// TissueScore compares tissue codes for exact equality.
func TissueScore(organ, patient string) float64 {
	if organ == patient {
		return TissueMatchScore
	}
	return TissueMismatchScore
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
