package compat

import (
	"math"
	"testing"

	"transplantcore/pkg/domain"
)

func TestBloodTypeScoreTable(t *testing.T) {
	tests := []struct {
		donor     domain.BloodType
		recipient domain.BloodType
		want      float64
	}{
		{donor: domain.BloodONeg, recipient: domain.BloodABPos, want: 100},
		{donor: domain.BloodONeg, recipient: domain.BloodBNeg, want: 100},
		{donor: domain.BloodOPos, recipient: domain.BloodAPos, want: 90},
		{donor: domain.BloodOPos, recipient: domain.BloodABPos, want: 90},
		{donor: domain.BloodOPos, recipient: domain.BloodONeg, want: 0},
		{donor: domain.BloodOPos, recipient: domain.BloodANeg, want: 0},
		{donor: domain.BloodANeg, recipient: domain.BloodAPos, want: 80},
		{donor: domain.BloodANeg, recipient: domain.BloodABNeg, want: 80},
		{donor: domain.BloodANeg, recipient: domain.BloodABPos, want: 0},
		{donor: domain.BloodANeg, recipient: domain.BloodONeg, want: 0},
		{donor: domain.BloodAPos, recipient: domain.BloodANeg, want: 70},
		{donor: domain.BloodAPos, recipient: domain.BloodABPos, want: 70},
		{donor: domain.BloodAPos, recipient: domain.BloodABNeg, want: 0},
		{donor: domain.BloodAPos, recipient: domain.BloodBPos, want: 0},
		{donor: domain.BloodBNeg, recipient: domain.BloodBPos, want: 80},
		{donor: domain.BloodBNeg, recipient: domain.BloodABNeg, want: 80},
		{donor: domain.BloodBNeg, recipient: domain.BloodABPos, want: 0},
		{donor: domain.BloodBPos, recipient: domain.BloodBNeg, want: 70},
		{donor: domain.BloodBPos, recipient: domain.BloodABPos, want: 70},
		{donor: domain.BloodBPos, recipient: domain.BloodAPos, want: 0},
		{donor: domain.BloodABNeg, recipient: domain.BloodABPos, want: 60},
		{donor: domain.BloodABNeg, recipient: domain.BloodAPos, want: 0},
		{donor: domain.BloodABPos, recipient: domain.BloodONeg, want: 50},
		{donor: domain.BloodABPos, recipient: domain.BloodAPos, want: 50},
	}
	for _, tt := range tests {
		if got := BloodTypeScore(tt.donor, tt.recipient); got != tt.want {
			t.Errorf("BloodTypeScore(%s -> %s) = %v, want %v", tt.donor, tt.recipient, got, tt.want)
		}
	}
	for _, bt := range domain.BloodTypes() {
		if got := BloodTypeScore(bt, bt); got != 100 {
			t.Errorf("exact match %s scored %v", bt, got)
		}
	}
}

func TestBloodTypeScoreUnknownCodes(t *testing.T) {
	if got := BloodTypeScore("Z+", domain.BloodAPos); got != 0 {
		t.Fatalf("unknown donor scored %v", got)
	}
	if got := BloodTypeScore(domain.BloodOPos, "XY"); got != 0 {
		t.Fatalf("unknown recipient without Rh marker scored %v", got)
	}
}

func TestBloodTypeScoreIsDirectional(t *testing.T) {
	forward := BloodTypeScore(domain.BloodOPos, domain.BloodABPos)
	reverse := BloodTypeScore(domain.BloodABPos, domain.BloodOPos)
	if forward == reverse {
		t.Fatalf("expected asymmetric scores, both %v", forward)
	}
}

func TestSizeScore(t *testing.T) {
	tests := []struct {
		name    string
		grams   int
		kg      int
		want    float64
		epsilon float64
	}{
		{name: "Exact", grams: 70000, kg: 70, want: 100},
		{name: "Half", grams: 85000, kg: 70, want: 50, epsilon: 1e-9},
		{name: "AtTolerance", grams: 40000, kg: 70, want: 0, epsilon: 1e-9},
		{name: "BeyondTolerance", grams: 3500, kg: 70, want: 0},
		{name: "Fractional", grams: 70300, kg: 70, want: 99, epsilon: 1e-9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SizeScore(tt.grams, tt.kg)
			if math.Abs(got-tt.want) > tt.epsilon {
				t.Fatalf("SizeScore(%d, %d) = %v, want %v", tt.grams, tt.kg, got, tt.want)
			}
		})
	}
}

func TestTissueScore(t *testing.T) {
	if TissueScore("HLA-A", "HLA-A") != TissueMatchScore {
		t.Fatalf("expected exact tissue match")
	}
	if TissueScore("HLA-A", "hla-a") != TissueMismatchScore {
		t.Fatalf("tissue comparison must be case sensitive")
	}
	if TissueScore("", "HLA-B") != TissueMismatchScore {
		t.Fatalf("unknown tissue should score the mismatch value")
	}
}
