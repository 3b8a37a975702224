package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, unit := range ValidUnits {
		if !IsValid(unit) {
			t.Errorf("IsValid(%q) = false, want true", unit)
		}
	}
	if IsValid("acres") {
		t.Error("IsValid(\"acres\") = true, want false")
	}
	if IsValid("") {
		t.Error("IsValid(\"\") = true, want false")
	}
}

func TestConvertArea(t *testing.T) {
	cases := []struct {
		name string
		area float64
		unit string
		want float64
	}{
		{"square meters passthrough", 5, SQM, 5},
		{"square feet", 1, SQFT, 10.7639},
		{"unknown unit falls back to sqm", 3, "acres", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ConvertArea(tc.area, tc.unit)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("ConvertArea(%v, %q) = %v, want %v", tc.area, tc.unit, got, tc.want)
			}
		})
	}
}

func TestPaintLiters(t *testing.T) {
	// 10 m2 at nominal coverage is one liter per coat.
	if got := PaintLiters(10, 1); got != 1 {
		t.Errorf("PaintLiters(10, 1) = %v, want 1", got)
	}
	if got := PaintLiters(10, 2); got != 2 {
		t.Errorf("PaintLiters(10, 2) = %v, want 2", got)
	}
	// Zero coats is treated as one.
	if got := PaintLiters(10, 0); got != 1 {
		t.Errorf("PaintLiters(10, 0) = %v, want 1", got)
	}
	if got := PaintLiters(-4, 1); got != 0 {
		t.Errorf("PaintLiters(-4, 1) = %v, want 0", got)
	}
}
