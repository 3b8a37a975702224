// Package units provides shared constants and validation for area units,
// plus paint quantity estimation from wall geometry.
package units

// Unit constants
const (
	SQM  = "sqm"
	SQFT = "sqft"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{SQM, SQFT}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "sqm, sqft"
}

// ConvertArea converts an area from square meters to the target units.
// Wall geometry stores extents in meters.
func ConvertArea(areaSqm float64, targetUnits string) float64 {
	switch targetUnits {
	case SQFT:
		return areaSqm * 10.7639 // m2 to ft2
	case SQM:
		return areaSqm // no conversion needed
	default:
		return areaSqm // default to m2 if unknown unit
	}
}

// CoverageSqmPerLiter is the nominal spread rate of one liter of interior
// wall paint.
const CoverageSqmPerLiter = 10.0

// PaintLiters estimates the paint volume needed to cover the given area for
// the given number of coats. Coats below one are treated as one.
func PaintLiters(areaSqm float64, coats int) float64 {
	if coats < 1 {
		coats = 1
	}
	if areaSqm < 0 {
		return 0
	}
	return areaSqm * float64(coats) / CoverageSqmPerLiter
}
