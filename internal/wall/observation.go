package wall

import "math"

// Alignment classifies the orientation of a detected planar surface.
type Alignment string

const (
	AlignmentVertical   Alignment = "vertical"
	AlignmentHorizontal Alignment = "horizontal"
	AlignmentOther      Alignment = "other"
)

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Transform is a 4x4 rigid transform in world space, row-major.
// Translation lives in elements 3, 7 and 11.
type Transform [16]float64

// IdentityTransform returns the identity transform.
func IdentityTransform() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Position returns the translation components of the transform.
func (t Transform) Position() (x, y, z float64) {
	return t[3], t[7], t[11]
}

// DistanceTo returns the Euclidean distance between the translation
// components of two transforms.
func (t Transform) DistanceTo(o Transform) float64 {
	dx := t[3] - o[3]
	dy := t[7] - o[7]
	dz := t[11] - o[11]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// IsValid checks if the transform is a proper rigid transform:
// 1. Orthonormal rotation submatrix (det ≈ 1)
// 2. Last row is [0 0 0 1]
func (t Transform) IsValid() bool {
	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	// Check determinant ≈ 1 (proper rotation, not reflection)
	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}

	// Check last row is [0 0 0 1]
	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1.0) > 0.001 {
		return false
	}

	return true
}

// Extent is the measured width and height of a planar surface in meters.
type Extent struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SurfaceObservation is one tick's report of a detected planar surface from
// the tracking engine. Observations are immutable; a later tick supersedes an
// earlier one carrying the same ID.
type SurfaceObservation struct {
	// ID is the stable identifier the tracking engine assigns to one
	// physical surface across ticks.
	ID        string    `json:"id"`
	Alignment Alignment `json:"alignment"`
	Extent    Extent    `json:"extent"`
	Pose      Transform `json:"pose"`
}
