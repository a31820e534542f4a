// Package publisher produces demo motion messages for the bridge.
package publisher

import (
	"math"
)

// Rotation is expressed in degrees.
type Rotation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transformation is the motion payload of a 3D cube.
type Transformation struct {
	Rotation    Rotation `json:"rotation"`
	Translation Vector   `json:"translation"`
	Scale       Vector   `json:"scale"`
}

// NewTransformation returns the identity transformation.
func NewTransformation() Transformation {
	return Transformation{
		Scale: Vector{X: 1, Y: 1, Z: 1},
	}
}

// Advance moves the transformation one step.
func (t *Transformation) Advance() {
	t.Rotation.Roll++
	t.Rotation.Pitch += 2
	t.Rotation.Yaw += 3

	t.Translation.X++
	t.Translation.Y += 2
	t.Translation.Z += 3

	t.Scale.X = math.Sin(radians(t.Rotation.Roll)) + 2
	t.Scale.Y = math.Cos(radians(t.Rotation.Pitch)) + 2
	t.Scale.Z = math.Abs(math.Sin(radians(t.Rotation.Yaw))) + 1
}

func radians(deg float64) float64 {
	return deg / 180 * math.Pi
}
