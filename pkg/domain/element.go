package domain

import "math"

// ElementID identifies a single element inside the host document.
type ElementID string

// ElementRef is a lightweight handle to a host document element.
type ElementRef struct {
	ID       ElementID `json:"id"`
	Category string    `json:"category"`
	TypeName string    `json:"type_name"`
	Name     string    `json:"name,omitempty"`
}

// Parameter is a named value on an element. Read-only parameters reject
// writes at the host boundary.
type Parameter struct {
	Name     string `json:"name"`
	Value    any    `json:"value"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// Point3D is a position in the host document's coordinate system (feet).
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the euclidean distance between two points.
func (p Point3D) DistanceTo(other Point3D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// InstanceSpec describes a new element to create in the host document.
type InstanceSpec struct {
	Category   string         `json:"category"`
	TypeName   string         `json:"type_name"`
	Name       string         `json:"name,omitempty"`
	Location   Point3D        `json:"location"`
	Parameters map[string]any `json:"parameters,omitempty"`
}
