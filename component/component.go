// Package component defines the per-agent bitsets selecting which
// subsystems see an agent and which steering rules apply to it.
package component

// Mask selects the subsystems that process an agent.
type Mask uint64

const (
	Spatial Mask = 1 << iota // indexed by the spatial hash
	Boid                     // updated by the boid kernel
	Plane                    // constrained to a plane (reserved)
)

// Has reports whether every bit of m is set.
func (c Mask) Has(m Mask) bool {
	return c&m == m
}

// Behaviour selects the steering rules applied to a boid agent.
type Behaviour uint64

const (
	Seek     Behaviour = 1 << iota // cohesion toward neighbors
	Flee                           // inverse-square separation
	Align                          // velocity matching
	Coplanar                       // planar flocking (reserved)
)

// Has reports whether every bit of b is set.
func (b Behaviour) Has(m Behaviour) bool {
	return b&m == m
}
