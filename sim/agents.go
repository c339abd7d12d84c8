package sim

import (
	"math/rand"

	"github.com/lixenwraith/swarm/component"
	"github.com/lixenwraith/swarm/vmath"
)

// Agents is the simulation population in parallel arrays indexed 0..N-1.
// The layout is never permuted by the simulation; reordering happens only
// inside the spatial hash, which maps back through its own id table.
type Agents struct {
	N          int
	Positions  []vmath.Vec4
	Velocities []vmath.Vec3
	Components []component.Mask
	Behaviours []component.Behaviour
}

// NewAgents allocates zeroed parallel arrays for n agents.
func NewAgents(n int) *Agents {
	return &Agents{
		N:          n,
		Positions:  make([]vmath.Vec4, n),
		Velocities: make([]vmath.Vec3, n),
		Components: make([]component.Mask, n),
		Behaviours: make([]component.Behaviour, n),
	}
}

// DistributeRandom spreads the agents uniformly through a cube of
// half-extent extents around the origin, flags them spatial boids with
// all three steering rules, and starts them drifting along +X.
func (a *Agents) DistributeRandom(extents float32, rng *rand.Rand) {
	for i := 0; i < a.N; i++ {
		a.Components[i] = component.Spatial | component.Boid
		a.Behaviours[i] = component.Seek | component.Flee | component.Align

		a.Positions[i] = vmath.Vec4{
			X: rng.Float32()*2*extents - extents,
			Y: rng.Float32()*2*extents - extents,
			Z: rng.Float32()*2*extents - extents,
			W: 1,
		}
		a.Velocities[i] = vmath.Vec3{X: 0.25}
	}
}

// MeanSpeed reports the average velocity magnitude across the population.
func (a *Agents) MeanSpeed() float32 {
	if a.N == 0 {
		return 0
	}
	sum := float32(0)
	for _, v := range a.Velocities {
		sum += vmath.V3Mag(v)
	}
	return sum / float32(a.N)
}
