// Package boid computes steering forces (seek, flee, align) over the
// neighbor sets served by the spatial hash and integrates velocities and
// positions under clamp limits. The update is two-pass: pass one reads the
// whole position/velocity snapshot and stages new velocities, pass two
// commits velocities and advances positions. Every agent therefore sees
// the same pre-update state regardless of thread scheduling.
package boid

import (
	"errors"

	"github.com/chewxy/math32"

	"github.com/lixenwraith/swarm/arena"
	"github.com/lixenwraith/swarm/component"
	"github.com/lixenwraith/swarm/pool"
	"github.com/lixenwraith/swarm/spatial"
	"github.com/lixenwraith/swarm/vmath"
)

const (
	// minEntitiesPerTask keeps chunks large enough that task scheduling
	// overhead stays under the compute cost.
	minEntitiesPerTask = 48

	defaultTasksPerThread = 4

	// fleeEpsilon guards the inverse-square weighting against coincident
	// neighbors.
	fleeEpsilon = 1e-5

	// serialArenaBytes backs neighbor buffers when the kernel runs
	// without a pool.
	serialArenaBytes = 1 << 23
)

var (
	ErrNoAgents       = errors.New("boid: update needs at least one agent")
	ErrLengthMismatch = errors.New("boid: agent arrays must have equal length")
	ErrTooManyAgents  = errors.New("boid: agent count exceeds kernel capacity")
)

// Params are the rule radii and integration clamps. SeekRadius doubles as
// the neighbor query radius and must be the largest of the three.
type Params struct {
	SeekRadius  float32
	FleeRadius  float32
	AlignRadius float32

	MinVel   float32
	MaxVel   float32
	MaxAccel float32

	// TasksPerThread scales the chunk fan-out; zero selects the default.
	TasksPerThread int
}

// Kernel holds the staged-velocity buffer and chunk descriptors so Update
// does not allocate.
type Kernel struct {
	workers *pool.Pool // nil runs serially
	hash    *spatial.Hash
	params  Params

	maxAgents int
	newVel    []vmath.Vec3
	chunks    []chunk

	serialScratch *arena.Arena
}

type chunk struct {
	k          *Kernel
	positions  []vmath.Vec4
	velocities []vmath.Vec3
	components []component.Mask
	behaviours []component.Behaviour
	start, end int
	dt         float32
}

// New creates a kernel sized for at most maxAgents. The hash must be
// rebuilt from the same position array the kernel updates.
func New(workers *pool.Pool, hash *spatial.Hash, params Params, maxAgents int) (*Kernel, error) {
	if maxAgents < 1 {
		return nil, ErrNoAgents
	}
	if params.TasksPerThread <= 0 {
		params.TasksPerThread = defaultTasksPerThread
	}

	maxChunks := 1
	if workers != nil {
		maxChunks = workers.NumWorkers() * params.TasksPerThread
	}

	serialScratch, err := arena.New(serialArenaBytes)
	if err != nil {
		return nil, err
	}

	return &Kernel{
		workers:       workers,
		hash:          hash,
		params:        params,
		maxAgents:     maxAgents,
		newVel:        make([]vmath.Vec3, maxAgents),
		chunks:        make([]chunk, maxChunks),
		serialScratch: serialScratch,
	}, nil
}

// Params returns the kernel's active parameters.
func (k *Kernel) Params() Params {
	return k.params
}

// Update runs one simulation step over the agent arrays: force
// accumulation and velocity staging in pass one, velocity commit and
// position advance in pass two. Invalid inputs leave all state untouched.
func (k *Kernel) Update(positions []vmath.Vec4, velocities []vmath.Vec3, components []component.Mask, behaviours []component.Behaviour, dt float32) error {
	n := len(positions)
	if n == 0 {
		return ErrNoAgents
	}
	if len(velocities) != n || len(components) != n || len(behaviours) != n {
		return ErrLengthMismatch
	}
	if n > k.maxAgents {
		return ErrTooManyAgents
	}

	nChunks := k.chunkCount(n)
	per := (n + nChunks - 1) / nChunks

	if k.workers == nil || nChunks == 1 {
		c := &k.chunks[0]
		*c = chunk{k: k, positions: positions, velocities: velocities,
			components: components, behaviours: behaviours, start: 0, end: n, dt: dt}
		k.serialScratch.Reset()
		c.forces(k.serialScratch)
		c.integrate()
		return nil
	}

	submitted := 0
	for i := 0; i < nChunks; i++ {
		start := i * per
		if start >= n {
			break
		}
		end := start + per
		if end > n {
			end = n
		}
		c := &k.chunks[i]
		*c = chunk{k: k, positions: positions, velocities: velocities,
			components: components, behaviours: behaviours, start: start, end: end, dt: dt}
		k.workers.Submit(forcesWork, c)
		submitted++
	}
	k.workers.WaitForCompletion(0)

	for i := 0; i < submitted; i++ {
		k.workers.Submit(integrateWork, &k.chunks[i])
	}
	k.workers.WaitForCompletion(0)

	return nil
}

func (k *Kernel) chunkCount(n int) int {
	nChunks := len(k.chunks)
	if byFloor := n / minEntitiesPerTask; byFloor < nChunks {
		nChunks = byFloor
	}
	if nChunks < 1 {
		nChunks = 1
	}
	return nChunks
}

func forcesWork(payload any, _ uint32, scratch *arena.Arena) {
	payload.(*chunk).forces(scratch)
}

func integrateWork(payload any, _ uint32, _ *arena.Arena) {
	payload.(*chunk).integrate()
}

// forces is pass one: one radius query per agent at the seek radius, the
// three rule accumulators filled in a single walk of the neighbor set,
// then the clamped velocity staged into newVel.
func (c *chunk) forces(scratch *arena.Arena) {
	k := c.k
	p := &k.params

	// Sized to the agent count so no single query can overflow.
	neighbors := arena.Slice[uint32](scratch, len(c.positions))
	if neighbors == nil {
		panic("boid: worker arena exhausted, size it for the neighbor buffer")
	}
	var qs *spatial.QueryScratch
	if scratchBuf, ok := spatial.MakeQueryScratch(scratch, len(c.positions)); ok {
		qs = &scratchBuf
	}

	seekSq := p.SeekRadius * p.SeekRadius
	fleeSq := p.FleeRadius * p.FleeRadius
	alignSq := p.AlignRadius * p.AlignRadius

	for i := c.start; i < c.end; i++ {
		vel := c.velocities[i]
		var accel vmath.Vec3

		if c.components[i].Has(component.Spatial) && c.components[i].Has(component.Boid) {
			self := c.positions[i].XYZ()
			count, err := k.hash.Query(self, p.SeekRadius, neighbors, qs)
			if err != nil {
				panic("boid: neighbor query against unbuilt hash")
			}

			var seekSum, fleeSum, alignSum vmath.Vec3
			var nSeek, nFlee, nAlign int

			for _, id := range neighbors[:count] {
				j := int(id)
				if j == i {
					continue
				}
				diff := vmath.V3Sub(c.positions[j].XYZ(), self)
				distSq := vmath.V3MagSq(diff)

				if distSq < seekSq {
					seekSum = vmath.V3Add(seekSum, diff)
					nSeek++
				}
				if distSq < fleeSq {
					w := fleeSq / (distSq + fleeEpsilon)
					fleeSum = vmath.V3Add(fleeSum, vmath.V3Scale(diff, w))
					nFlee++
				}
				if distSq < alignSq {
					alignSum = vmath.V3Add(alignSum, c.velocities[j])
					nAlign++
				}
			}

			beh := c.behaviours[i]
			if beh.Has(component.Seek) && nSeek > 0 {
				accel = vmath.V3Add(accel, vmath.V3Scale(seekSum, 1/float32(nSeek)))
			}
			if beh.Has(component.Flee) && nFlee > 0 {
				// Flee pushes outward: the averaged offset is negated.
				accel = vmath.V3Sub(accel, vmath.V3Scale(fleeSum, 1/float32(nFlee)))
			}
			if beh.Has(component.Align) && nAlign > 0 {
				accel = vmath.V3Add(accel, vmath.V3Scale(alignSum, 1/float32(nAlign)))
			}
		}

		accel = vmath.V3ClampMag(accel, p.MaxAccel)
		vel = vmath.V3Add(vel, vmath.V3Scale(accel, c.dt))
		vel = vmath.V3ClampMag(vel, p.MaxVel)
		if magSq := vmath.V3MagSq(vel); magSq < p.MinVel*p.MinVel && magSq > 0 {
			// Zero velocity stays zero rather than dividing by it.
			vel = vmath.V3Scale(vel, p.MinVel/math32.Sqrt(magSq))
		}

		k.newVel[i] = vel
	}
}

// integrate is pass two: commit the staged velocity and advance the
// position. Positions move only here, so pass one reads a stable
// snapshot.
func (c *chunk) integrate() {
	k := c.k
	for i := c.start; i < c.end; i++ {
		v := k.newVel[i]
		c.velocities[i] = v
		c.positions[i].X += v.X * c.dt
		c.positions[i].Y += v.Y * c.dt
		c.positions[i].Z += v.Z * c.dt
	}
}
