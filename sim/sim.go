// Package sim owns the simulation context: the agent arrays, the thread
// pool, the spatial hash, the boid kernel, and the frame driver that
// sequences update, rebuild, and render preparation each frame.
package sim

import (
	"math/rand"
	"time"

	"github.com/lixenwraith/swarm/arena"
	"github.com/lixenwraith/swarm/boid"
	"github.com/lixenwraith/swarm/pool"
	"github.com/lixenwraith/swarm/spatial"
	"github.com/lixenwraith/swarm/telemetry"
	"github.com/lixenwraith/swarm/vmath"
)

// frameTimeWindow is the number of frame deltas averaged for the HUD.
const frameTimeWindow = 10

const matrixJobCount = 64

// Simulation is the context object owning every core subsystem. All
// global state of the system lives here, so multiple simulations can
// coexist in one process (and in one test binary).
type Simulation struct {
	cfg    Config
	Agents *Agents

	workers *pool.Pool
	hash    *spatial.Hash
	kernel  *boid.Kernel

	// frameArena backs the per-frame instance matrices; reset at the end
	// of every frame.
	frameArena *arena.Arena

	matrixJobs []matrixJob

	currentTime float64
	iterations  int64

	lastTime time.Time
	started  bool

	dtRing  [frameTimeWindow]float32
	dtIndex int

	metrics *telemetry.Metrics
}

type matrixJob struct {
	s          *Simulation
	out        []vmath.Mat4
	start, end int
}

// New builds a ready simulation: pool started, agents distributed, hash
// built from the initial positions.
func New(cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workers, err := pool.Start(cfg.Workers, cfg.QueueCapacity, cfg.ArenaBytesPerWorker)
	if err != nil {
		return nil, err
	}

	hash, err := spatial.New(workers, cfg.HashArenaBytes)
	if err != nil {
		workers.Shutdown()
		return nil, err
	}

	agents := NewAgents(cfg.NumAgents)
	agents.DistributeRandom(cfg.SpawnExtents, rand.New(rand.NewSource(cfg.Seed)))

	if err := hash.Rebuild(agents.Positions, cfg.CellSize()); err != nil {
		workers.Shutdown()
		return nil, err
	}

	kernel, err := boid.New(workers, hash, boid.Params{
		SeekRadius:  cfg.SeekRadius,
		FleeRadius:  cfg.FleeRadius,
		AlignRadius: cfg.AlignRadius,
		MinVel:      cfg.MinVel,
		MaxVel:      cfg.MaxVel,
		MaxAccel:    cfg.MaxAccel,
	}, cfg.NumAgents)
	if err != nil {
		workers.Shutdown()
		return nil, err
	}

	// 64 bytes per instance matrix plus alignment headroom.
	frameArena, err := arena.New(uint32(cfg.NumAgents)*64 + arena.Align*2)
	if err != nil {
		workers.Shutdown()
		return nil, err
	}

	return &Simulation{
		cfg:        cfg,
		Agents:     agents,
		workers:    workers,
		hash:       hash,
		kernel:     kernel,
		frameArena: frameArena,
		matrixJobs: make([]matrixJob, matrixJobCount),
	}, nil
}

// Config returns the simulation's immutable configuration.
func (s *Simulation) Config() Config {
	return s.cfg
}

// Hash exposes the spatial hash for queries between frames.
func (s *Simulation) Hash() *spatial.Hash {
	return s.hash
}

// Pool exposes the worker pool.
func (s *Simulation) Pool() *pool.Pool {
	return s.workers
}

// SetMetrics attaches Prometheus collectors; nil disables observation.
func (s *Simulation) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
	if m != nil {
		m.Agents.Set(float64(s.Agents.N))
	}
}

// CurrentTime reports accumulated simulation seconds.
func (s *Simulation) CurrentTime() float64 {
	return s.currentTime
}

// Iterations reports the number of steps executed.
func (s *Simulation) Iterations() int64 {
	return s.iterations
}

// FrameTimeAvg reports the mean frame delta over the last ten frames.
func (s *Simulation) FrameTimeAvg() float32 {
	sum := float32(0)
	for _, dt := range s.dtRing {
		sum += dt
	}
	return sum / frameTimeWindow
}

// Step advances the simulation by dt: kernel update, then hash rebuild so
// the next step's queries see the moved positions. The one-frame lag
// between the hash the kernel reads and the positions the renderer shows
// is deliberate; rebuilding first would cost a full extra query pass.
func (s *Simulation) Step(dt float32) error {
	updateStart := time.Now()
	err := s.kernel.Update(s.Agents.Positions, s.Agents.Velocities,
		s.Agents.Components, s.Agents.Behaviours, dt)
	if err != nil {
		return err
	}
	updateDone := time.Now()

	if err := s.hash.Rebuild(s.Agents.Positions, s.cfg.CellSize()); err != nil {
		return err
	}

	s.currentTime += float64(dt)
	s.iterations++
	s.dtRing[s.dtIndex] = dt
	s.dtIndex = (s.dtIndex + 1) % frameTimeWindow

	if s.metrics != nil {
		now := time.Now()
		s.metrics.UpdateSeconds.Observe(updateDone.Sub(updateStart).Seconds())
		s.metrics.RebuildSeconds.Observe(now.Sub(updateDone).Seconds())
		s.metrics.Iterations.Inc()
		s.metrics.FrameTimeAvg.Set(float64(s.FrameTimeAvg()))
	}

	return nil
}

// Frame runs one full frame against the renderer: clamp the wall-clock
// delta, step the simulation, build the per-instance transforms in
// parallel, and hand everything to the renderer. The frame arena and the
// pool are reset before returning.
func (s *Simulation) Frame(now time.Time, r Renderer, view, proj vmath.Mat4, eye vmath.Vec3) error {
	frameStart := time.Now()

	dt := s.cfg.MinDT
	if s.started {
		if wall := float32(now.Sub(s.lastTime).Seconds()); wall > dt {
			dt = wall
		}
	}
	s.lastTime = now
	s.started = true

	if err := s.Step(dt); err != nil {
		return err
	}

	models := s.instanceMatrices()

	r.SetCamera(view, proj, eye)
	r.SetLight(
		vmath.Vec3{X: 0.1, Y: 0.1, Z: 0.1},
		vmath.Vec3{X: 0.8, Y: 0.8, Z: 0.8},
		vmath.Vec3{X: 1, Y: 1, Z: 1},
		eye,
	)
	r.DrawInstances(models, s.Agents.N)

	if s.metrics != nil {
		s.metrics.FrameSeconds.Observe(time.Since(frameStart).Seconds())
		s.metrics.TasksSubmitted.Add(float64(s.workers.ItemsAdded()))
	}

	s.workers.Reset()
	s.frameArena.Reset()
	return nil
}

// instanceMatrices builds translate * rotate-to-velocity * scale for
// every agent into the frame arena, fanned out over the pool.
func (s *Simulation) instanceMatrices() []vmath.Mat4 {
	n := s.Agents.N
	models := arena.Slice[vmath.Mat4](s.frameArena, n)
	if models == nil {
		panic("sim: frame arena exhausted building instance transforms")
	}

	jobs := matrixJobCount
	if jobs > n {
		jobs = 1
	}
	per := (n + jobs - 1) / jobs

	if jobs == 1 {
		s.matrixRange(models, 0, n)
		return models
	}

	for i := 0; i < jobs; i++ {
		start := i * per
		if start >= n {
			break
		}
		end := start + per
		if end > n {
			end = n
		}
		job := &s.matrixJobs[i]
		job.s = s
		job.out = models
		job.start = start
		job.end = end
		s.workers.Submit(matrixWork, job)
	}
	s.workers.WaitForCompletion(0)
	return models
}

func matrixWork(payload any, _ uint32, _ *arena.Arena) {
	job := payload.(*matrixJob)
	job.s.matrixRange(job.out, job.start, job.end)
}

func (s *Simulation) matrixRange(out []vmath.Mat4, start, end int) {
	scale := vmath.M4Scale(vmath.Vec3{X: s.cfg.BoidScale, Y: s.cfg.BoidScale, Z: s.cfg.BoidScale})
	for i := start; i < end; i++ {
		p := s.Agents.Positions[i].XYZ()
		rotation := vmath.M4RotateTo(p, vmath.V3Add(p, s.Agents.Velocities[i]))
		out[i] = vmath.M4Mul(vmath.M4Translate(p), vmath.M4Mul(rotation, scale))
	}
}

// Shutdown stops the worker pool. The simulation is unusable afterwards.
func (s *Simulation) Shutdown() {
	s.workers.Shutdown()
}
