// Package spatial implements a uniform-grid spatial hash over the moving
// agent cloud. Rebuild is a parallel counting sort that reorders agent
// positions into structure-of-arrays form, cell by cell, so the radius
// query can walk contiguous memory. The hash owns a scratch arena and
// performs no heap allocation after construction.
package spatial

import (
	"errors"
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/lixenwraith/swarm/arena"
	"github.com/lixenwraith/swarm/pool"
	"github.com/lixenwraith/swarm/vmath"
)

const (
	// cellEmpty marks a cell with no members in cellStart.
	cellEmpty = uint32(0xFFFFFFFF)

	// rebuildJobs is the fan-out for the assign and scatter phases.
	rebuildJobs = 64

	// parallelThreshold is the agent count below which the rebuild runs
	// serially; task overhead dominates under it.
	parallelThreshold = 1024
)

var (
	ErrNoPositions      = errors.New("spatial: rebuild needs at least one position")
	ErrCellSize         = errors.New("spatial: cell size must be positive")
	ErrDegenerateDomain = errors.New("spatial: all positions identical, domain has no extent")
	ErrRadius           = errors.New("spatial: query radius must be positive")
	ErrNotBuilt         = errors.New("spatial: hash has not been rebuilt")
)

// Hash is the spatial acceleration structure. One Rebuild per frame;
// queries between rebuilds see a consistent snapshot. Rebuild and Query
// must not run concurrently; the frame driver sequences them.
type Hash struct {
	workers *pool.Pool // nil runs every phase serially
	mem     *arena.Arena

	cellSize  float32
	domainMin vmath.Vec3
	domainMax vmath.Vec3
	gx, gy, gz uint32
	numCells   uint32
	n          uint32

	// Reordered structure-of-arrays copy of the positions: members of the
	// same cell are contiguous. originalID maps a reordered index back to
	// the caller's agent index.
	posX, posY, posZ []float32
	originalID       []uint32

	// Half-open [cellStart, cellEnd) ranges into the reordered arrays.
	cellStart, cellEnd []uint32

	// cellVal holds each agent's linear cell index during rebuild; counts
	// doubles as the per-cell histogram and the scatter cursor.
	cellVal []uint32
	counts  []uint32

	// Persistent job descriptors so parallel phases submit without
	// allocating.
	domainJobs []domainJob
	phaseJobs  []phaseJob
}

type domainJob struct {
	pos      []vmath.Vec4
	min, max vmath.Vec3
}

type phaseJob struct {
	h          *Hash
	pos        []vmath.Vec4
	start, end int
}

// New creates a hash backed by a single scratch arena of memBytes. The
// arena must cover the worst frame: 20 bytes per agent plus 12 bytes per
// grid cell. workers may be nil for a serial hash.
func New(workers *pool.Pool, memBytes uint32) (*Hash, error) {
	mem, err := arena.New(memBytes)
	if err != nil {
		return nil, err
	}
	return &Hash{
		workers:    workers,
		mem:        mem,
		domainJobs: make([]domainJob, rebuildJobs),
		phaseJobs:  make([]phaseJob, rebuildJobs),
	}, nil
}

// CellSize reports the cell edge length of the last rebuild.
func (h *Hash) CellSize() float32 {
	return h.cellSize
}

// Len reports the number of agents indexed by the last rebuild.
func (h *Hash) Len() int {
	return int(h.n)
}

// GridSize reports the cell counts along each axis.
func (h *Hash) GridSize() (x, y, z uint32) {
	return h.gx, h.gy, h.gz
}

// Domain reports the AABB of the last rebuild.
func (h *Hash) Domain() (min, max vmath.Vec3) {
	return h.domainMin, h.domainMax
}

// OriginalID maps a reordered index back to the caller's agent index.
func (h *Hash) OriginalID(k uint32) uint32 {
	return h.originalID[k]
}

// CellRange returns the half-open range of cell c in the reordered
// arrays. ok is false for an empty cell.
func (h *Hash) CellRange(c uint32) (start, end uint32, ok bool) {
	start = h.cellStart[c]
	if start == cellEmpty {
		return 0, 0, false
	}
	return start, h.cellEnd[c], true
}

// CellOf returns the linear cell index the position maps to.
func (h *Hash) CellOf(p vmath.Vec3) uint32 {
	cx, cy, cz := h.cellCoords(p.X, p.Y, p.Z)
	return h.cellIndex(cx, cy, cz)
}

// ReorderedPosition returns the SoA position stored at reordered index k.
func (h *Hash) ReorderedPosition(k uint32) vmath.Vec3 {
	return vmath.Vec3{X: h.posX[k], Y: h.posY[k], Z: h.posZ[k]}
}

func (h *Hash) cellCoords(x, y, z float32) (uint32, uint32, uint32) {
	cx := uint32(math32.Max((x-h.domainMin.X)/h.cellSize, 0))
	cy := uint32(math32.Max((y-h.domainMin.Y)/h.cellSize, 0))
	cz := uint32(math32.Max((z-h.domainMin.Z)/h.cellSize, 0))
	if cx >= h.gx {
		cx = h.gx - 1
	}
	if cy >= h.gy {
		cy = h.gy - 1
	}
	if cz >= h.gz {
		cz = h.gz - 1
	}
	return cx, cy, cz
}

func (h *Hash) cellIndex(cx, cy, cz uint32) uint32 {
	return cx + cy*h.gx + cz*h.gx*h.gy
}

// Rebuild reconstructs the hash from the current positions. cellSize is
// typically k times the query radius with k near 2: larger cells mean a
// cheaper grid but more candidates per query.
//
// Phases: domain AABB (parallel reduce), cell assignment with an atomic
// histogram, a serial exclusive prefix sum, and an atomic-cursor scatter
// into the reordered arrays.
func (h *Hash) Rebuild(positions []vmath.Vec4, cellSize float32) error {
	n := len(positions)
	if n == 0 {
		return ErrNoPositions
	}
	if cellSize <= 0 {
		return ErrCellSize
	}

	min, max := h.computeDomain(positions)
	if min == max && n > 1 {
		return ErrDegenerateDomain
	}

	h.cellSize = cellSize
	h.domainMin = min
	h.domainMax = max
	h.n = uint32(n)

	h.gx = gridAxis(max.X-min.X, cellSize)
	h.gy = gridAxis(max.Y-min.Y, cellSize)
	h.gz = gridAxis(max.Z-min.Z, cellSize)
	h.numCells = h.gx * h.gy * h.gz

	h.allocate(n)

	h.assignCells(positions)
	h.prefixSum()
	h.scatter(positions)

	return nil
}

func gridAxis(extent, cellSize float32) uint32 {
	g := uint32(math32.Ceil(extent / cellSize))
	if g == 0 {
		g = 1
	}
	return g
}

// allocate carves every per-frame array out of the hash arena. Exhaustion
// means the arena was sized below the worst frame and is fatal.
func (h *Hash) allocate(n int) {
	h.mem.Reset()

	h.posX = arena.Slice[float32](h.mem, n)
	h.posY = arena.Slice[float32](h.mem, n)
	h.posZ = arena.Slice[float32](h.mem, n)
	h.originalID = arena.Slice[uint32](h.mem, n)
	h.cellVal = arena.Slice[uint32](h.mem, n)
	h.counts = arena.Slice[uint32](h.mem, int(h.numCells))
	h.cellStart = arena.Slice[uint32](h.mem, int(h.numCells))
	h.cellEnd = arena.Slice[uint32](h.mem, int(h.numCells))

	if h.posX == nil || h.posY == nil || h.posZ == nil ||
		h.originalID == nil || h.cellVal == nil ||
		h.counts == nil || h.cellStart == nil || h.cellEnd == nil {
		panic("spatial: hash arena exhausted during rebuild")
	}

	clear(h.counts)
}

// computeDomain reduces the positions to their AABB, in parallel chunks
// above the threshold.
func (h *Hash) computeDomain(positions []vmath.Vec4) (vmath.Vec3, vmath.Vec3) {
	n := len(positions)
	if h.workers == nil || n < parallelThreshold {
		return domainOf(positions)
	}

	chunks := h.workers.NumWorkers()
	if chunks > len(h.domainJobs) {
		chunks = len(h.domainJobs)
	}
	per := (n + chunks - 1) / chunks

	submitted := 0
	for i := 0; i < chunks; i++ {
		start := i * per
		if start >= n {
			break
		}
		end := start + per
		if end > n {
			end = n
		}
		job := &h.domainJobs[i]
		job.pos = positions[start:end]
		h.workers.Submit(domainWork, job)
		submitted++
	}
	h.workers.WaitForCompletion(0)

	min, max := h.domainJobs[0].min, h.domainJobs[0].max
	for i := 1; i < submitted; i++ {
		min = v3Min(min, h.domainJobs[i].min)
		max = v3Max(max, h.domainJobs[i].max)
	}
	return min, max
}

func domainWork(payload any, _ uint32, _ *arena.Arena) {
	job := payload.(*domainJob)
	job.min, job.max = domainOf(job.pos)
}

func domainOf(positions []vmath.Vec4) (vmath.Vec3, vmath.Vec3) {
	min := positions[0].XYZ()
	max := min
	for _, p := range positions[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Z < min.Z {
			min.Z = p.Z
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
		if p.Z > max.Z {
			max.Z = p.Z
		}
	}
	return min, max
}

func v3Min(a, b vmath.Vec3) vmath.Vec3 {
	return vmath.Vec3{
		X: math32.Min(a.X, b.X),
		Y: math32.Min(a.Y, b.Y),
		Z: math32.Min(a.Z, b.Z),
	}
}

func v3Max(a, b vmath.Vec3) vmath.Vec3 {
	return vmath.Vec3{
		X: math32.Max(a.X, b.X),
		Y: math32.Max(a.Y, b.Y),
		Z: math32.Max(a.Z, b.Z),
	}
}

// assignCells computes each agent's linear cell index and builds the
// per-cell histogram with atomic increments.
func (h *Hash) assignCells(positions []vmath.Vec4) {
	if h.workers == nil || len(positions) < parallelThreshold {
		h.assignRange(positions, 0, len(positions))
		return
	}
	h.fanOut(positions, assignWork)
}

func assignWork(payload any, _ uint32, _ *arena.Arena) {
	job := payload.(*phaseJob)
	job.h.assignRange(job.pos, job.start, job.end)
}

func (h *Hash) assignRange(positions []vmath.Vec4, start, end int) {
	for i := start; i < end; i++ {
		p := positions[i]
		cx, cy, cz := h.cellCoords(p.X, p.Y, p.Z)
		c := h.cellIndex(cx, cy, cz)
		h.cellVal[i] = c
		atomic.AddUint32(&h.counts[c], 1)
	}
}

// prefixSum turns the histogram into half-open cell ranges. Serial: the
// cell count is small next to N and the scan is branch-light.
func (h *Hash) prefixSum() {
	running := uint32(0)
	for c := uint32(0); c < h.numCells; c++ {
		cnt := h.counts[c]
		if cnt == 0 {
			h.cellStart[c] = cellEmpty
			h.cellEnd[c] = 0
			continue
		}
		h.cellStart[c] = running
		h.cellEnd[c] = running + cnt
		running += cnt
	}
}

// scatter writes each agent into its cell's range. The atomic decrement
// of the cell cursor yields a unique slot offset, so all writes land at
// disjoint indices.
func (h *Hash) scatter(positions []vmath.Vec4) {
	if h.workers == nil || len(positions) < parallelThreshold {
		h.scatterRange(positions, 0, len(positions))
		return
	}
	h.fanOut(positions, scatterWork)
}

func scatterWork(payload any, _ uint32, _ *arena.Arena) {
	job := payload.(*phaseJob)
	job.h.scatterRange(job.pos, job.start, job.end)
}

func (h *Hash) scatterRange(positions []vmath.Vec4, start, end int) {
	for i := start; i < end; i++ {
		c := h.cellVal[i]
		offset := atomic.AddUint32(&h.counts[c], ^uint32(0))
		dst := h.cellStart[c] + offset
		p := positions[i]
		h.posX[dst] = p.X
		h.posY[dst] = p.Y
		h.posZ[dst] = p.Z
		h.originalID[dst] = uint32(i)
	}
}

// fanOut splits a per-agent phase into rebuildJobs chunks on the pool and
// blocks until they drain.
func (h *Hash) fanOut(positions []vmath.Vec4, work pool.WorkFunc) {
	n := len(positions)
	jobs := rebuildJobs
	per := (n + jobs - 1) / jobs
	for i := 0; i < jobs; i++ {
		start := i * per
		if start >= n {
			break
		}
		end := start + per
		if end > n {
			end = n
		}
		job := &h.phaseJobs[i]
		job.h = h
		job.pos = positions
		job.start = start
		job.end = end
		h.workers.Submit(work, job)
	}
	h.workers.WaitForCompletion(0)
}
