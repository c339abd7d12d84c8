package spatial

import (
	"github.com/chewxy/math32"

	"github.com/lixenwraith/swarm/arena"
	"github.com/lixenwraith/swarm/vmath"
)

// stagingSize is the capacity of the query's local staging buffer.
// Matches are accumulated branchlessly into the staging buffer and
// flushed to the caller's output in contiguous copies.
const stagingSize = 2048

// QueryScratch holds the per-caller buffers the vectorized query path
// writes through. Carve one per task from the worker's arena; pass nil to
// force the scalar path.
type QueryScratch struct {
	dx, dy, dz []float32
	within     []bool
}

// MakeQueryScratch carves scratch for cell spans up to maxSpan agents out
// of a. ok is false when the arena cannot serve it; callers then query
// with a nil scratch and take the scalar path.
func MakeQueryScratch(a *arena.Arena, maxSpan int) (QueryScratch, bool) {
	s := QueryScratch{
		dx:     arena.Slice[float32](a, maxSpan),
		dy:     arena.Slice[float32](a, maxSpan),
		dz:     arena.Slice[float32](a, maxSpan),
		within: arena.Slice[bool](a, maxSpan),
	}
	if s.dx == nil || s.dy == nil || s.dz == nil || s.within == nil {
		return QueryScratch{}, false
	}
	return s, true
}

// Query writes the caller indices of every agent within radius of q into
// out and returns the count. Inclusion is distance <= radius; indices are
// the positions the hash was rebuilt from, not reordered slots. The query
// allocates nothing; out must be sized for the worst case (N).
func (h *Hash) Query(q vmath.Vec3, radius float32, out []uint32, qs *QueryScratch) (int, error) {
	if h.n == 0 {
		return 0, ErrNotBuilt
	}
	if radius <= 0 {
		return 0, ErrRadius
	}

	cx, cy, cz := h.cellCoords(q.X, q.Y, q.Z)

	// ceil, not truncate: a cell whose center is outside the radius can
	// still hold corners inside it.
	reach := int32(math32.Ceil(radius / h.cellSize))

	minX := clampAxis(int32(cx)-reach, h.gx)
	maxX := clampAxis(int32(cx)+reach, h.gx)
	minY := clampAxis(int32(cy)-reach, h.gy)
	maxY := clampAxis(int32(cy)+reach, h.gy)
	minZ := clampAxis(int32(cz)-reach, h.gz)
	maxZ := clampAxis(int32(cz)+reach, h.gz)

	radiusSq := radius * radius

	var staging [stagingSize]uint32
	stageLen := 0
	nOut := 0

	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				c := h.cellIndex(uint32(x), uint32(y), uint32(z))
				s := h.cellStart[c]
				if s == cellEmpty {
					continue
				}
				e := h.cellEnd[c]

				// Process in staging-sized pieces; worst case every
				// candidate matches, so flush whenever a piece may not fit.
				for s0 := s; s0 < e; {
					e0 := s0 + stagingSize/2
					if e0 > e {
						e0 = e
					}
					if stageLen+int(e0-s0) > stagingSize {
						nOut += flush(out[nOut:], staging[:stageLen])
						stageLen = 0
					}
					if qs != nil && useBatch && int(e0-s0) >= batchMinSpan {
						stageLen = h.cellBatch(s0, e0, q, radiusSq, qs, staging[:], stageLen)
					} else {
						stageLen = h.cellScalar(s0, e0, q, radiusSq, staging[:], stageLen)
					}
					s0 = e0
				}
			}
		}
	}

	nOut += flush(out[nOut:], staging[:stageLen])
	return nOut, nil
}

// cellScalar walks one cell's reordered span in groups of eight with a
// branchless conditional store: the candidate id is always written at the
// staging cursor and the cursor advances only on a hit.
func (h *Hash) cellScalar(s, e uint32, q vmath.Vec3, radiusSq float32, staging []uint32, stageLen int) int {
	i := s
	for ; i+8 <= e; i += 8 {
		for j := uint32(0); j < 8; j++ {
			k := i + j
			dx := h.posX[k] - q.X
			dy := h.posY[k] - q.Y
			dz := h.posZ[k] - q.Z
			distSq := dx*dx + dy*dy + dz*dz
			staging[stageLen] = h.originalID[k]
			stageLen += b2i(distSq <= radiusSq)
		}
	}
	// 0-7 remainder, same accumulation pattern
	for ; i < e; i++ {
		dx := h.posX[i] - q.X
		dy := h.posY[i] - q.Y
		dz := h.posZ[i] - q.Z
		distSq := dx*dx + dy*dy + dz*dz
		staging[stageLen] = h.originalID[i]
		stageLen += b2i(distSq <= radiusSq)
	}
	return stageLen
}

func flush(dst, staging []uint32) int {
	if len(staging) > len(dst) {
		panic("spatial: query output buffer overflow, size it to the agent count")
	}
	return copy(dst, staging)
}

func clampAxis(v int32, g uint32) int32 {
	if v < 0 {
		return 0
	}
	if v >= int32(g) {
		return int32(g) - 1
	}
	return v
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
