package spatial

import (
	"github.com/klauspost/cpuid/v2"
	"github.com/viterin/vek/vek32"

	"github.com/lixenwraith/swarm/vmath"
)

// useBatch gates the vectorized cell walk. The batch path needs the wide
// FMA units to beat the scalar loop; everywhere else the scalar path runs.
var useBatch = cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3)

// batchMinSpan is the cell span below which vector setup overhead loses
// to the scalar loop.
const batchMinSpan = 16

// cellBatch computes squared distances for a whole cell span at once over
// the contiguous SoA arrays — the reorder at rebuild is what makes these
// loads dense — then drains the hit mask into the staging buffer with the
// same branchless conditional store as the scalar path.
func (h *Hash) cellBatch(s, e uint32, q vmath.Vec3, radiusSq float32, qs *QueryScratch, staging []uint32, stageLen int) int {
	span := int(e - s)
	dx := qs.dx[:span]
	dy := qs.dy[:span]
	dz := qs.dz[:span]
	within := qs.within[:span]

	vek32.SubNumber_Into(dx, h.posX[s:e], q.X)
	vek32.SubNumber_Into(dy, h.posY[s:e], q.Y)
	vek32.SubNumber_Into(dz, h.posZ[s:e], q.Z)
	for i := range dx {
		dx[i] *= dx[i]
	}
	for i := range dy {
		dy[i] *= dy[i]
	}
	for i := range dz {
		dz[i] *= dz[i]
	}
	vek32.Add_Inplace(dx, dy)
	vek32.Add_Inplace(dx, dz)
	vek32.LteNumber_Into(within, dx, radiusSq)

	ids := h.originalID[s:e]
	for j := 0; j < span; j++ {
		staging[stageLen] = ids[j]
		stageLen += b2i(within[j])
	}
	return stageLen
}
