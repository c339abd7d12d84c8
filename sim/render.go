package sim

import (
	"github.com/lixenwraith/swarm/vmath"
)

// Renderer is the frame driver's view of the rendering layer. The core
// hands over per-instance model matrices, camera, and lighting once per
// frame and otherwise knows nothing about how drawing happens.
type Renderer interface {
	FrameBegin(width, height int)
	SetCamera(view, proj vmath.Mat4, eye vmath.Vec3)
	SetLight(ambient, diffuse, specular, pos vmath.Vec3)
	DrawInstances(models []vmath.Mat4, count int)
	DrawLine(thickness float32, a, b vmath.Vec3, color uint32)
	FrameEnd()
}
