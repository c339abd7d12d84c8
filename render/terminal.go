// Package render draws the simulation into a terminal. Instances are
// projected through the frame's view-projection matrix and plotted as
// depth-ramped glyphs with a per-cell depth buffer, the closest thing a
// character grid has to a rasterizer.
package render

import (
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/swarm/vmath"
)

// Depth ramp from near to far.
var depthGlyphs = [...]rune{'@', 'O', 'o', '*', '+', '.'}

// Terminal renders instanced agents and debug lines onto a tcell screen.
type Terminal struct {
	screen tcell.Screen

	width, height int

	view, proj vmath.Mat4
	vp         vmath.Mat4
	eye        vmath.Vec3

	// depth holds the clip-space depth of the nearest glyph per cell.
	depth []float32
}

func NewTerminal(screen tcell.Screen) *Terminal {
	return &Terminal{screen: screen}
}

// FrameBegin clears the screen and resets the depth buffer for a frame of
// the given size.
func (t *Terminal) FrameBegin(width, height int) {
	t.width = width
	t.height = height

	if need := width * height; cap(t.depth) < need {
		t.depth = make([]float32, need)
	} else {
		t.depth = t.depth[:need]
	}
	for i := range t.depth {
		t.depth[i] = math.MaxFloat32
	}

	t.screen.Clear()
}

func (t *Terminal) SetCamera(view, proj vmath.Mat4, eye vmath.Vec3) {
	t.view = view
	t.proj = proj
	t.eye = eye
	t.vp = vmath.M4Mul(proj, view)
}

// SetLight is accepted for interface completeness; a character grid has
// no shading to apply it to.
func (t *Terminal) SetLight(ambient, diffuse, specular, pos vmath.Vec3) {}

// DrawInstances plots one glyph per instance at the transform's
// translation, nearest instance winning each cell.
func (t *Terminal) DrawInstances(models []vmath.Mat4, count int) {
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite)

	for i := 0; i < count; i++ {
		p := vmath.M4Translation(models[i])
		sx, sy, depth, ok := t.project(p)
		if !ok {
			continue
		}

		idx := sy*t.width + sx
		if depth >= t.depth[idx] {
			continue
		}
		t.depth[idx] = depth

		t.screen.SetContent(sx, sy, glyphFor(depth), nil, style)
	}
}

// DrawLine projects the endpoints and walks the segment on the grid.
// thickness is accepted for interface parity; the grid draws one cell.
func (t *Terminal) DrawLine(thickness float32, a, b vmath.Vec3, color uint32) {
	ax, ay, ad, aok := t.project(a)
	bx, by, bd, bok := t.project(b)
	if !aok || !bok {
		return
	}

	style := tcell.StyleDefault.Foreground(tcell.NewRGBColor(
		int32(color>>16&0xFF), int32(color>>8&0xFF), int32(color&0xFF)))

	steps := absInt(bx-ax)
	if dy := absInt(by - ay); dy > steps {
		steps = dy
	}
	if steps == 0 {
		steps = 1
	}

	for s := 0; s <= steps; s++ {
		f := float32(s) / float32(steps)
		x := ax + int(f*float32(bx-ax))
		y := ay + int(f*float32(by-ay))
		depth := ad + f*(bd-ad)

		idx := y*t.width + x
		if depth >= t.depth[idx] {
			continue
		}
		t.depth[idx] = depth
		t.screen.SetContent(x, y, '·', nil, style)
	}
}

func (t *Terminal) FrameEnd() {
	t.screen.Show()
}

// project maps a world position to a screen cell. ok is false when the
// point is behind the camera or off screen.
func (t *Terminal) project(p vmath.Vec3) (sx, sy int, depth float32, ok bool) {
	ndc, w := vmath.M4MulPoint(t.vp, p)
	if w <= 0 {
		return 0, 0, 0, false
	}

	// Terminal cells are roughly twice as tall as wide; squash y.
	sx = int((ndc.X + 1) * 0.5 * float32(t.width))
	sy = int((1 - ndc.Y) * 0.5 * float32(t.height))

	if sx < 0 || sx >= t.width || sy < 0 || sy >= t.height {
		return 0, 0, 0, false
	}
	return sx, sy, w, true
}

func glyphFor(depth float32) rune {
	// Ramp over a fixed working range; anything farther stays the dimmest.
	i := int(depth * float32(len(depthGlyphs)) / 8)
	if i < 0 {
		i = 0
	}
	if i >= len(depthGlyphs) {
		i = len(depthGlyphs) - 1
	}
	return depthGlyphs[i]
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
