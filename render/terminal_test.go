package render

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/swarm/vmath"
)

func newSimScreen(t *testing.T, w, h int) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("sim screen init failed: %v", err)
	}
	screen.SetSize(w, h)
	return screen
}

func frameCamera(w, h int) (view, proj vmath.Mat4, eye vmath.Vec3) {
	eye = vmath.Vec3{Z: 5}
	view = vmath.M4LookAt(eye, vmath.Vec3{}, vmath.Vec3{Y: 1})
	proj = vmath.M4Perspective(float32(w), float32(h*2), 60, 0.1, 100)
	return view, proj, eye
}

func countGlyphs(screen tcell.SimulationScreen) int {
	cells, w, h := screen.GetContents()
	count := 0
	for i := 0; i < w*h; i++ {
		if len(cells[i].Runes) > 0 && cells[i].Runes[0] != ' ' {
			count++
		}
	}
	return count
}

func TestDrawInstancesPlotsVisibleAgents(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	defer screen.Fini()

	r := NewTerminal(screen)
	r.FrameBegin(80, 24)
	view, proj, eye := frameCamera(80, 24)
	r.SetCamera(view, proj, eye)

	models := []vmath.Mat4{
		vmath.M4Translate(vmath.Vec3{}),
		vmath.M4Translate(vmath.Vec3{X: 0.5, Y: 0.5}),
	}
	r.DrawInstances(models, len(models))
	r.FrameEnd()

	if got := countGlyphs(screen); got != 2 {
		t.Errorf("plotted %d glyphs, want 2", got)
	}
}

func TestDrawInstancesCullsBehindCamera(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	defer screen.Fini()

	r := NewTerminal(screen)
	r.FrameBegin(80, 24)
	view, proj, eye := frameCamera(80, 24)
	r.SetCamera(view, proj, eye)

	models := []vmath.Mat4{
		vmath.M4Translate(vmath.Vec3{Z: 10}), // behind the eye at z=5
	}
	r.DrawInstances(models, len(models))
	r.FrameEnd()

	if got := countGlyphs(screen); got != 0 {
		t.Errorf("plotted %d glyphs for culled instance, want 0", got)
	}
}

func TestNearInstanceWinsDepth(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	defer screen.Fini()

	r := NewTerminal(screen)
	r.FrameBegin(80, 24)
	view, proj, eye := frameCamera(80, 24)
	r.SetCamera(view, proj, eye)

	// Same screen cell, different depth; the near one must survive.
	r.DrawInstances([]vmath.Mat4{
		vmath.M4Translate(vmath.Vec3{Z: -2}),
		vmath.M4Translate(vmath.Vec3{Z: 2}),
	}, 2)
	r.FrameEnd()

	cells, _, _ := screen.GetContents()
	found := rune(0)
	for i := range cells {
		if len(cells[i].Runes) > 0 && cells[i].Runes[0] != ' ' {
			found = cells[i].Runes[0]
			break
		}
	}

	// Depth 3 (eye at z=5, instance at z=2) lands earlier in the ramp
	// than depth 7.
	if found != glyphFor(3) {
		t.Errorf("surviving glyph %q, want near glyph %q", found, glyphFor(3))
	}
}

func TestDrawLineStaysOnScreen(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	defer screen.Fini()

	r := NewTerminal(screen)
	r.FrameBegin(80, 24)
	view, proj, eye := frameCamera(80, 24)
	r.SetCamera(view, proj, eye)

	r.DrawLine(1, vmath.Vec3{X: -0.5}, vmath.Vec3{X: 0.5}, 0xFF0000)
	r.FrameEnd()

	if got := countGlyphs(screen); got == 0 {
		t.Error("line drew no cells")
	}
}
