// Command swarm runs the flocking simulation with a terminal viewer.
// Configuration comes from SWARM_* environment variables (optionally via
// a .env file); a Prometheus listener starts when SWARM_METRICS_ADDR is
// set.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lixenwraith/swarm/render"
	"github.com/lixenwraith/swarm/sim"
	"github.com/lixenwraith/swarm/telemetry"
	"github.com/lixenwraith/swarm/vmath"
)

const (
	frameInterval = time.Second / 60

	// audioPulseFrames spaces the speed-tracking tone while unmuted.
	audioPulseFrames = 120
)

// camera orbits the origin; arrow keys steer, +/- zooms.
type camera struct {
	yaw, pitch, dist float32
}

func (c *camera) eye() vmath.Vec3 {
	cp := math32.Cos(c.pitch)
	return vmath.Vec3{
		X: c.dist * cp * math32.Sin(c.yaw),
		Y: c.dist * math32.Sin(c.pitch),
		Z: c.dist * cp * math32.Cos(c.yaw),
	}
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := sim.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var metrics *telemetry.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = telemetry.New(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				slog.Error("metrics listener failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	s, err := sim.New(cfg)
	if err != nil {
		slog.Error("simulation init failed", "error", err)
		os.Exit(1)
	}
	defer s.Shutdown()
	s.SetMetrics(metrics)

	slog.Info("simulation started",
		"agents", cfg.NumAgents,
		"workers", cfg.Workers,
		"cell_size", cfg.CellSize())

	screen, err := tcell.NewScreen()
	if err != nil {
		slog.Error("screen create failed", "error", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		slog.Error("screen init failed", "error", err)
		os.Exit(1)
	}
	defer screen.Fini()

	audio := initAudio()
	defer audio.close()

	run(screen, s, cfg, audio)
}

func run(screen tcell.Screen, s *sim.Simulation, cfg sim.Config, audio *audioCue) {
	r := render.NewTerminal(screen)
	cam := camera{dist: cfg.SpawnExtents * 3}

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	paused := false
	audible := false
	frames := 0

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				screen.Sync()
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q':
					return
				case ev.Key() == tcell.KeyLeft:
					cam.yaw -= 0.1
				case ev.Key() == tcell.KeyRight:
					cam.yaw += 0.1
				case ev.Key() == tcell.KeyUp:
					cam.pitch = vmath.Clamp(cam.pitch+0.1, -1.4, 1.4)
				case ev.Key() == tcell.KeyDown:
					cam.pitch = vmath.Clamp(cam.pitch-0.1, -1.4, 1.4)
				case ev.Rune() == '+' || ev.Rune() == '=':
					cam.dist = vmath.Clamp(cam.dist-0.25, 0.5, 50)
				case ev.Rune() == '-':
					cam.dist = vmath.Clamp(cam.dist+0.25, 0.5, 50)
				case ev.Rune() == ' ':
					paused = !paused
				case ev.Rune() == 'a':
					audible = audio.toggle()
					if audible {
						audio.pulse(s.Agents.MeanSpeed(), cfg.MaxVel)
					}
				}
			}

		case <-ticker.C:
			width, height := screen.Size()
			if width == 0 || height == 0 {
				continue
			}

			r.FrameBegin(width, height)

			eye := cam.eye()
			view := vmath.M4LookAt(eye, vmath.Vec3{}, vmath.Vec3{Y: 1})
			// Terminal cells are tall; doubling height keeps the aspect sane.
			proj := vmath.M4Perspective(float32(width), float32(height*2), 60, 0.1, 100)

			if !paused {
				if err := s.Frame(time.Now(), r, view, proj, eye); err != nil {
					slog.Error("frame failed", "error", err)
					return
				}
				frames++
				if audible && frames%audioPulseFrames == 0 {
					audio.pulse(s.Agents.MeanSpeed(), cfg.MaxVel)
				}
			} else {
				r.SetCamera(view, proj, eye)
			}

			drawAxes(r, cfg.SpawnExtents)
			drawHUD(screen, s, paused)
			r.FrameEnd()
		}
	}
}

// drawAxes marks the origin with half-extent axis lines and a ground grid.
func drawAxes(r *render.Terminal, extents float32) {
	half := extents / 2
	origin := vmath.Vec3{}
	r.DrawLine(1, origin, vmath.Vec3{X: half}, 0xFF4040)
	r.DrawLine(1, origin, vmath.Vec3{Y: half}, 0x40FF40)
	r.DrawLine(1, origin, vmath.Vec3{Z: half}, 0x4040FF)

	for i := -2; i <= 2; i++ {
		o := float32(i) * half / 2
		r.DrawLine(1, vmath.Vec3{X: -half, Y: -extents, Z: o}, vmath.Vec3{X: half, Y: -extents, Z: o}, 0x404040)
		r.DrawLine(1, vmath.Vec3{X: o, Y: -extents, Z: -half}, vmath.Vec3{X: o, Y: -extents, Z: half}, 0x404040)
	}
}

func drawHUD(screen tcell.Screen, s *sim.Simulation, paused bool) {
	status := "running"
	if paused {
		status = "paused"
	}
	text := statusLine(s, status)

	style := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	for i, ch := range text {
		screen.SetContent(i, 0, ch, nil, style)
	}
}

func statusLine(s *sim.Simulation, status string) string {
	return fmt.Sprintf("%s | agents %d | frame %.2fms | iter %d",
		status, s.Agents.N, s.FrameTimeAvg()*1000, s.Iterations())
}
