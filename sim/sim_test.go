package sim

import (
	"testing"
	"time"

	"github.com/lixenwraith/swarm/vmath"
)

func testConfig() Config {
	return Config{
		NumAgents:           200,
		SpawnExtents:        1,
		CellSizeFactor:      2,
		SeekRadius:          0.25,
		FleeRadius:          0.15,
		AlignRadius:         0.25,
		MinVel:              0.15,
		MaxVel:              0.5,
		MaxAccel:            0.25,
		Workers:             2,
		QueueCapacity:       512,
		ArenaBytesPerWorker: 1 << 22,
		HashArenaBytes:      1 << 24,
		MinDT:               0.004,
		BoidScale:           0.1,
		Seed:                1,
	}
}

func TestConfigValidate(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"agents", func(c *Config) { c.NumAgents = 0 }, ErrNumAgents},
		{"extents", func(c *Config) { c.SpawnExtents = -1 }, ErrSpawnExtents},
		{"cell factor", func(c *Config) { c.CellSizeFactor = 0 }, ErrCellFactor},
		{"seek radius", func(c *Config) { c.SeekRadius = 0 }, ErrSeekRadius},
		{"seek below flee", func(c *Config) { c.SeekRadius = 0.1 }, ErrSeekRadius},
		{"velocity band", func(c *Config) { c.MaxVel = 0.1 }, ErrVelocityRange},
		{"accel", func(c *Config) { c.MaxAccel = 0 }, ErrMaxAccel},
		{"queue", func(c *Config) { c.QueueCapacity = 0 }, ErrQueueCapacity},
		{"arena", func(c *Config) { c.ArenaBytesPerWorker = 0 }, ErrArenaSize},
		{"min dt", func(c *Config) { c.MinDT = 0 }, ErrMinDT},
	}

	if err := testConfig().Validate(); err != nil {
		t.Fatalf("base config should validate, got %v", err)
	}
	for _, tc := range mutations {
		cfg := testConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestNewAndStep(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Shutdown()

	for i := 0; i < 5; i++ {
		if err := s.Step(1.0 / 60); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		s.Pool().Reset()
	}

	if got := s.Iterations(); got != 5 {
		t.Errorf("iterations: got %d want 5", got)
	}
	if got := s.CurrentTime(); got < 5.0/60-1e-6 || got > 5.0/60+1e-6 {
		t.Errorf("current time: got %v", got)
	}

	cfg := s.Config()
	for i, v := range s.Agents.Velocities {
		mag := vmath.V3Mag(v)
		if mag < cfg.MinVel-1e-4 || mag > cfg.MaxVel+1e-4 {
			t.Fatalf("agent %d speed %v outside clamp band", i, mag)
		}
	}
}

// mockRenderer records the frame driver's handoff.
type mockRenderer struct {
	cameraSet bool
	lightSet  bool
	instances int
	models    []vmath.Mat4
}

func (m *mockRenderer) FrameBegin(int, int)                              {}
func (m *mockRenderer) SetCamera(_, _ vmath.Mat4, _ vmath.Vec3)          { m.cameraSet = true }
func (m *mockRenderer) SetLight(_, _, _, _ vmath.Vec3)                   { m.lightSet = true }
func (m *mockRenderer) DrawLine(float32, vmath.Vec3, vmath.Vec3, uint32) {}
func (m *mockRenderer) FrameEnd()                                        {}

func (m *mockRenderer) DrawInstances(models []vmath.Mat4, count int) {
	m.instances = count
	m.models = append(m.models[:0], models[:count]...)
}

func TestFrameHandsOffToRenderer(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Shutdown()

	r := &mockRenderer{}
	view := vmath.M4Identity()
	proj := vmath.M4Perspective(80, 60, 60, 0.1, 100)
	eye := vmath.Vec3{Z: 3}

	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Frame(now.Add(time.Duration(i)*16*time.Millisecond), r, view, proj, eye); err != nil {
			t.Fatalf("frame %d failed: %v", i, err)
		}
	}

	if !r.cameraSet || !r.lightSet {
		t.Error("frame driver did not hand camera and light to the renderer")
	}
	if r.instances != cfg.NumAgents {
		t.Errorf("instance count: got %d want %d", r.instances, cfg.NumAgents)
	}

	// Each model's translation is the agent's position.
	for i := 0; i < 5; i++ {
		got := vmath.M4Translation(r.models[i])
		want := s.Agents.Positions[i].XYZ()
		if got != want {
			t.Errorf("model %d translation %v, agent position %v", i, got, want)
		}
	}
}

// Frames closer together than MinDT still advance by at least MinDT.
func TestFrameClampsMinimumDT(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Shutdown()

	r := &mockRenderer{}
	view := vmath.M4Identity()
	proj := vmath.M4Perspective(80, 60, 60, 0.1, 100)

	now := time.Now()
	if err := s.Frame(now, r, view, proj, vmath.Vec3{}); err != nil {
		t.Fatalf("frame failed: %v", err)
	}
	if err := s.Frame(now, r, view, proj, vmath.Vec3{}); err != nil {
		t.Fatalf("zero-delta frame failed: %v", err)
	}

	want := 2 * float64(cfg.MinDT)
	if got := s.CurrentTime(); got < want-1e-6 {
		t.Errorf("sim time %v, want at least %v", got, want)
	}
}

func TestDistributeRandom(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Shutdown()

	for i := 0; i < s.Agents.N; i++ {
		p := s.Agents.Positions[i]
		if p.X < -cfg.SpawnExtents || p.X > cfg.SpawnExtents ||
			p.Y < -cfg.SpawnExtents || p.Y > cfg.SpawnExtents ||
			p.Z < -cfg.SpawnExtents || p.Z > cfg.SpawnExtents {
			t.Fatalf("agent %d spawned outside extents: %v", i, p)
		}
		if p.W != 1 {
			t.Fatalf("agent %d homogeneous lane %v, want 1", i, p.W)
		}
	}

	if s.Agents.MeanSpeed() == 0 {
		t.Error("agents should spawn with drift velocity")
	}
}
