// Command swarm-bench steps the simulation headless and reports frame
// timings. Useful for sizing agent counts and worker pools without a
// terminal attached.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/lixenwraith/swarm/sim"
)

func main() {
	agents := flag.Int("agents", 50000, "agent count")
	frames := flag.Int("frames", 300, "frames to simulate")
	workers := flag.Int("workers", runtime.NumCPU(), "worker count")
	dt := flag.Float64("dt", 1.0/60, "fixed frame delta in seconds")
	flag.Parse()

	cfg, err := sim.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg.NumAgents = *agents
	cfg.Workers = *workers

	s, err := sim.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	defer s.Shutdown()

	step := float32(*dt)

	// Warmup lets the flock leave its artificial initial distribution.
	for i := 0; i < 10; i++ {
		if err := s.Step(step); err != nil {
			fmt.Fprintln(os.Stderr, "step:", err)
			os.Exit(1)
		}
		s.Pool().Reset()
	}

	start := time.Now()
	for i := 0; i < *frames; i++ {
		if err := s.Step(step); err != nil {
			fmt.Fprintln(os.Stderr, "step:", err)
			os.Exit(1)
		}
		s.Pool().Reset()
	}
	elapsed := time.Since(start)

	perFrame := elapsed / time.Duration(*frames)
	fmt.Printf("agents=%d workers=%d frames=%d total=%v frame=%v (%.1f fps)\n",
		*agents, *workers, *frames, elapsed.Round(time.Millisecond),
		perFrame.Round(time.Microsecond), float64(time.Second)/float64(perFrame))
}
