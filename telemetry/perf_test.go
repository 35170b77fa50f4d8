package telemetry

import (
	"math"
	"testing"
	"time"
)

// manualClock is a clock that only moves when advanced.
type manualClock struct {
	t time.Time
}

func (c *manualClock) now() time.Time { return c.t }

func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManualPerfCollector(windowSize int) (*PerfCollector, *manualClock) {
	clock := &manualClock{t: time.Unix(1700000000, 0)}
	pc := NewPerfCollector(windowSize)
	pc.now = clock.now
	return pc, clock
}

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc, clock := newManualPerfCollector(10)

	// Simulate a few ticks
	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseGridBuild)
		clock.advance(100 * time.Microsecond)
		pc.StartPhase(PhaseDensity)
		clock.advance(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	// Verify we got timing data
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}

	// Verify phases are tracked
	if len(stats.PhaseAvg) == 0 {
		t.Error("expected phase averages to be populated")
	}

	if _, ok := stats.PhaseAvg[PhaseGridBuild]; !ok {
		t.Error("expected grid_build phase to be tracked")
	}

	if _, ok := stats.PhaseAvg[PhaseDensity]; !ok {
		t.Error("expected density phase to be tracked")
	}

	if stats.AvgTickDuration != 300*time.Microsecond {
		t.Errorf("expected 300us average tick, got %v", stats.AvgTickDuration)
	}
	if stats.PhaseAvg[PhaseGridBuild] != 100*time.Microsecond {
		t.Errorf("expected 100us grid_build, got %v", stats.PhaseAvg[PhaseGridBuild])
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc, clock := newManualPerfCollector(5) // Small window

	// Fill window completely; only the last five ticks (5..9ms) remain
	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseGridClear)
		clock.advance(time.Duration(i) * time.Millisecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	// Should have data
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}

	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}

	if stats.MinTickDuration != 5*time.Millisecond || stats.MaxTickDuration != 9*time.Millisecond {
		t.Errorf("expected window of 5..9ms, got %v..%v", stats.MinTickDuration, stats.MaxTickDuration)
	}
	if stats.AvgTickDuration != 7*time.Millisecond {
		t.Errorf("expected 7ms average, got %v", stats.AvgTickDuration)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc, clock := newManualPerfCollector(10)

	// Simulate with uneven phase durations
	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseFlip)
		clock.advance(10 * time.Microsecond)
		pc.StartPhase(PhaseForces)
		clock.advance(90 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	fastPct := stats.PhasePct[PhaseFlip]
	slowPct := stats.PhasePct[PhaseForces]

	if math.Abs(fastPct-10) > 1e-9 {
		t.Errorf("expected flip phase at 10%%, got %v%%", fastPct)
	}
	if math.Abs(slowPct-90) > 1e-9 {
		t.Errorf("expected forces phase at 90%%, got %v%%", slowPct)
	}
}

func TestPerfCollector_UntimedGapCountsTowardTick(t *testing.T) {
	pc, clock := newManualPerfCollector(10)

	pc.StartTick()
	clock.advance(50 * time.Microsecond) // before the first phase
	pc.StartPhase(PhaseDensity)
	clock.advance(50 * time.Microsecond)
	pc.EndTick()

	stats := pc.Stats()
	if stats.AvgTickDuration != 100*time.Microsecond {
		t.Errorf("expected 100us tick, got %v", stats.AvgTickDuration)
	}
	if math.Abs(stats.PhasePct[PhaseDensity]-50) > 1e-9 {
		t.Errorf("expected density phase at 50%%, got %v%%", stats.PhasePct[PhaseDensity])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	// Empty collector should return zero values without panicking
	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}

	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}

	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}

func TestPerfCollector_ParticleThroughput(t *testing.T) {
	pc, clock := newManualPerfCollector(10)

	for i := 0; i < 3; i++ {
		pc.StartTick()
		pc.RecordParticles(1000)
		pc.StartPhase(PhaseDensity)
		clock.advance(time.Millisecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	// 1000 particles per 1ms tick
	if math.Abs(stats.TicksPerSecond-1000) > 1e-6 {
		t.Errorf("expected 1000 ticks/sec, got %v", stats.TicksPerSecond)
	}
	if math.Abs(stats.ParticleStepsPerSecond-1e6) > 1e-3 {
		t.Errorf("expected 1e6 particle steps/sec, got %v", stats.ParticleStepsPerSecond)
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	stats := PerfStats{
		AvgTickDuration: 2 * time.Millisecond,
		PhasePct: map[string]float64{
			PhaseDensity: 40,
			PhaseForces:  55,
		},
		TicksPerSecond: 500,
	}

	row := stats.ToCSV(1200)
	if row.WindowEnd != 1200 {
		t.Errorf("expected window_end 1200, got %d", row.WindowEnd)
	}
	if row.AvgTickUS != 2000 {
		t.Errorf("expected avg_tick_us 2000, got %d", row.AvgTickUS)
	}
	if row.DensityPct != 40 || row.ForcesPct != 55 {
		t.Errorf("unexpected phase split: density %v forces %v", row.DensityPct, row.ForcesPct)
	}
	if row.GridBuildPct != 0 {
		t.Errorf("expected missing phase to be 0, got %v", row.GridBuildPct)
	}
}
