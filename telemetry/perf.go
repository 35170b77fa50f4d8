package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step.
const (
	PhaseGridParams = "grid_params"
	PhaseGridClear  = "grid_clear"
	PhaseGridBuild  = "grid_build"
	PhaseDensity    = "density"
	PhaseForces     = "forces"
	PhaseFlip       = "flip"
	PhaseTelemetry  = "telemetry"
)

// phaseOrder is the execution order of the phases within a step.
var phaseOrder = []string{
	PhaseGridParams, PhaseGridClear, PhaseGridBuild,
	PhaseDensity, PhaseForces, PhaseFlip, PhaseTelemetry,
}

// PerfSample holds timing data for a single tick.
type PerfSample struct {
	TickDuration time.Duration
	Particles    int
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize       int
	samples          []PerfSample
	writeIndex       int
	sampleCount      int
	currentPhases    map[string]time.Duration
	currentParticles int
	tickStart        time.Time
	phaseStart       time.Time
	lastPhase        string

	now func() time.Time
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of ticks to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
		now:           time.Now,
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = p.now()
	p.currentPhases = make(map[string]time.Duration)
	p.currentParticles = 0
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := p.now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// RecordParticles sets the particle count processed by the current tick.
func (p *PerfCollector) RecordParticles(n int) {
	p.currentParticles = n
}

// EndTick finishes timing the current tick and records the sample.
func (p *PerfCollector) EndTick() {
	now := p.now()
	// End final phase
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Particles:    p.currentParticles,
		Phases:       p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.lastPhase = ""
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	// Tick timing
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total tick time
	PhasePct map[string]float64

	// Throughput
	TicksPerSecond         float64
	ParticleStepsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalTick time.Duration
	var minTick, maxTick time.Duration
	var totalParticles int
	phaseSum := make(map[string]time.Duration)

	// Iterate over valid samples
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalTick += s.TickDuration
		totalParticles += s.Particles

		if i == 0 || s.TickDuration < minTick {
			minTick = s.TickDuration
		}
		if s.TickDuration > maxTick {
			maxTick = s.TickDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgTick := totalTick / time.Duration(p.sampleCount)

	// Calculate phase averages and percentages
	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgTick > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgTick) * 100
		}
	}

	// Calculate throughput
	var ticksPerSec, particleSteps float64
	if avgTick > 0 {
		ticksPerSec = float64(time.Second) / float64(avgTick)
	}
	if totalTick > 0 {
		particleSteps = float64(totalParticles) / totalTick.Seconds()
	}

	return PerfStats{
		AvgTickDuration:        avgTick,
		MinTickDuration:        minTick,
		MaxTickDuration:        maxTick,
		PhaseAvg:               phaseAvg,
		PhasePct:               phasePct,
		TicksPerSecond:         ticksPerSec,
		ParticleStepsPerSecond: particleSteps,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"min_tick_us", s.MinTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
		"particle_steps_per_sec", int64(s.ParticleStepsPerSecond),
	}

	// Add phase breakdowns
	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("particle_steps_per_sec", s.ParticleStepsPerSecond),
	}

	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd           int64   `csv:"window_end"`
	AvgTickUS           int64   `csv:"avg_tick_us"`
	MinTickUS           int64   `csv:"min_tick_us"`
	MaxTickUS           int64   `csv:"max_tick_us"`
	TicksPerSec         float64 `csv:"ticks_per_sec"`
	ParticleStepsPerSec float64 `csv:"particle_steps_per_sec"`
	GridParamsPct       float64 `csv:"grid_params_pct"`
	GridClearPct        float64 `csv:"grid_clear_pct"`
	GridBuildPct        float64 `csv:"grid_build_pct"`
	DensityPct          float64 `csv:"density_pct"`
	ForcesPct           float64 `csv:"forces_pct"`
	FlipPct             float64 `csv:"flip_pct"`
	TelemetryPct        float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:           windowEnd,
		AvgTickUS:           s.AvgTickDuration.Microseconds(),
		MinTickUS:           s.MinTickDuration.Microseconds(),
		MaxTickUS:           s.MaxTickDuration.Microseconds(),
		TicksPerSec:         s.TicksPerSecond,
		ParticleStepsPerSec: s.ParticleStepsPerSecond,
		GridParamsPct:       s.PhasePct[PhaseGridParams],
		GridClearPct:        s.PhasePct[PhaseGridClear],
		GridBuildPct:        s.PhasePct[PhaseGridBuild],
		DensityPct:          s.PhasePct[PhaseDensity],
		ForcesPct:           s.PhasePct[PhaseForces],
		FlipPct:             s.PhasePct[PhaseFlip],
		TelemetryPct:        s.PhasePct[PhaseTelemetry],
	}
}
