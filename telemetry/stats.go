package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// State at window end
	Particles       int     `csv:"particles"`
	SmoothingLength float64 `csv:"smoothing_length"`

	// Density distribution (sampled at window end)
	DensityMean float64 `csv:"density_mean"`
	DensityStd  float64 `csv:"density_std"`
	DensityMin  float64 `csv:"density_min"`
	DensityMax  float64 `csv:"density_max"`
	DensityP10  float64 `csv:"density_p10"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`
	// Mean |rho - rho0| / rho0
	DensityError float64 `csv:"density_error"`
	// sum(rho) / (n * rho0) - 1; positive when compressed
	Compression float64 `csv:"compression"`

	// Motion
	KineticEnergy float64 `csv:"kinetic_energy"`
	MomentumX     float64 `csv:"momentum_x"`
	MomentumY     float64 `csv:"momentum_y"`
	MomentumZ     float64 `csv:"momentum_z"`
	MaxSpeed      float64 `csv:"max_speed"`

	// Events during window
	WallHits int `csv:"wall_hits"`

	// Grid
	OccupiedCells    int `csv:"occupied_cells"`
	MaxCellOccupancy int `csv:"max_cell_occupancy"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// DensityStats summarises a density sample.
type DensityStats struct {
	Mean, Std     float64
	Min, Max      float64
	P10, P50, P90 float64
	// Mean relative deviation from the rest density
	Error float64
}

// ComputeDensityStats calculates the distribution of densities against the
// rest density.
func ComputeDensityStats(values []float64, restDensity float64) DensityStats {
	n := len(values)
	if n == 0 {
		return DensityStats{}
	}

	var s DensityStats
	s.Mean, s.Std = stat.PopMeanStdDev(values, nil)
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)

	if restDensity > 0 {
		var dev float64
		for _, v := range values {
			dev += math.Abs(v-restDensity) / restDensity
		}
		s.Error = dev / float64(n)
	}

	// Sort for percentiles
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	s.P10 = Percentile(sorted, 0.10)
	s.P50 = Percentile(sorted, 0.50)
	s.P90 = Percentile(sorted, 0.90)

	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.Particles),
		slog.Float64("smoothing_length", s.SmoothingLength),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_std", s.DensityStd),
		slog.Float64("density_min", s.DensityMin),
		slog.Float64("density_max", s.DensityMax),
		slog.Float64("density_p10", s.DensityP10),
		slog.Float64("density_p50", s.DensityP50),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("density_error", s.DensityError),
		slog.Float64("compression", s.Compression),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("momentum_x", s.MomentumX),
		slog.Float64("momentum_y", s.MomentumY),
		slog.Float64("momentum_z", s.MomentumZ),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Int("wall_hits", s.WallHits),
		slog.Int("occupied_cells", s.OccupiedCells),
		slog.Int("max_cell_occupancy", s.MaxCellOccupancy),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"particles", s.Particles,
		"density_mean", s.DensityMean,
		"density_p10", s.DensityP10,
		"density_p90", s.DensityP90,
		"density_error", s.DensityError,
		"compression", s.Compression,
		"kinetic_energy", s.KineticEnergy,
		"max_speed", s.MaxSpeed,
		"wall_hits", s.WallHits,
		"occupied_cells", s.OccupiedCells,
		"max_cell_occupancy", s.MaxCellOccupancy,
	)
}
