package main

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/runner"
	"github.com/pthm-cable/sph/sim"
	"github.com/pthm-cable/sph/telemetry"
)

// Score weights. A run that fails or goes non-finite scores failurePenalty.
const (
	weightDensity  = 1.0
	weightSpread   = 0.5
	weightMotion   = 0.1
	failurePenalty = 1e3

	warmupWindows = 2 // skip the settling transient
)

// FitnessEvaluator runs headless simulations and scores how close the
// settled fluid sits to its rest density (lower = better).
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    int64
	seeds       []uint64
	baseConfig  *config.Config
	statsWindow float64
	parallel    int

	mu          sync.Mutex
	lastDensity float64 // mean density error of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []uint64, baseCfg *config.Config, parallel int) *FitnessEvaluator {
	if parallel < 1 {
		parallel = len(seeds)
	}
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: 0.1,
		parallel:    parallel,
	}
}

// LastDensityError returns the mean density error of the most recent evaluation.
func (fe *FitnessEvaluator) LastDensityError() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastDensity
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness      float64
	densityError float64
}

// Evaluate scores a parameter vector, averaged over all seeds.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	results := make([]seedResult, len(fe.seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fe.parallel)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			windows, err := fe.runSimulation(ctx, x, seed)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Debug("run failed", "seed", seed, "error", err)
				results[i] = seedResult{fitness: failurePenalty, densityError: math.NaN()}
				return nil
			}
			results[i] = scoreWindows(windows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total, dens float64
	for _, r := range results {
		total += r.fitness
		dens += r.densityError
	}
	n := float64(len(results))

	fe.mu.Lock()
	fe.lastDensity = dens / n
	fe.mu.Unlock()

	return total / n, nil
}

// runSimulation executes a single headless run and returns its stats windows.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, x []float64, seed uint64) ([]telemetry.WindowStats, error) {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	cfg.Seed.RNGSeed = seed
	// Seeds already run concurrently.
	cfg.Parallel.Workers = 1
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := sim.New(cfg, sim.NewLatticeSeeder(cfg))
	if err != nil {
		return nil, err
	}

	var windows []telemetry.WindowStats
	r, err := runner.New(cfg, s, runner.Options{
		StatsWindowSec: fe.statsWindow,
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	defer r.Close()

	if err := r.Run(ctx, fe.maxTicks); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

// copyConfig returns a copy of the base config that runs may modify.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// scoreWindows combines the mean density error, the density spread and
// the residual motion of the windows after warmup.
func scoreWindows(windows []telemetry.WindowStats) seedResult {
	if len(windows) <= warmupWindows {
		return seedResult{fitness: failurePenalty, densityError: math.NaN()}
	}
	valid := windows[warmupWindows:]

	errs := make([]float64, 0, len(valid))
	spreads := make([]float64, 0, len(valid))
	motion := make([]float64, 0, len(valid))
	for _, w := range valid {
		if w.Particles == 0 || w.DensityMean <= 0 {
			return seedResult{fitness: failurePenalty, densityError: math.NaN()}
		}
		errs = append(errs, w.DensityError)
		spreads = append(spreads, w.DensityStd/w.DensityMean)
		motion = append(motion, w.KineticEnergy/float64(w.Particles))
	}

	densityError := stat.Mean(errs, nil)
	fitness := weightDensity*densityError +
		weightSpread*stat.Mean(spreads, nil) +
		weightMotion*stat.Mean(motion, nil)
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return seedResult{fitness: failurePenalty, densityError: math.NaN()}
	}
	return seedResult{fitness: fitness, densityError: densityError}
}
