package main

import (
	"github.com/pthm-cable/sph/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of fluid parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "particle_mass", Path: "fluid.particle_mass", Min: 0.005, Max: 0.05, Default: 0.02},
			{Name: "stiffness", Path: "fluid.stiffness", Min: 0.5, Max: 20, Default: 3},
			{Name: "viscosity", Path: "fluid.viscosity", Min: 0.5, Max: 20, Default: 3.5},
			{Name: "smoothing_length", Path: "kernel.smoothing_length", Min: 0.04, Max: 0.08, Default: 0.0457},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg. The smoothing
// length never drops below kernel.minimum_smoothing_length.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Fluid.ParticleMass = clamped[0]
	cfg.Fluid.Stiffness = clamped[1]
	cfg.Fluid.Viscosity = clamped[2]
	cfg.Kernel.SmoothingLength = max(clamped[3], cfg.Kernel.MinimumSmoothingLength)
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Fluid.ParticleMass,
		cfg.Fluid.Stiffness,
		cfg.Fluid.Viscosity,
		cfg.Kernel.SmoothingLength,
	}
}
