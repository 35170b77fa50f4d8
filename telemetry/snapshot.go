package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/sph/systems"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the particle state at one tick, enough to restart a run.
type Snapshot struct {
	Version int    `json:"version"`
	RNGSeed uint64 `json:"rng_seed"`

	DomainMin  systems.Vec3 `json:"domain_min"`
	DomainSize systems.Vec3 `json:"domain_size"`

	SmoothingLength float32 `json:"smoothing_length"`
	ParticleMass    float32 `json:"particle_mass"`

	Tick int64 `json:"tick"`

	Particles []ParticleState `json:"particles"`
}

// ParticleState holds one particle's state.
type ParticleState struct {
	Pos     systems.Vec3 `json:"pos"`
	Vel     systems.Vec3 `json:"vel"`
	Density float32      `json:"density"`
}

// CaptureParticles copies a slot into snapshot records.
func CaptureParticles(s systems.Slot) []ParticleState {
	out := make([]ParticleState, len(s.PosDens))
	for i := range out {
		out[i] = ParticleState{
			Pos:     s.PosDens[i].XYZ(),
			Vel:     s.Vel[i].XYZ(),
			Density: s.PosDens[i][3],
		}
	}
	return out
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Tick))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
