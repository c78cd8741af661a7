// Package config holds the build settings resource shared by every island
// builder. Settings are read from YAML, defaulted and validated once, and
// treated as immutable for the duration of a build pass.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid settings")

// Duration is a YAML-friendly wrapper around time.Duration that accepts
// human readable strings such as "150ms" while still allowing integer
// nanoseconds.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalYAML encodes the duration using the canonical string representation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes a duration from either a string (e.g. "250ms") or
// an integer number of nanoseconds. Empty strings decode to zero.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got kind %d", value.Kind)
	}
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	if value.Value == "" || value.Tag == "!!null" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Settings is the build settings resource.
type Settings struct {
	Voxels     VoxelSettings      `yaml:"voxels"`
	Mesh       MeshSettings       `yaml:"mesh"`
	Collision  CollisionSettings  `yaml:"collision"`
	Navigation NavigationSettings `yaml:"navigation"`
	Physics    PhysicsSettings    `yaml:"physics"`
	Realtime   RealtimeSettings   `yaml:"realtime"`
	Workers    int                `yaml:"workers"`  // 0 = one per CPU
	LogLevel   string             `yaml:"logLevel"` // debug, info, warn, error
}

type VoxelSettings struct {
	Size             float64 `yaml:"size"`             // world units per cell
	Padding          int     `yaml:"padding"`          // extra cells around the shape bounds
	MaxCells         int     `yaml:"maxCells"`         // sample ceiling per grid
	EdgeRadius       float64 `yaml:"edgeRadius"`       // default rounding for shapes that don't set one
	SmoothIterations int     `yaml:"smoothIterations"` // box blur passes
	SmoothRadius     int     `yaml:"smoothRadius"`     // blur kernel radius in cells
	SmoothWeight     float64 `yaml:"smoothWeight"`     // 0 = raw field, 1 = fully blurred
}

type MeshSettings struct {
	Algorithm           string  `yaml:"algorithm"` // surface-nets or marching-cubes, baked mesh only
	VertexMergeDistance float64 `yaml:"vertexMergeDistance"`
	UVScale             float64 `yaml:"uvScale"`
	PreviewMaterial     string  `yaml:"previewMaterial"`
	BakedMaterial       string  `yaml:"bakedMaterial"`
}

type CollisionSettings struct {
	MergeThreshold      float64 `yaml:"mergeThreshold"`
	VertexMergeDistance float64 `yaml:"vertexMergeDistance"`
	MinPoints           int     `yaml:"minPoints"`
}

type NavigationSettings struct {
	HorizontalRadius bool `yaml:"horizontalRadius"` // measure radius in the XZ plane only
}

type PhysicsSettings struct {
	Density       float64 `yaml:"density"`       // mass per unit volume
	HealthDensity float64 `yaml:"healthDensity"` // health per unit volume
}

type RealtimeSettings struct {
	Idle    Duration `yaml:"idle"`    // quiet period before a preview rebuild
	Timeout Duration `yaml:"timeout"` // abandon an in-flight preview after this long
	Poll    Duration `yaml:"poll"`    // how often the watcher ticks
}

// Default returns the stock settings.
func Default() *Settings {
	return &Settings{
		Voxels: VoxelSettings{
			Size:             0.5,
			Padding:          2,
			MaxCells:         32 << 20,
			EdgeRadius:       0.25,
			SmoothIterations: 0,
			SmoothRadius:     1,
			SmoothWeight:     0.5,
		},
		Mesh: MeshSettings{
			Algorithm:           "surface-nets",
			VertexMergeDistance: 0.001,
			UVScale:             1,
			PreviewMaterial:     "preview",
			BakedMaterial:       "island",
		},
		Collision: CollisionSettings{
			MergeThreshold:      0.2,
			VertexMergeDistance: 1.0,
			MinPoints:           8,
		},
		Navigation: NavigationSettings{
			HorizontalRadius: true,
		},
		Physics: PhysicsSettings{
			Density:       23.23,
			HealthDensity: 0.75,
		},
		Realtime: RealtimeSettings{
			Idle:    Duration(200 * time.Millisecond),
			Timeout: Duration(5 * time.Second),
			Poll:    Duration(50 * time.Millisecond),
		},
		Workers:  0,
		LogLevel: "info",
	}
}

// Load reads settings from a YAML file. An empty path returns defaults.
func Load(path string) (*Settings, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes YAML settings over the defaults and validates them.
func Read(r io.Reader) (*Settings, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	switch {
	case !(s.Voxels.Size > 0):
		return fmt.Errorf("%w: voxels.size must be positive", ErrInvalid)
	case s.Voxels.Padding < 1:
		return fmt.Errorf("%w: voxels.padding must be at least 1", ErrInvalid)
	case s.Voxels.MaxCells < 0:
		return fmt.Errorf("%w: voxels.maxCells cannot be negative", ErrInvalid)
	case s.Voxels.EdgeRadius < 0:
		return fmt.Errorf("%w: voxels.edgeRadius cannot be negative", ErrInvalid)
	case s.Voxels.SmoothIterations < 0 || s.Voxels.SmoothRadius < 0:
		return fmt.Errorf("%w: voxels smoothing cannot be negative", ErrInvalid)
	case s.Voxels.SmoothWeight < 0 || s.Voxels.SmoothWeight > 1:
		return fmt.Errorf("%w: voxels.smoothWeight must be within [0, 1]", ErrInvalid)
	case s.Mesh.Algorithm != "surface-nets" && s.Mesh.Algorithm != "marching-cubes":
		return fmt.Errorf("%w: mesh.algorithm %q is not surface-nets or marching-cubes", ErrInvalid, s.Mesh.Algorithm)
	case s.Mesh.VertexMergeDistance < 0 || s.Collision.VertexMergeDistance < 0:
		return fmt.Errorf("%w: vertex merge distances cannot be negative", ErrInvalid)
	case s.Collision.MergeThreshold < 0:
		return fmt.Errorf("%w: collision.mergeThreshold cannot be negative", ErrInvalid)
	case s.Collision.MinPoints < 4:
		return fmt.Errorf("%w: collision.minPoints must be at least 4", ErrInvalid)
	case s.Physics.Density < 0 || s.Physics.HealthDensity < 0:
		return fmt.Errorf("%w: physics densities cannot be negative", ErrInvalid)
	case s.Realtime.Idle < 0 || s.Realtime.Timeout < 0 || s.Realtime.Poll < 0:
		return fmt.Errorf("%w: realtime durations cannot be negative", ErrInvalid)
	case s.Workers < 0:
		return fmt.Errorf("%w: workers cannot be negative", ErrInvalid)
	}
	return nil
}

// WorkerCount resolves Workers, substituting the CPU count for zero.
func (s *Settings) WorkerCount() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

// Clone returns a copy that can be modified independently.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}
