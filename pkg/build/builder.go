// Package build orchestrates island builds: the serialize, sample and
// generate stages of a single builder, realtime preview, and batched
// multi-builder bakes whose results are applied back on the goroutine
// that owns the scene.
package build

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chazu/islebake/pkg/config"
	"github.com/chazu/islebake/pkg/hull"
	"github.com/chazu/islebake/pkg/kernel"
	"github.com/chazu/islebake/pkg/kernel/nets"
	"github.com/chazu/islebake/pkg/kernel/sdfx"
	"github.com/chazu/islebake/pkg/logging"
	"github.com/chazu/islebake/pkg/shape"
	"github.com/chazu/islebake/pkg/voxel"
	"github.com/deadsy/sdfx/sdf"
	"github.com/google/uuid"
)

// Builder owns one island's shape snapshot, voxel grid and derived
// artifacts. Serialize, Finalize, Build, DestroyBakes and anything else
// that touches Source or Target must run on the owning goroutine; the
// sampling and generate stages may run on a worker.
type Builder struct {
	id       uuid.UUID
	name     string
	source   Source
	target   Target
	sampler  *voxel.Sampler
	log      *log.Logger
	previewM kernel.Mesher

	mu          sync.Mutex
	settings    *config.Settings
	state       State
	shapes      shape.List
	fingerprint uint64
	epoch       uint64 // bumped whenever in-flight snapshots become stale
	grid        *voxel.Grid
	preview     *kernel.Mesh
	baked       *kernel.Mesh
	volume      float64
	volumeKnown bool
	hulls       hull.Set
	nav         Navigation
}

// Option configures a Builder.
type Option func(*Builder)

// WithSampler shares a sampler, and therefore its worker pool, between
// builders.
func WithSampler(s *voxel.Sampler) Option {
	return func(b *Builder) { b.sampler = s }
}

// WithLogger sets the parent logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// New creates a builder. A nil settings uses config.Default().
func New(name string, source Source, target Target, settings *config.Settings, opts ...Option) *Builder {
	if settings == nil {
		settings = config.Default()
	}
	b := &Builder{
		id:       uuid.New(),
		name:     name,
		source:   source,
		target:   target,
		settings: settings.Clone(),
		previewM: nets.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sampler == nil {
		b.sampler = voxel.NewSampler(nil, b.settings.Voxels.MaxCells)
	}
	b.log = logging.OrDiscard(b.log).With("builder", name)
	return b
}

// ID returns the builder's unique id.
func (b *Builder) ID() uuid.UUID { return b.id }

// Name returns the builder's display name.
func (b *Builder) Name() string { return b.name }

// Target returns the artifact target.
func (b *Builder) Target() Target { return b.target }

// State returns the current lifecycle bits.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Settings returns a copy of the active settings.
func (b *Builder) Settings() *config.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings.Clone()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Serialize captures a fresh shape snapshot from the source and discards
// every cached artifact. It returns the shape count.
func (b *Builder) Serialize() int {
	list := b.source.Shapes()
	fp := b.source.Fingerprint()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	b.shapes = list.WithDefaults(b.settings.Voxels.EdgeRadius)
	b.fingerprint = fp
	b.state = Serialized
	if b.shapes.LeadingNonUnion() {
		b.log.Warn("first shape is not a union and contributes no volume",
			"operation", b.shapes[0].Operation, "shape", b.shapes[0].Describe())
	}
	b.log.Debug("serialized", "shapes", len(b.shapes))
	return len(b.shapes)
}

// Stale reports whether the source changed since the last Serialize.
// Owning goroutine only.
func (b *Builder) Stale() bool {
	fp := b.source.Fingerprint()
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.state.Has(Serialized) || fp != b.fingerprint
}

// Sample fills the voxel grid from the shape snapshot. It returns false
// with no error when there are no shapes. A configuration error leaves
// the builder serialized with no grid.
func (b *Builder) Sample(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Has(Serialized) {
		return false, ErrNotSerialized
	}
	b.clearDerivedLocked()
	b.state = Serialized

	start := time.Now()
	g, err := b.sampler.Sample(ctx, b.shapes, b.samplerOptions())
	if err != nil {
		if errors.Is(err, voxel.ErrGridTooLarge) || errors.Is(err, voxel.ErrInvalidVoxelSize) {
			return false, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return false, fmt.Errorf("build: sample %s: %w", b.name, err)
	}
	b.grid = g
	b.state |= Sampled
	if g.Empty() {
		b.volume, b.volumeKnown = 0, true
		return false, nil
	}
	b.log.Debug("sampled", "dims", g.Dims, "samples", g.SampleCount(), "took", time.Since(start))
	return true, nil
}

// IsPrecomputed reports whether a grid for the current snapshot and
// settings exists, i.e. whether the generate stages may run.
func (b *Builder) IsPrecomputed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Has(Sampled) && b.grid != nil
}

func (b *Builder) samplerOptions() voxel.Options {
	v := b.settings.Voxels
	return voxel.Options{
		VoxelSize:        v.Size,
		Padding:          v.Padding,
		SmoothIterations: v.SmoothIterations,
		SmoothRadius:     v.SmoothRadius,
		SmoothWeight:     v.SmoothWeight,
	}
}

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

// GeneratePreviewMesh meshes the grid with surface nets using the preview
// material. When existing is non-nil its buffers are reused and it is
// returned.
func (b *Builder) GeneratePreviewMesh(existing *kernel.Mesh) (*kernel.Mesh, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Has(Sampled) {
		return nil, ErrNotSampled
	}
	m, err := b.previewM.Mesh(b.grid)
	if err != nil {
		return nil, fmt.Errorf("build: preview mesh %s: %w", b.name, err)
	}
	b.volume, b.volumeKnown = m.Volume(), true
	m.ApplyTriplanarUVs(b.settings.Mesh.UVScale, false)
	m.Name = b.name
	m.Material = b.settings.Mesh.PreviewMaterial
	if existing != nil {
		existing.Reset()
		existing.Vertices = append(existing.Vertices, m.Vertices...)
		existing.Normals = append(existing.Normals, m.Normals...)
		existing.UVs = append(existing.UVs, m.UVs...)
		existing.Indices = append(existing.Indices, m.Indices...)
		existing.Name, existing.Material = m.Name, m.Material
		m = existing
	}
	b.preview = m
	b.state |= MeshPreviewed
	return m, nil
}

// GenerateBakedMesh meshes the grid with the configured algorithm, welds
// it and writes both UV sets.
func (b *Builder) GenerateBakedMesh() (*kernel.Mesh, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Has(Sampled) {
		return nil, ErrNotSampled
	}
	mesher := b.bakedMesher()
	start := time.Now()
	m, err := mesher.Mesh(b.grid)
	if err != nil {
		return nil, fmt.Errorf("build: baked mesh %s: %w", b.name, err)
	}
	b.volume, b.volumeKnown = m.Volume(), true
	m.Weld(b.settings.Mesh.VertexMergeDistance)
	m.ApplyTriplanarUVs(b.settings.Mesh.UVScale, true)
	m.Name = b.name
	m.Material = b.settings.Mesh.BakedMaterial
	b.baked = m
	b.state |= MeshBaked
	b.log.Debug("baked mesh", "algorithm", mesher.Name(), "vertices", m.VertexCount(),
		"triangles", m.TriangleCount(), "took", time.Since(start))
	return m, nil
}

func (b *Builder) bakedMesher() kernel.Mesher {
	if b.settings.Mesh.Algorithm == sdfx.Name {
		return sdfx.New()
	}
	return nets.New()
}

// GenerateCollisionHulls decomposes the sampled solid into convex hulls.
// It meshes the grid itself so the result does not depend on which
// render mesh was generated.
func (b *Builder) GenerateCollisionHulls() (hull.Set, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Has(Sampled) {
		return nil, ErrNotSampled
	}
	m, err := b.previewM.Mesh(b.grid)
	if err != nil {
		return nil, fmt.Errorf("build: collision mesh %s: %w", b.name, err)
	}
	c := b.settings.Collision
	d := hull.Decomposer{
		MergeThreshold: c.MergeThreshold,
		MinPoints:      c.MinPoints,
		WeldDistance:   c.VertexMergeDistance,
	}
	b.hulls = d.Decompose(m, b.shapes.Unions())
	b.state |= CollisionReady
	b.log.Debug("collision", "hulls", len(b.hulls), "points", b.hulls.PointCount())
	return b.hulls, nil
}

// GenerateNavigationProperties summarizes the baked mesh, or the preview
// mesh when nothing is baked.
func (b *Builder) GenerateNavigationProperties() (Navigation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Has(Sampled) {
		return Navigation{}, ErrNotSampled
	}
	m := b.baked
	if m == nil {
		m = b.preview
	}
	if m == nil {
		return Navigation{}, ErrNoMesh
	}
	b.nav = navigationOf(m, b.settings.Navigation.HorizontalRadius)
	b.state |= NavigationReady
	return b.nav, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// EstimateAABB returns the conservative sampling bounds of the snapshot:
// the union of every shape's transformed box. It is the zero box when
// there are no shapes.
func (b *Builder) EstimateAABB() sdf.Box3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	bb, _ := b.shapes.Bounds()
	return bb
}

// Volume returns the enclosed volume of the surface extracted from the
// grid, meshing on demand when no mesh has been generated yet. It is zero
// before sampling.
func (b *Builder) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.volumeKnown {
		return b.volume
	}
	if !b.state.Has(Sampled) {
		return 0
	}
	m, err := b.previewM.Mesh(b.grid)
	if err != nil {
		return 0
	}
	b.volume, b.volumeKnown = m.Volume(), true
	return b.volume
}

// ShapeCount returns the size of the current snapshot.
func (b *Builder) ShapeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shapes)
}

// Shapes returns a copy of the current snapshot.
func (b *Builder) Shapes() shape.List {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(shape.List(nil), b.shapes...)
}

// Grid returns the sampled grid, or nil.
func (b *Builder) Grid() *voxel.Grid {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.grid
}

// PreviewMesh returns the last preview mesh, or nil.
func (b *Builder) PreviewMesh() *kernel.Mesh {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.preview
}

// BakedMesh returns the last baked mesh, or nil.
func (b *Builder) BakedMesh() *kernel.Mesh {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baked
}

// Hulls returns the last collision hull set.
func (b *Builder) Hulls() hull.Set {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hulls
}

// Navigation returns the last navigation properties.
func (b *Builder) Navigation() Navigation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nav
}

// Physics derives mass and health from the current volume.
func (b *Builder) Physics() Physics {
	v := b.Volume()
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.settings.Physics
	return Physics{Volume: v, Mass: v * p.Density, Health: v * p.HealthDensity}
}

// ---------------------------------------------------------------------------
// Whole passes
// ---------------------------------------------------------------------------

// Precompute runs every worker-safe stage: sample, baked mesh, collision
// and navigation. It returns false when there was nothing to build.
func (b *Builder) Precompute(ctx context.Context) (bool, error) {
	ok, err := b.Sample(ctx)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := b.GenerateBakedMesh(); err != nil {
		return false, err
	}
	if _, err := b.GenerateCollisionHulls(); err != nil {
		return false, err
	}
	if _, err := b.GenerateNavigationProperties(); err != nil {
		return false, err
	}
	return true, nil
}

// Finalize applies the baked mesh, collision and navigation to the target
// and releases the grid and meshes. Owning goroutine only.
func (b *Builder) Finalize() error {
	need := MeshBaked | CollisionReady | NavigationReady
	b.mu.Lock()
	if !b.state.Has(need) {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("%w: finalize needs %s, have %s", ErrPrecondition, need, state)
	}
	mesh, hulls, nav := b.baked, b.hulls, b.nav
	b.mu.Unlock()

	phys := b.Physics()
	b.target.ApplyMesh(mesh)
	b.target.ApplyCollision(hulls, phys)
	b.target.ApplyNavigation(nav)

	b.mu.Lock()
	b.state |= Finalized
	b.mu.Unlock()
	b.ClearCache()
	b.log.Info("baked", "shapes", b.ShapeCount(), "volume", phys.Volume, "mass", phys.Mass,
		"hulls", len(hulls), "triangles", mesh.TriangleCount())
	return nil
}

// Apply finalizes a precomputed builder, or clears the target when there
// was nothing to build. Owning goroutine only.
func (b *Builder) Apply() error {
	b.mu.Lock()
	empty := b.state.Has(Sampled) && b.grid.Empty()
	b.mu.Unlock()
	if empty {
		b.target.Clear()
		b.mu.Lock()
		b.state |= Finalized
		b.mu.Unlock()
		return nil
	}
	return b.Finalize()
}

// Build runs a full synchronous pass and applies the result. Owning
// goroutine only.
func (b *Builder) Build(ctx context.Context) error {
	b.Serialize()
	if _, err := b.Precompute(ctx); err != nil {
		return err
	}
	return b.Apply()
}

// ClearCache drops the grid and meshes but keeps the shape snapshot, the
// volume and the last applied summaries.
func (b *Builder) ClearCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grid = nil
	b.preview = nil
	b.baked = nil
	b.hulls = nil
	b.state &= Serialized | Finalized
}

// DestroyBakes resets the builder to Empty and clears the target. Owning
// goroutine only.
func (b *Builder) DestroyBakes() {
	b.mu.Lock()
	b.resetLocked()
	b.shapes = nil
	b.fingerprint = 0
	b.state = Empty
	b.mu.Unlock()
	b.target.Clear()
}

// SetSettings swaps in new settings. Anything derived from the old ones
// is dropped; a changed default edge radius also drops the snapshot.
func (b *Builder) SetSettings(s *config.Settings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == nil || *s == *b.settings {
		return
	}
	reserialize := s.Voxels.EdgeRadius != b.settings.Voxels.EdgeRadius
	b.settings = s.Clone()
	b.sampler = voxel.NewSampler(b.sampler.Pool, s.Voxels.MaxCells)
	b.epoch++
	b.clearDerivedLocked()
	if reserialize {
		b.shapes = nil
		b.state = Empty
		return
	}
	b.state &= Serialized
}

func (b *Builder) resetLocked() {
	b.epoch++
	b.clearDerivedLocked()
	b.nav = Navigation{}
}

func (b *Builder) clearDerivedLocked() {
	b.grid = nil
	b.preview = nil
	b.baked = nil
	b.hulls = nil
	b.volume, b.volumeKnown = 0, false
	b.state &^= Sampled | derived
}

// snapshot returns a detached builder holding the same shapes and
// settings. It has no source or target and is safe to hand to a worker.
func (b *Builder) snapshot() *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Builder{
		id:          b.id,
		name:        b.name,
		sampler:     b.sampler,
		log:         b.log,
		previewM:    b.previewM,
		settings:    b.settings.Clone(),
		state:       Serialized,
		shapes:      append(shape.List(nil), b.shapes...),
		fingerprint: b.fingerprint,
		epoch:       b.epoch,
	}
}

// currentEpoch returns the snapshot epoch. Results computed from a
// snapshot of an older epoch are stale.
func (b *Builder) currentEpoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// absorb takes over the artifacts a snapshot computed on a worker. It
// fails when the builder was serialized or destroyed since the snapshot
// was taken. Owning goroutine only.
func (b *Builder) absorb(snap *Builder) error {
	snap.mu.Lock()
	defer snap.mu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	if snap.epoch != b.epoch {
		return fmt.Errorf("%w: %s changed while it was baking", ErrPrecondition, b.name)
	}
	b.grid, b.preview, b.baked = snap.grid, snap.preview, snap.baked
	b.volume, b.volumeKnown = snap.volume, snap.volumeKnown
	b.hulls, b.nav = snap.hulls, snap.nav
	b.state = snap.state
	return nil
}
