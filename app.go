package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/charmbracelet/log"
	"github.com/chazu/islebake/pkg/build"
	"github.com/chazu/islebake/pkg/config"
	"github.com/chazu/islebake/pkg/engine"
	"github.com/chazu/islebake/pkg/logging"
	"github.com/chazu/islebake/pkg/scene"
	"github.com/chazu/islebake/pkg/voxel"
	"github.com/google/uuid"
)

// defaultGroup is the bake group of islands that do not name one.
const defaultGroup = "default"

// App ties a scene script to the build pipeline: it evaluates the script
// into a scene graph, keeps one builder per island, and bakes them as a
// batch. All methods must be called from the same goroutine.
type App struct {
	engine   *engine.Engine
	settings *config.Settings
	log      *log.Logger

	bakePool   pond.Pool
	samplePool pond.Pool
	queue      *build.Queue
	baker      *build.Baker
	registry   *build.Registry
	sampler    *voxel.Sampler

	graph    *scene.Graph
	builders map[scene.NodeID]*build.Builder
	groups   map[scene.NodeID]string
	previews map[scene.NodeID]*build.Previewer
	warnings []engine.EvalWarning
}

// IslandStats summarizes one baked island.
type IslandStats struct {
	Name      string  `json:"name"`
	Group     string  `json:"group"`
	Shapes    int     `json:"shapes"`
	Empty     bool    `json:"empty"`
	Volume    float64 `json:"volume"`
	Mass      float64 `json:"mass"`
	Health    float64 `json:"health"`
	Vertices  int     `json:"vertices"`
	Triangles int     `json:"triangles"`
	Hulls     int     `json:"hulls"`
	Radius    float64 `json:"radius"`
	Error     string  `json:"error,omitempty"`
}

// BakeResult is the outcome of evaluating and baking a script.
type BakeResult struct {
	Islands  []IslandStats        `json:"islands"`
	Errors   []engine.EvalError   `json:"errors"`
	Warnings []engine.EvalWarning `json:"warnings"`
	Elapsed  time.Duration        `json:"elapsed"`
}

// Failed reports whether evaluation or any island failed.
func (r BakeResult) Failed() bool {
	if len(r.Errors) > 0 {
		return true
	}
	for _, is := range r.Islands {
		if is.Error != "" {
			return true
		}
	}
	return false
}

// NewApp creates an App. A nil settings uses config.Default(); a nil
// logger discards.
func NewApp(settings *config.Settings, logger *log.Logger) *App {
	if settings == nil {
		settings = config.Default()
	}
	logger = logging.OrDiscard(logger)
	workers := settings.WorkerCount()
	a := &App{
		engine:     engine.NewEngine(),
		settings:   settings.Clone(),
		log:        logger,
		bakePool:   pond.NewPool(workers),
		samplePool: pond.NewPool(workers),
		queue:      build.NewQueue(),
		registry:   build.NewRegistry(),
		graph:      scene.New(),
		builders:   map[scene.NodeID]*build.Builder{},
		groups:     map[scene.NodeID]string{},
		previews:   map[scene.NodeID]*build.Previewer{},
	}
	a.baker = build.NewBaker(a.bakePool, a.queue, logger)
	a.sampler = voxel.NewSampler(a.samplePool, settings.Voxels.MaxCells)
	return a
}

// Close stops the worker pools after their queued tasks finish.
func (a *App) Close() {
	a.bakePool.StopAndWait()
	a.samplePool.StopAndWait()
}

// Graph returns the live scene graph.
func (a *App) Graph() *scene.Graph { return a.graph }

// Queue returns the queue that carries results back to the caller's
// goroutine.
func (a *App) Queue() *build.Queue { return a.queue }

// Load evaluates source and swaps the result into the live graph. Islands
// keep their builders and outputs across loads; islands that disappeared
// are dropped. On evaluation errors the live graph is left alone.
func (a *App) Load(source string) ([]engine.EvalError, error) {
	g, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if len(evalErrs) > 0 {
		return evalErrs, nil
	}
	a.graph.Replace(g)
	a.warnings = engine.Lint(a.graph)
	for _, w := range a.warnings {
		a.log.Warn("scene", "node", w.NodeID, "msg", w.Message)
	}
	return nil, a.sync()
}

// sync matches builders to the builder nodes of the live graph.
func (a *App) sync() error {
	live := map[scene.NodeID]bool{}
	for _, n := range a.graph.Builders() {
		live[n.ID] = true
		group := n.Data.(scene.BuilderData).Group
		if group == "" {
			group = defaultGroup
		}

		b, ok := a.builders[n.ID]
		if !ok {
			out, err := a.graph.Output(n.ID)
			if err != nil {
				return err
			}
			b = build.New(n.Name, a.graph.Source(n.ID), out, a.settings,
				build.WithSampler(a.sampler), build.WithLogger(a.log))
			a.builders[n.ID] = b
			a.log.Debug("new island", "name", n.Name, "group", group)
		}
		if a.groups[n.ID] != group {
			a.registry.Remove(b)
			a.registry.Add(group, b)
			a.groups[n.ID] = group
		}
	}
	for id, b := range a.builders {
		if live[id] {
			continue
		}
		a.registry.Remove(b)
		delete(a.builders, id)
		delete(a.groups, id)
		delete(a.previews, id)
		a.log.Debug("dropped island", "name", b.Name())
	}
	return nil
}

// Bake evaluates source and bakes every island in it.
func (a *App) Bake(ctx context.Context, source string) BakeResult {
	start := time.Now()
	evalErrs, err := a.Load(source)
	if err != nil {
		evalErrs = append(evalErrs, engine.EvalError{Message: err.Error()})
	}
	if len(evalErrs) > 0 {
		return BakeResult{Islands: []IslandStats{}, Errors: evalErrs, Elapsed: time.Since(start)}
	}
	res := a.bake(ctx, a.registry)
	res.Elapsed = time.Since(start)
	return res
}

// BakeStale bakes only the islands whose shapes changed since they were
// last serialized by a bake or a preview.
func (a *App) BakeStale(ctx context.Context) BakeResult {
	start := time.Now()
	var stale build.Builders
	for _, b := range a.registry.Builders() {
		if b.Stale() {
			stale = append(stale, b)
		}
	}
	res := a.bake(ctx, stale)
	res.Elapsed = time.Since(start)
	return res
}

// Group bakes one bake group of the live graph.
func (a *App) Group(ctx context.Context, name string) BakeResult {
	start := time.Now()
	res := a.bake(ctx, a.registry.Group(name))
	res.Elapsed = time.Since(start)
	return res
}

func (a *App) bake(ctx context.Context, scope build.Scope) BakeResult {
	res := BakeResult{Islands: []IslandStats{}, Warnings: a.warnings}
	report, err := a.baker.AllBake(ctx, scope)
	if err != nil {
		res.Errors = append(res.Errors, engine.EvalError{Message: err.Error()})
		return res
	}
	nodes := map[uuid.UUID]scene.NodeID{}
	for id, b := range a.builders {
		nodes[b.ID()] = id
	}
	for _, r := range report.Results {
		is := IslandStats{
			Name:   r.Name,
			Shapes: r.Shapes,
			Empty:  r.Empty,
			Volume: r.Volume,
			Hulls:  r.Hulls,
		}
		if r.Err != nil {
			is.Error = r.Err.Error()
		}
		if id, ok := nodes[r.ID]; ok {
			is.Group = a.groups[id]
			a.fillOutput(&is, a.builders[id])
		}
		res.Islands = append(res.Islands, is)
	}
	return res
}

func (a *App) fillOutput(is *IslandStats, b *build.Builder) {
	out, ok := b.Target().(*scene.Output)
	if !ok {
		return
	}
	is.Mass = out.Physics.Mass
	is.Health = out.Physics.Health
	is.Radius = out.Navigation.Radius
	if out.Mesh != nil {
		is.Vertices = out.Mesh.VertexCount()
		is.Triangles = out.Mesh.TriangleCount()
	}
}

// Destroy clears every island's artifacts.
func (a *App) Destroy() error {
	return a.baker.AllDestroy(a.registry)
}

// Tick drives realtime previews: it polls every island for edits and
// rebuilds previews once edits settle. Islands in a running bake are
// skipped. It reports how many rebuilds started.
func (a *App) Tick(ctx context.Context) int {
	started := 0
	ids := make([]scene.NodeID, 0, len(a.builders))
	for id := range a.builders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b := a.builders[id]
		if a.baker.Busy(b) {
			continue
		}
		p, ok := a.previews[id]
		if !ok {
			p = build.NewPreviewer(b, a.bakePool, a.queue)
			a.previews[id] = p
		}
		if p.Tick(ctx) {
			started++
		}
	}
	return started
}

// PreviewStats counts an island's preview rebuilds.
type PreviewStats struct {
	Applied    int `json:"applied"`
	Abandoned  int `json:"abandoned"`
	Superseded int `json:"superseded"`
}

// Previews returns the preview counters of every island that has one.
func (a *App) Previews() map[string]PreviewStats {
	out := map[string]PreviewStats{}
	for id, p := range a.previews {
		applied, abandoned := p.Stats()
		out[a.builders[id].Name()] = PreviewStats{Applied: applied, Abandoned: abandoned, Superseded: p.Superseded()}
	}
	return out
}
