package build

import (
	"context"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/chazu/islebake/pkg/shape"
	"github.com/chazu/islebake/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type bakeFixture struct {
	queue   *Queue
	baker   *Baker
	sampler *voxel.Sampler
}

func newBakeFixture(t *testing.T) *bakeFixture {
	t.Helper()
	bakePool := pond.NewPool(3)
	samplePool := pond.NewPool(4)
	t.Cleanup(func() {
		bakePool.StopAndWait()
		samplePool.StopAndWait()
	})
	q := NewQueue()
	return &bakeFixture{
		queue:   q,
		baker:   NewBaker(bakePool, q, nil),
		sampler: voxel.NewSampler(samplePool, 0),
	}
}

func (f *bakeFixture) builder(name string, l shape.List) (*Builder, *MemoryTarget) {
	tgt := &MemoryTarget{}
	return New(name, &ShapeSource{List: l}, tgt, testSettings(0.2), WithSampler(f.sampler)), tgt
}

func (f *bakeFixture) wait(done *Report) {
	for done.Results == nil {
		<-f.queue.Notify()
		f.queue.Drain()
	}
}

func offset(s shape.Shape, x float64) shape.Shape {
	s.Transform.Position = v3.Vec{X: x}
	return s
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

func TestQueueRunsInOrder(t *testing.T) {
	q := NewQueue()
	var got []int
	q.Post(func() { got = append(got, 1) })
	q.Post(func() {
		got = append(got, 2)
		q.Post(func() { got = append(got, 4) })
	})
	q.Post(func() { got = append(got, 3) })
	assert.Equal(t, 3, q.Len())

	select {
	case <-q.Notify():
	default:
		t.Fatal("expected a notification")
	}
	assert.Equal(t, 4, q.Drain())
	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, 0, q.Drain())
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := New("a", &ShapeSource{}, &MemoryTarget{}, nil)
	b := New("b", &ShapeSource{}, &MemoryTarget{}, nil)
	c := New("c", &ShapeSource{}, &MemoryTarget{}, nil)

	r.Add("west", b, a, b)
	r.Add("east", c, a)
	assert.Equal(t, []string{"east", "west"}, r.Groups())
	assert.Equal(t, []*Builder{b, a}, r.Group("west").Builders())
	assert.Equal(t, []*Builder{c, a, b}, r.Builders())
	assert.Same(t, c, r.Find("c"))
	assert.Nil(t, r.Find("d"))

	r.Remove(a)
	r.Remove(c)
	assert.Equal(t, []string{"west"}, r.Groups())
	assert.Empty(t, r.Group("east").Builders())
}

// ---------------------------------------------------------------------------
// Batch bake
// ---------------------------------------------------------------------------

func TestAllBakeMatchesSingleBuild(t *testing.T) {
	f := newBakeFixture(t)
	shapes := shape.List{box(2, 1, 2), offset(sphere(0.8), 1)}

	single, singleTgt := f.builder("single", shapes)
	require.NoError(t, single.Build(context.Background()))

	batched, batchTgt := f.builder("batched", shapes)
	other, _ := f.builder("other", shape.List{sphere(1)})
	report, err := f.baker.AllBake(context.Background(), Builders{batched, other, batched})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	require.Len(t, report.Results, 2, "duplicates collapse")
	assert.Equal(t, "batched", report.Results[0].Name)
	assert.Equal(t, "other", report.Results[1].Name)
	assert.Equal(t, batched.ID(), report.Results[0].ID)
	assert.Equal(t, 2, report.Results[0].Shapes)

	assert.Equal(t, singleTgt.Mesh.Indices, batchTgt.Mesh.Indices)
	assert.Equal(t, singleTgt.Mesh.Vertices, batchTgt.Mesh.Vertices)
	assert.Equal(t, len(singleTgt.Hulls), len(batchTgt.Hulls))
	assert.Equal(t, len(singleTgt.Hulls), report.Results[0].Hulls)
	assert.InDelta(t, singleTgt.Physics.Volume, batchTgt.Physics.Volume, 1e-12)
	assert.InDelta(t, single.Volume(), report.Results[0].Volume, 1e-12)
	assert.True(t, batched.State().Has(Finalized))
}

func TestAllBakeAppliesOnDrain(t *testing.T) {
	f := newBakeFixture(t)
	b, tgt := f.builder("isle", shape.List{sphere(1)})

	var report Report
	require.NoError(t, f.baker.AllBakeAsync(context.Background(), Builders{b}, func(r Report) { report = r }))
	assert.True(t, f.baker.Busy(b))
	assert.Equal(t, Serialized, b.State()&Serialized, "serialized before returning")
	assert.Nil(t, tgt.Mesh, "nothing applied before draining")

	f.wait(&report)
	assert.False(t, f.baker.Busy(b))
	assert.NotNil(t, tgt.Mesh)
	assert.Equal(t, 0, report.Failed())
}

func TestAllBakeRejectsOverlap(t *testing.T) {
	f := newBakeFixture(t)
	a, _ := f.builder("a", shape.List{sphere(1)})
	b, _ := f.builder("b", shape.List{sphere(1)})

	var first Report
	require.NoError(t, f.baker.AllBakeAsync(context.Background(), Builders{a}, func(r Report) { first = r }))

	err := f.baker.AllBakeAsync(context.Background(), Builders{b, a}, nil)
	assert.ErrorIs(t, err, ErrBatchInProgress)
	assert.False(t, f.baker.Busy(b), "a rejected batch claims nothing")
	assert.ErrorIs(t, f.baker.AllDestroy(Builders{a}), ErrBatchInProgress)

	f.wait(&first)
	_, err = f.baker.AllBake(context.Background(), Builders{b, a})
	assert.NoError(t, err)
}

func TestAllBakeIsolatesFailures(t *testing.T) {
	f := newBakeFixture(t)
	good, goodTgt := f.builder("good", shape.List{sphere(1)})
	empty, emptyTgt := f.builder("empty", nil)

	s := testSettings(0.001)
	s.Voxels.MaxCells = 1000
	bad := New("bad", &ShapeSource{List: shape.List{sphere(3)}}, &MemoryTarget{}, s, WithSampler(voxel.NewSampler(nil, 1000)))

	report, err := f.baker.AllBake(context.Background(), Builders{bad, good, empty})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.Failed())
	assert.ErrorIs(t, report.Results[0].Err, ErrConfig)
	assert.ErrorIs(t, report.Err(), ErrConfig)
	assert.NoError(t, report.Results[1].Err)
	assert.True(t, report.Results[2].Empty)

	assert.NotNil(t, goodTgt.Mesh)
	assert.Equal(t, 1, emptyTgt.Cleared)
	assert.False(t, bad.State().Has(Finalized))
	assert.False(t, f.baker.Busy(bad))
}

func TestAllBakeDropsReserializedResults(t *testing.T) {
	f := newBakeFixture(t)
	b, tgt := f.builder("isle", shape.List{sphere(1)})

	var report Report
	require.NoError(t, f.baker.AllBakeAsync(context.Background(), Builders{b}, func(r Report) { report = r }))
	// The owner is never locked out while the batch runs.
	assert.Equal(t, 1, b.Serialize())
	assert.Equal(t, Serialized, b.State())

	f.wait(&report)
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Err, ErrPrecondition)
	assert.Nil(t, tgt.Mesh)
	assert.Equal(t, Serialized, b.State(), "stale results are not absorbed")
	assert.False(t, f.baker.Busy(b))
}

func TestAllBakeEmptyScope(t *testing.T) {
	f := newBakeFixture(t)
	report, err := f.baker.AllBake(context.Background(), Builders{})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.NoError(t, report.Err())
}

func TestAllDestroy(t *testing.T) {
	f := newBakeFixture(t)
	a, aTgt := f.builder("a", shape.List{sphere(1)})
	b, bTgt := f.builder("b", shape.List{box(1, 1, 1)})
	r := NewRegistry()
	r.Add("all", a, b)

	_, err := f.baker.AllBake(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, aTgt.Mesh)

	require.NoError(t, f.baker.AllDestroy(r))
	assert.Equal(t, Empty, a.State())
	assert.Equal(t, Empty, b.State())
	assert.Nil(t, aTgt.Mesh)
	assert.Nil(t, bTgt.Mesh)
}
