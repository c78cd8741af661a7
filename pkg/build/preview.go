package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/charmbracelet/log"
	"github.com/chazu/islebake/pkg/kernel"
)

// Previewer keeps a builder's preview mesh current while its shapes are
// being edited. The owner calls Tick periodically; Tick watches the
// source fingerprint, waits for Idle of quiet, then rebuilds the preview
// on the pool from a detached snapshot. A change during a rebuild is
// coalesced into at most one follow-up. A rebuild running longer than
// Timeout is abandoned: its flag is cleared and its result discarded by
// generation. A result is also discarded when the builder was serialized
// or destroyed after the rebuild started, so a bake that runs meanwhile
// is never overwritten by an older preview.
type Previewer struct {
	b       *Builder
	pool    pond.Pool
	queue   *Queue
	log     *log.Logger
	idle    time.Duration
	timeout time.Duration
	now     func() time.Time

	// Owner-goroutine state.
	watching    bool
	fingerprint uint64
	dirty       bool
	changedAt   time.Time
	inFlight    bool
	startedAt   time.Time

	mu         sync.Mutex
	generation uint64
	applied    int
	abandoned  int
	superseded int
	last       *kernel.Mesh
}

// PreviewOption configures a Previewer.
type PreviewOption func(*Previewer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) PreviewOption {
	return func(p *Previewer) { p.now = now }
}

// WithThresholds overrides the idle and timeout durations from settings.
func WithThresholds(idle, timeout time.Duration) PreviewOption {
	return func(p *Previewer) { p.idle, p.timeout = idle, timeout }
}

// NewPreviewer watches b. Rebuilds run on pool and are applied through
// queue, which the owner must drain.
func NewPreviewer(b *Builder, pool pond.Pool, queue *Queue, opts ...PreviewOption) *Previewer {
	rt := b.Settings().Realtime
	p := &Previewer{
		b:       b,
		pool:    pool,
		queue:   queue,
		log:     b.log.WithPrefix("preview"),
		idle:    rt.Idle.Duration(),
		timeout: rt.Timeout.Duration(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tick drains pending results, polls the source for changes and starts a
// rebuild when one is due. It reports whether a rebuild was started.
// Owning goroutine only.
func (p *Previewer) Tick(ctx context.Context) bool {
	p.queue.Drain()
	now := p.now()

	fp := p.b.source.Fingerprint()
	if !p.watching || fp != p.fingerprint {
		p.watching = true
		p.fingerprint = fp
		p.dirty = true
		p.changedAt = now
	}

	if p.inFlight && p.timeout > 0 && now.Sub(p.startedAt) > p.timeout {
		p.mu.Lock()
		p.generation++
		p.abandoned++
		p.mu.Unlock()
		p.inFlight = false
		p.log.Warn("abandoned stuck preview", "after", now.Sub(p.startedAt))
	}

	if !p.dirty || p.inFlight || now.Sub(p.changedAt) < p.idle {
		return false
	}
	p.dirty = false
	p.start(ctx, now)
	return true
}

// start serializes on the owner and hands a snapshot to the pool.
func (p *Previewer) start(ctx context.Context, now time.Time) {
	p.b.Serialize()
	snap := p.b.snapshot()

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.mu.Unlock()
	p.inFlight = true
	p.startedAt = now

	epoch := snap.epoch
	p.pool.Submit(func() {
		mesh, err := p.rebuild(ctx, snap)
		p.queue.Post(func() { p.finish(gen, epoch, mesh, err) })
	})
}

func (p *Previewer) rebuild(ctx context.Context, snap *Builder) (m *kernel.Mesh, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build: panic in preview: %v", r)
		}
	}()
	ok, err := snap.Sample(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &kernel.Mesh{Name: snap.name}, nil
	}
	return snap.GeneratePreviewMesh(nil)
}

// finish applies a result on the owner unless it was superseded.
func (p *Previewer) finish(gen, epoch uint64, m *kernel.Mesh, err error) {
	p.mu.Lock()
	current := p.generation
	p.mu.Unlock()
	if gen != current {
		p.log.Debug("discarded stale preview", "generation", gen, "current", current)
		return
	}
	p.inFlight = false
	if live := p.b.currentEpoch(); live != epoch {
		p.mu.Lock()
		p.superseded++
		p.mu.Unlock()
		p.log.Debug("discarded superseded preview", "epoch", epoch, "current", live)
		return
	}
	if err != nil {
		p.log.Error("preview failed", "err", err)
		return
	}
	p.mu.Lock()
	p.applied++
	p.last = m
	p.mu.Unlock()
	p.b.target.ApplyMesh(m)
}

// InFlight reports whether a rebuild is running. Owning goroutine only.
func (p *Previewer) InFlight() bool { return p.inFlight }

// Dirty reports whether a change is waiting for a rebuild. Owning
// goroutine only.
func (p *Previewer) Dirty() bool { return p.dirty }

// Stats returns how many previews were applied and abandoned.
func (p *Previewer) Stats() (applied, abandoned int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied, p.abandoned
}

// Superseded returns how many finished previews were dropped because the
// builder was baked, serialized or destroyed while they ran.
func (p *Previewer) Superseded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.superseded
}

// Last returns the most recently applied preview mesh.
func (p *Previewer) Last() *kernel.Mesh {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
