package build

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/charmbracelet/log"
	"github.com/chazu/islebake/pkg/logging"
	"github.com/google/uuid"
)

// Scope yields the builders a batch operation covers.
type Scope interface {
	Builders() []*Builder
}

// Builders is a literal Scope.
type Builders []*Builder

// Builders returns the slice itself.
func (s Builders) Builders() []*Builder { return s }

// Result is one builder's outcome in a batch.
type Result struct {
	ID     uuid.UUID
	Name   string
	Shapes int
	Empty  bool
	Volume float64
	Hulls  int
	Err    error
}

// Report collects batch results in input order.
type Report struct {
	Results []Result
	Elapsed time.Duration
}

// Err joins every per-builder error, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Failed counts builders that reported an error.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Baker runs batch bakes. Serialization and result application happen on
// the calling (owning) goroutine; sampling, meshing and collision run as
// one pool task per builder, on a detached snapshot of it. Builders
// claimed by a running batch cannot join another until its results have
// been applied.
type Baker struct {
	pool  pond.Pool
	queue *Queue
	log   *log.Logger

	mu      sync.Mutex
	claimed map[*Builder]bool
}

// NewBaker returns a baker submitting to pool and posting results to
// queue. The pool must not be the one the builders' samplers use, since
// bake tasks wait on sampler tasks.
func NewBaker(pool pond.Pool, queue *Queue, logger *log.Logger) *Baker {
	return &Baker{
		pool:    pool,
		queue:   queue,
		log:     logging.OrDiscard(logger).WithPrefix("bake"),
		claimed: map[*Builder]bool{},
	}
}

// AllBuilders resolves scope to distinct builders in first-seen order.
func (bk *Baker) AllBuilders(scope Scope) []*Builder {
	seen := map[*Builder]bool{}
	var out []*Builder
	for _, b := range scope.Builders() {
		if b == nil || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// Busy reports whether b belongs to a batch that has not been applied.
func (bk *Baker) Busy(b *Builder) bool {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return bk.claimed[b]
}

func (bk *Baker) claim(builders []*Builder) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	for _, b := range builders {
		if bk.claimed[b] {
			return fmt.Errorf("%w: %s", ErrBatchInProgress, b.Name())
		}
	}
	for _, b := range builders {
		bk.claimed[b] = true
	}
	return nil
}

func (bk *Baker) release(builders []*Builder) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	for _, b := range builders {
		delete(bk.claimed, b)
	}
}

// AllBake bakes every builder in scope and applies the results before
// returning. Call it from the owning goroutine. Failures are reported per
// builder and never stop siblings.
func (bk *Baker) AllBake(ctx context.Context, scope Scope) (Report, error) {
	var report Report
	err := bk.AllBakeAsync(ctx, scope, func(r Report) { report = r })
	if err != nil {
		return Report{}, err
	}
	for report.Results == nil {
		<-bk.queue.Notify()
		bk.queue.Drain()
	}
	return report, nil
}

// AllBakeAsync serializes every builder in scope, then returns while the
// expensive stages run on the pool. Results are posted to the queue in
// input order, followed by a call to done with the report; both run when
// the owner drains the queue. Overlap with a running batch is rejected
// before any work starts.
func (bk *Baker) AllBakeAsync(ctx context.Context, scope Scope, done func(Report)) error {
	builders := bk.AllBuilders(scope)
	if err := bk.claim(builders); err != nil {
		return err
	}
	start := time.Now()
	results := make([]Result, len(builders))
	snaps := make([]*Builder, len(builders))
	for i, b := range builders {
		results[i] = Result{ID: b.ID(), Name: b.Name(), Shapes: b.Serialize()}
		snaps[i] = b.snapshot()
	}
	bk.log.Debug("batch serialized", "builders", len(builders))

	go func() {
		group := bk.pool.NewGroup()
		for i, snap := range snaps {
			group.Submit(func() {
				defer func() {
					if r := recover(); r != nil {
						results[i].Err = fmt.Errorf("build: panic in %s: %v", snap.Name(), r)
					}
				}()
				ok, err := snap.Precompute(ctx)
				results[i].Empty = !ok && err == nil
				results[i].Err = err
				if err == nil {
					results[i].Volume = snap.Volume()
					results[i].Hulls = len(snap.Hulls())
				}
			})
		}
		if err := group.Wait(); err != nil {
			bk.log.Error("batch group", "err", err)
		}

		for i, b := range builders {
			bk.queue.Post(func() {
				res := &results[i]
				if res.Err == nil {
					res.Err = b.absorb(snaps[i])
				}
				if res.Err == nil {
					res.Err = b.Apply()
				}
				if res.Err != nil {
					bk.log.Error("bake failed", "builder", b.Name(), "err", res.Err)
				}
			})
		}
		bk.queue.Post(func() {
			bk.release(builders)
			report := Report{Results: results, Elapsed: time.Since(start)}
			if report.Results == nil {
				report.Results = []Result{}
			}
			bk.log.Info("batch complete", "builders", len(builders), "failed", report.Failed(),
				"took", report.Elapsed)
			if done != nil {
				done(report)
			}
		})
	}()
	return nil
}

// AllDestroy clears every builder in scope and its target. Builders in a
// running batch are rejected. Owning goroutine only.
func (bk *Baker) AllDestroy(scope Scope) error {
	builders := bk.AllBuilders(scope)
	if err := bk.claim(builders); err != nil {
		return err
	}
	defer bk.release(builders)
	for _, b := range builders {
		b.DestroyBakes()
	}
	bk.log.Debug("destroyed bakes", "builders", len(builders))
	return nil
}
