package graphics

import (
	"context"
	"sync"
	"sync/atomic"
)

type pipelineResult struct {
	pipeline Pipeline
	err      error
}

// PipelineFuture is a pipeline compile that may still be running. The
// result is published with a single atomic store so the frame loop can
// Poll it without locking.
type PipelineFuture struct {
	result atomic.Pointer[pipelineResult]
	done   chan struct{}

	mu        sync.Mutex
	discarded bool
	release   func(Pipeline)
}

// Go runs compile on a new goroutine.
func Go(compile func() (Pipeline, error)) *PipelineFuture {
	f := &PipelineFuture{done: make(chan struct{})}
	go func() {
		p, err := compile()
		f.complete(p, err)
	}()
	return f
}

// Resolved returns an already completed future.
func Resolved(p Pipeline, err error) *PipelineFuture {
	f := &PipelineFuture{done: make(chan struct{})}
	f.complete(p, err)
	return f
}

func (f *PipelineFuture) complete(p Pipeline, err error) {
	f.mu.Lock()
	f.result.Store(&pipelineResult{pipeline: p, err: err})
	discarded, release := f.discarded, f.release
	f.mu.Unlock()

	if discarded && p != nil && release != nil {
		release(p)
	}
	close(f.done)
}

// Poll reports whether the compile finished, and its outcome if so.
func (f *PipelineFuture) Poll() (Pipeline, bool, error) {
	r := f.result.Load()
	if r == nil {
		return nil, false, nil
	}
	return r.pipeline, true, r.err
}

// Done is closed once the compile finished.
func (f *PipelineFuture) Done() <-chan struct{} { return f.done }

// Wait blocks until the compile finished or ctx is cancelled.
func (f *PipelineFuture) Wait(ctx context.Context) (Pipeline, error) {
	select {
	case <-f.done:
		r := f.result.Load()
		return r.pipeline, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Discard gives up on the result. release is called with the pipeline
// now if it already landed, or as soon as it does. Only the first call
// has an effect.
func (f *PipelineFuture) Discard(release func(Pipeline)) {
	f.mu.Lock()
	if f.discarded {
		f.mu.Unlock()
		return
	}
	f.discarded = true
	f.release = release
	r := f.result.Load()
	f.mu.Unlock()

	if r != nil && r.pipeline != nil && release != nil {
		release(r.pipeline)
	}
}

// Discarded reports whether Discard was called.
func (f *PipelineFuture) Discarded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discarded
}
