package mpi

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/paraprof/paraprof"
)

// Body is the program a rank runs.
type Body func(ctx context.Context, comm *Comm) error

// Option configures Run and Launch.
type Option func(*options)

type options struct {
	abortCode func(error) int
}

// WithAbortCode sets how a rank's returned error maps to the abort code the
// other ranks see. The default reports 0.
func WithAbortCode(f func(error) int) Option {
	return func(o *options) { o.abortCode = f }
}

func buildOptions(opts []Option) options {
	o := options{abortCode: func(error) int { return 0 }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// asAbort turns a failed body's error into the world's abort record.
func (o options) asAbort(rank int, err error) *AbortError {
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae
	}
	return &AbortError{Rank: rank, Code: o.abortCode(err), Err: err}
}

// Run executes body on size ranks, each in its own goroutine, sharing one
// in-process coordinator. It returns nil if every rank succeeds, otherwise
// the *AbortError of the first failing rank.
func Run(ctx context.Context, size int, body Body, opts ...Option) error {
	if size < 1 {
		return paraprof.NewInvalidArgError("Run", fmt.Sprintf("world size must be positive, got %d", size))
	}
	o := buildOptions(opts)
	coord := newCoordinator(size)

	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		comm := newComm(rank, size, rank, localTransport{coord})
		g.Go(func() error {
			err := protect(rank, func() error { return body(gctx, comm) })
			if err != nil {
				// Record the cause before errgroup cancels the other ranks.
				coord.abort(o.asAbort(rank, err))
			}
			return err
		})
	}
	err := g.Wait()
	if cause := coord.cause(); cause != nil {
		return cause
	}
	return err
}

// protect converts a panic in body into an execution error.
func protect(rank int, body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = paraprof.NewExecutionError("rank",
				fmt.Sprintf("rank %d panicked: %v", rank, r),
				fmt.Errorf("%s", debug.Stack()))
		}
	}()
	return body()
}
