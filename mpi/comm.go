// Package mpi is a message-passing communicator in the style of MPI.
//
// A world is a fixed set of ranks. Ranks interact only through collectives
// (Reduce, Allreduce, Gatherv, Barrier, Sendrecv) that every rank issues in
// the same order; a coordinator matches the k-th collective of each rank and
// hands every rank its share of the result. Worlds run either as goroutines
// in one process (Run) or as separate processes talking to a coordinator
// hosted by rank 0 over gRPC (Launch under Mpirun).
//
// Any failure aborts the whole world: pending and future collectives of every
// rank fail with the *AbortError of the first failing rank.
package mpi

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/paraprof/paraprof"
)

// AbortError reports that a rank aborted the world.
type AbortError struct {
	Rank int   // rank that aborted
	Code int   // exit code requested by the aborting rank, 0 if none
	Err  error // cause
}

func (e *AbortError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("mpi: rank %d aborted with code %d: %v", e.Rank, e.Code, e.Err)
	}
	return fmt.Sprintf("mpi: rank %d aborted: %v", e.Rank, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// abortTimeout bounds the delivery of an abort to the coordinator.
const abortTimeout = 5 * time.Second

// transport carries collectives from a rank to the coordinator.
type transport interface {
	collective(ctx context.Context, req *request) (reply, error)
	abort(ctx context.Context, ae *AbortError) error
}

// localTransport talks to a coordinator in the same process.
type localTransport struct {
	c *coordinator
}

func (t localTransport) collective(ctx context.Context, req *request) (reply, error) {
	return t.c.collective(ctx, req)
}

func (t localTransport) abort(_ context.Context, ae *AbortError) error {
	t.c.abort(ae)
	return nil
}

// Comm is one rank's handle on its world. Collectives on a Comm must be
// issued from one goroutine at a time, in the same order on every rank.
type Comm struct {
	rank      int
	size      int
	localRank int
	seq       atomic.Uint64
	t         transport
}

func newComm(rank, size, localRank int, t transport) *Comm {
	return &Comm{rank: rank, size: size, localRank: localRank, t: t}
}

// Rank returns the rank of the caller in [0, Size()).
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the world.
func (c *Comm) Size() int { return c.size }

// LocalRank returns the rank among the processes of the same host. It picks
// the device a rank drives.
func (c *Comm) LocalRank() int { return c.localRank }

func (c *Comm) call(ctx context.Context, req *request) (reply, error) {
	req.rank = c.rank
	req.seq = c.seq.Add(1)
	slog.Debug("mpi collective", "rank", c.rank, "op", req.kind, "seq", req.seq, "len", len(req.data))
	return c.t.collective(ctx, req)
}

func (c *Comm) checkRoot(op string, root int) error {
	if root < 0 || root >= c.size {
		return paraprof.NewInvalidArgError(op, fmt.Sprintf("root %d outside world of size %d", root, c.size))
	}
	return nil
}

// Reduce combines vals element-wise across all ranks with op. The result is
// returned on root; other ranks get nil. All ranks must pass slices of equal
// length.
func (c *Comm) Reduce(ctx context.Context, vals []float64, op Op, root int) ([]float64, error) {
	if err := c.checkRoot("Reduce", root); err != nil {
		return nil, err
	}
	r, err := c.call(ctx, &request{kind: kindReduce, op: op, root: root, data: vals})
	return r.data, err
}

// ReduceFloat64 is Reduce for a single value. Non-root ranks get 0.
func (c *Comm) ReduceFloat64(ctx context.Context, v float64, op Op, root int) (float64, error) {
	out, err := c.Reduce(ctx, []float64{v}, op, root)
	if err != nil || len(out) == 0 {
		return 0, err
	}
	return out[0], nil
}

// Allreduce is Reduce with the result delivered to every rank.
func (c *Comm) Allreduce(ctx context.Context, vals []float64, op Op) ([]float64, error) {
	r, err := c.call(ctx, &request{kind: kindAllreduce, op: op, data: vals})
	return r.data, err
}

// AllreduceFloat64 is Allreduce for a single value.
func (c *Comm) AllreduceFloat64(ctx context.Context, v float64, op Op) (float64, error) {
	out, err := c.Allreduce(ctx, []float64{v}, op)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Gatherv concatenates the vals of all ranks in rank order on root. Ranks
// may contribute different lengths, including zero; root also receives the
// per-rank counts. Other ranks get nil slices.
func (c *Comm) Gatherv(ctx context.Context, vals []float64, root int) (data []float64, counts []int, err error) {
	if err := c.checkRoot("Gatherv", root); err != nil {
		return nil, nil, err
	}
	r, err := c.call(ctx, &request{kind: kindGatherv, root: root, data: vals})
	return r.data, r.counts, err
}

// GathervFloat32 is Gatherv for float32 data. The values travel as float64,
// which represents every float32 exactly.
func (c *Comm) GathervFloat32(ctx context.Context, vals []float32, root int) ([]float32, []int, error) {
	wide := make([]float64, len(vals))
	for i, v := range vals {
		wide[i] = float64(v)
	}
	data, counts, err := c.Gatherv(ctx, wide, root)
	if err != nil || data == nil {
		return nil, counts, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return out, counts, nil
}

// Barrier blocks until every rank has entered it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.call(ctx, &request{kind: kindBarrier})
	return err
}

// Sendrecv sends send to dest and returns what source sent to this rank.
// Every rank of the world takes part, as in a ring shift.
func (c *Comm) Sendrecv(ctx context.Context, send []float64, dest, source int) ([]float64, error) {
	if err := c.checkRoot("Sendrecv", dest); err != nil {
		return nil, err
	}
	if err := c.checkRoot("Sendrecv", source); err != nil {
		return nil, err
	}
	r, err := c.call(ctx, &request{kind: kindSendrecv, dest: dest, source: source, data: send})
	return r.data, err
}

// Abort fails the collectives of every rank with an *AbortError carrying
// code and err, and returns that error. The caller should return it so the
// process exits with code.
func (c *Comm) Abort(code int, err error) error {
	ae := &AbortError{Rank: c.rank, Code: code, Err: err}
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if terr := c.t.abort(ctx, ae); terr != nil {
		slog.Error("mpi abort not delivered", "rank", c.rank, "error", terr)
	}
	return ae
}
