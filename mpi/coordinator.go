package mpi

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/paraprof/paraprof"
)

// kind identifies a collective operation.
type kind int

const (
	kindBarrier kind = iota + 1
	kindReduce
	kindAllreduce
	kindGatherv
	kindSendrecv
)

func (k kind) String() string {
	switch k {
	case kindBarrier:
		return "Barrier"
	case kindReduce:
		return "Reduce"
	case kindAllreduce:
		return "Allreduce"
	case kindGatherv:
		return "Gatherv"
	case kindSendrecv:
		return "Sendrecv"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// request is one rank's contribution to a collective. seq numbers the
// collectives a rank has issued; the k-th call of every rank forms round k.
type request struct {
	rank   int
	seq    uint64
	kind   kind
	op     Op
	root   int
	dest   int
	source int
	data   []float64
}

// reply is what one rank receives from a completed round.
type reply struct {
	data   []float64
	counts []int
}

// round collects the requests of one collective.
type round struct {
	reqs      []*request
	arrived   int
	collected int
	done      chan struct{}
	replies   []reply
	err       error
}

// coordinator matches collectives across ranks and computes their results.
// It is the only place where ranks exchange data.
type coordinator struct {
	size int

	mu      sync.Mutex
	rounds  map[uint64]*round
	aborted *AbortError
	abortc  chan struct{}
}

func newCoordinator(size int) *coordinator {
	return &coordinator{
		size:   size,
		rounds: make(map[uint64]*round),
		abortc: make(chan struct{}),
	}
}

// collective registers req and blocks until every rank has joined the same
// round, the world is aborted, or ctx is done.
func (c *coordinator) collective(ctx context.Context, req *request) (reply, error) {
	if req.rank < 0 || req.rank >= c.size {
		return reply{}, paraprof.NewCommunicationError(req.kind.String(),
			fmt.Sprintf("rank %d outside world of size %d", req.rank, c.size), nil)
	}

	c.mu.Lock()
	if c.aborted != nil {
		c.mu.Unlock()
		return reply{}, c.aborted
	}
	r := c.rounds[req.seq]
	if r == nil {
		r = &round{reqs: make([]*request, c.size), done: make(chan struct{})}
		c.rounds[req.seq] = r
	}
	if r.reqs[req.rank] != nil {
		c.mu.Unlock()
		return reply{}, paraprof.NewCommunicationError(req.kind.String(),
			fmt.Sprintf("rank %d joined collective #%d twice", req.rank, req.seq), nil)
	}
	r.reqs[req.rank] = req
	r.arrived++
	if r.arrived == c.size {
		r.replies, r.err = complete(r.reqs)
		close(r.done)
	}
	c.mu.Unlock()

	select {
	case <-r.done:
	case <-c.abortc:
		return reply{}, c.cause()
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	c.mu.Lock()
	r.collected++
	if r.collected == c.size {
		delete(c.rounds, req.seq)
	}
	c.mu.Unlock()

	if r.err != nil {
		return reply{}, r.err
	}
	return r.replies[req.rank], nil
}

// abort fails all pending and future collectives. Only the first abort is
// recorded; it is returned.
func (c *coordinator) abort(ae *AbortError) *AbortError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted == nil {
		c.aborted = ae
		close(c.abortc)
	}
	return c.aborted
}

// cause returns the recorded abort, or nil.
func (c *coordinator) cause() *AbortError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// complete computes every rank's reply once all requests of a round are in.
func complete(reqs []*request) ([]reply, error) {
	first := reqs[0]
	size := len(reqs)
	op := first.kind.String()

	for _, q := range reqs[1:] {
		switch {
		case q.kind != first.kind:
			return nil, paraprof.NewCommunicationError(op,
				fmt.Sprintf("collective #%d mismatch: rank 0 called %s, rank %d called %s",
					first.seq, first.kind, q.rank, q.kind), nil)
		case q.root != first.root:
			return nil, paraprof.NewCommunicationError(op,
				fmt.Sprintf("root mismatch: rank 0 uses %d, rank %d uses %d", first.root, q.rank, q.root), nil)
		case q.op != first.op:
			return nil, paraprof.NewCommunicationError(op,
				fmt.Sprintf("operator mismatch: rank 0 uses %s, rank %d uses %s", first.op, q.rank, q.op), nil)
		}
	}

	replies := make([]reply, size)
	switch first.kind {
	case kindBarrier:

	case kindReduce, kindAllreduce:
		if !first.op.valid() {
			return nil, paraprof.NewCommunicationError(op, fmt.Sprintf("unknown operator %s", first.op), nil)
		}
		acc := slices.Clone(first.data)
		for _, q := range reqs[1:] {
			if len(q.data) != len(acc) {
				return nil, paraprof.NewCommunicationError(op,
					fmt.Sprintf("length mismatch: rank 0 sent %d values, rank %d sent %d",
						len(acc), q.rank, len(q.data)), nil)
			}
			first.op.apply(acc, q.data)
		}
		if first.kind == kindReduce {
			if err := checkRank(op, "root", first.root, size); err != nil {
				return nil, err
			}
			replies[first.root].data = acc
			break
		}
		for i := range replies {
			replies[i].data = slices.Clone(acc)
		}

	case kindGatherv:
		if err := checkRank(op, "root", first.root, size); err != nil {
			return nil, err
		}
		total := 0
		counts := make([]int, size)
		for i, q := range reqs {
			counts[i] = len(q.data)
			total += len(q.data)
		}
		data := make([]float64, 0, total)
		for _, q := range reqs {
			data = append(data, q.data...)
		}
		replies[first.root] = reply{data: data, counts: counts}

	case kindSendrecv:
		for _, q := range reqs {
			if err := checkRank(op, "source", q.source, size); err != nil {
				return nil, err
			}
			if err := checkRank(op, "destination", q.dest, size); err != nil {
				return nil, err
			}
			if from := reqs[q.source]; from.dest != q.rank {
				return nil, paraprof.NewCommunicationError(op,
					fmt.Sprintf("rank %d expects data from rank %d, which sends to rank %d",
						q.rank, q.source, from.dest), nil)
			}
		}
		for _, q := range reqs {
			replies[q.rank].data = slices.Clone(reqs[q.source].data)
		}

	default:
		return nil, paraprof.NewCommunicationError(op, "unknown collective", nil)
	}
	return replies, nil
}

func checkRank(op, what string, r, size int) error {
	if r < 0 || r >= size {
		return paraprof.NewCommunicationError(op,
			fmt.Sprintf("%s rank %d outside world of size %d", what, r, size), nil)
	}
	return nil
}
