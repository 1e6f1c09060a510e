package kernels

import (
	"context"
	"log/slog"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/mpi"
)

// VecAddSamples is the number of gathered elements the root checks.
const VecAddSamples = 8

// RankContext opens a context on the device a rank drives:
// LocalRank mod the device count.
func RankContext(comm *mpi.Comm) (*paraprof.Context, error) {
	dev := comm.LocalRank() % paraprof.GetDeviceCount()
	slog.Debug("rank device", "rank", comm.Rank(), "device", dev)
	return paraprof.NewContext(dev)
}

// VecAddResult is what the root learns from VecAddDistributed.
type VecAddResult struct {
	OK      bool
	Checked []int     // sampled global indices
	C       []float32 // gathered result, root only
}

// VecAddDistributed adds a[g] = g and b[g] = 2g over [0, n) split across the
// ranks of comm. Each rank adds its block on dctx with a 256-thread-per-block
// kernel, and the blocks are gathered on rank 0, which checks evenly spaced
// samples against 3g. Ranks other than 0 get a zero result.
func VecAddDistributed(ctx context.Context, comm *mpi.Comm, dctx *paraprof.Context, n int) (VecAddResult, error) {
	start, count := mpi.Partition(n, comm.Size(), comm.Rank())

	ha, err := paraprof.AllocFloat32(count)
	if err != nil {
		return VecAddResult{}, err
	}
	hb, err := paraprof.AllocFloat32(count)
	if err != nil {
		return VecAddResult{}, err
	}
	hc, err := paraprof.AllocFloat32(count)
	if err != nil {
		return VecAddResult{}, err
	}
	for i := range ha {
		g := float32(start + i)
		ha[i] = g
		hb[i] = 2 * g
	}

	if count > 0 {
		if err := vecAddDevice(dctx, ha, hb, hc); err != nil {
			return VecAddResult{}, err
		}
	}

	c, _, err := comm.GathervFloat32(ctx, hc, 0)
	if err != nil || comm.Rank() != 0 {
		return VecAddResult{}, err
	}

	res := VecAddResult{OK: len(c) == n, Checked: paraprof.SampleIndices(n, VecAddSamples), C: c}
	if !res.OK {
		return res, nil
	}
	tol := paraprof.SampleTolerance()
	for _, i := range res.Checked {
		want := float32(i) + 2*float32(i)
		if !paraprof.Float32NearEqual(c[i], want, tol) {
			slog.Debug("vadd mismatch", "index", i, "want", want, "got", c[i])
			res.OK = false
			break
		}
	}
	return res, nil
}

func vecAddDevice(dctx *paraprof.Context, ha, hb, hc []float32) error {
	n := len(ha)
	bytes := n * paraprof.Float32Size

	da, err := dctx.Malloc(bytes)
	if err != nil {
		return err
	}
	defer dctx.Free(da)
	db, err := dctx.Malloc(bytes)
	if err != nil {
		return err
	}
	defer dctx.Free(db)
	dc, err := dctx.Malloc(bytes)
	if err != nil {
		return err
	}
	defer dctx.Free(dc)

	if err := dctx.Memcpy(da, ha, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return err
	}
	if err := dctx.Memcpy(db, hb, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return err
	}

	const tpb = paraprof.DefaultBlockSize
	blocks := (n + tpb - 1) / tpb
	err = dctx.LaunchFunc(func(tid paraprof.ThreadID, args ...any) {
		a, b, c := args[0].([]float32), args[1].([]float32), args[2].([]float32)
		if i := tid.Global(); i < n {
			c[i] = a[i] + b[i]
		}
	}, paraprof.Dim3{X: blocks, Y: 1, Z: 1}, paraprof.Dim3{X: tpb, Y: 1, Z: 1},
		da.Float32(), db.Float32(), dc.Float32())
	if err != nil {
		return err
	}
	if err := dctx.Synchronize(); err != nil {
		return err
	}
	return dctx.Memcpy(hc, dc, bytes, paraprof.MemcpyDeviceToHost)
}
