package paraprof

// Device reductions. A grid-stride kernel folds the input into one partial
// per thread, each block then reduces its partials through shared memory in
// a tree, and the per-block results are summed on the host in block order.
// For a fixed device the summation order, and therefore the result, is
// deterministic.

// ReduceSum returns Σ f(i) for i in [0, n) computed on the context's device.
// f is called concurrently and must only read shared data.
func (ctx *Context) ReduceSum(n int, f func(i int) float64) (float64, error) {
	if n <= 0 {
		return 0, nil
	}

	const threads = DefaultBlockSize
	blocks := min((n+threads-1)/threads, ctx.device.NumCores*DefaultGridMultiplier)

	d_partial, err := ctx.Malloc(blocks * Float64Size)
	if err != nil {
		return 0, err
	}
	defer ctx.Free(d_partial)
	partial := d_partial.Float64()

	err = ctx.LaunchBlocks(func(b *Block) {
		sh := b.SharedFloat64()
		stride := b.Grid.X * b.Dim.X

		b.Threads(func(tid ThreadID) {
			var acc float64
			for i := tid.Global(); i < n; i += stride {
				acc += f(i)
			}
			sh[tid.ThreadIdx.X] = acc
		})
		for s := threads / 2; s > 0; s >>= 1 {
			b.Threads(func(tid ThreadID) {
				if t := tid.ThreadIdx.X; t < s {
					sh[t] += sh[t+s]
				}
			})
		}
		partial[b.Idx.X] = sh[0]
	}, Dim3{X: blocks, Y: 1, Z: 1}, Dim3{X: threads, Y: 1, Z: 1}, threads*Float64Size)
	if err != nil {
		return 0, err
	}
	if err := ctx.Synchronize(); err != nil {
		return 0, err
	}

	var sum float64
	for _, p := range partial {
		sum += p
	}
	return sum, nil
}

// ReduceSum runs Context.ReduceSum on the current device.
func ReduceSum(n int, f func(i int) float64) (float64, error) {
	return current().ReduceSum(n, f)
}
