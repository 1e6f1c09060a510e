package mpi

// Partition returns the block of [0, n) owned by rank when n items are split
// over size ranks: the first n%size ranks get one extra item.
func Partition(n, size, rank int) (start, count int) {
	if n <= 0 || size <= 0 || rank < 0 || rank >= size {
		return 0, 0
	}
	base, rem := n/size, n%size
	count = base
	if rank < rem {
		count++
	}
	start = rank*base + min(rank, rem)
	return start, count
}

// SplitSizes returns the per-rank counts and displacements of Partition for
// all p ranks, in the layout Gatherv expects.
func SplitSizes(n, p int) (counts, offsets []int) {
	if p <= 0 {
		return nil, nil
	}
	counts = make([]int, p)
	offsets = make([]int, p)
	for r := 0; r < p; r++ {
		offsets[r], counts[r] = Partition(n, p, r)
	}
	return counts, offsets
}
