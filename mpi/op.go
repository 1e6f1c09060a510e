package mpi

import (
	"fmt"
	"math"
)

// Op is a reduction operator applied element-wise.
type Op int

// Reduction operators.
const (
	OpSum Op = iota
	OpMax
	OpMin
	OpProd
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "SUM"
	case OpMax:
		return "MAX"
	case OpMin:
		return "MIN"
	case OpProd:
		return "PROD"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func (o Op) valid() bool {
	return o >= OpSum && o <= OpProd
}

// apply folds v into acc. Both slices have the same length.
func (o Op) apply(acc, v []float64) {
	switch o {
	case OpSum:
		for i := range acc {
			acc[i] += v[i]
		}
	case OpMax:
		for i := range acc {
			acc[i] = math.Max(acc[i], v[i])
		}
	case OpMin:
		for i := range acc {
			acc[i] = math.Min(acc[i], v[i])
		}
	case OpProd:
		for i := range acc {
			acc[i] *= v[i]
		}
	}
}
