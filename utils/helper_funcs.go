package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RandomArray draws size values uniformly from ±1/sqrt(v).
func RandomArray(rng *rand.Rand, size int, v float64) []float64 {
	min := -1.0 / math.Sqrt(v+1e-12)
	max := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rng.Float64()
	}
	return out
}

func OneHot(n, idx int) *mat.Dense {
	v := make([]float64, n)
	if idx >= 0 && idx < n {
		v[idx] = 1.0
	}
	return mat.NewDense(n, 1, v)
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

// CopyInto copies src into dst, reallocating dst only when it is nil or the
// shapes differ. The returned matrix never aliases src.
func CopyInto(dst *mat.Dense, src mat.Matrix) *mat.Dense {
	r, c := src.Dims()
	if dst == nil || dst.IsEmpty() {
		return mat.DenseCopyOf(src)
	}
	if dr, dc := dst.Dims(); dr != r || dc != c {
		return mat.DenseCopyOf(src)
	}
	dst.Copy(src)
	return dst
}

func ZerosLike(a mat.Matrix) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

func OnesLike(a mat.Matrix) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

func SameShape(a, b mat.Matrix) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

func MatrixNorm(m mat.Matrix) float64 {
	return floats.Norm(mat.DenseCopyOf(m).RawMatrix().Data, 2)
}

// debugging and clipping.

// GlobalNorm is the L2 norm of all grads taken as one vector.
func GlobalNorm(grads ...*mat.Dense) float64 {
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// ClipGrads scales all grads so their combined norm <= maxNorm.
// Returns the scale actually applied (<=1.0) or 1.0 if no clip.
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	gn := GlobalNorm(grads...)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}
