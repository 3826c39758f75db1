package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix functions used by the layers and the recurrent cell.

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func Subtract(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Sub(m, n)
	return o
}

// AddBias adds the (r x 1) bias to every column of m.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic(fmt.Sprintf("addBias: bias must be (%d x 1), got (%d x %d)", r, rb, cb))
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

// RowSums returns per-row sums as an (r x 1) column.
func RowSums(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		out.Set(i, 0, floats.Sum(row))
	}
	return out
}

// ---------- Activations ----------
// Derivatives are written against the activation OUTPUT y so that they can be
// evaluated from a replayed output buffer alone.

func TanhApply(i, j int, x float64) float64 { return math.Tanh(x) }

func TanhPrime(y mat.Matrix) *mat.Dense {
	return Apply(func(i, j int, v float64) float64 { return 1 - v*v }, y).(*mat.Dense)
}

func SigmoidApply(i, j int, x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func SigmoidPrime(y mat.Matrix) *mat.Dense {
	return Apply(func(i, j int, v float64) float64 { return v * (1 - v) }, y).(*mat.Dense)
}

func ReluApply(i, j int, x float64) float64 { return math.Max(0, x) }

func ReluPrime(y mat.Matrix) *mat.Dense {
	return Apply(func(i, j int, v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	}, y).(*mat.Dense)
}

// ---------- Softmax ----------

// ColumnSoftmax applies softmax independently to each column (one sample per column).
func ColumnSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		// numerical stability
		mx := floats.Max(col)
		for i := range col {
			col[i] = math.Exp(col[i] - mx)
		}
		floats.Scale(1/floats.Sum(col), col)
		out.SetCol(j, col)
	}
	return out
}
