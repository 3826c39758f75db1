package rnn

import (
	"math"

	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Loss scores one step's output against its target. Both are
// (features x batch); losses are averaged over the batch.
type Loss interface {
	Loss(output, target *mat.Dense) float64
	Grad(output, target *mat.Dense) *mat.Dense
}

// MeanSquaredError is 0.5 * ||y - t||^2 per sample.
type MeanSquaredError struct{}

func (MeanSquaredError) Loss(y, t *mat.Dense) float64 {
	_, n := y.Dims()
	diff := utils.ToDense(utils.Subtract(y, t))
	d := diff.RawMatrix().Data
	return 0.5 * floats.Dot(d, d) / float64(n)
}

func (MeanSquaredError) Grad(y, t *mat.Dense) *mat.Dense {
	_, n := y.Dims()
	return utils.ToDense(utils.Scale(1/float64(n), utils.Subtract(y, t)))
}

// CrossEntropy applies a column softmax to the raw scores and compares it
// with one-hot (or probability) target columns.
type CrossEntropy struct{}

func (CrossEntropy) Loss(y, t *mat.Dense) float64 {
	r, n := y.Dims()
	p := utils.ColumnSoftmax(y)
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < n; j++ {
			if tv := t.At(i, j); tv != 0 {
				sum -= tv * math.Log(p.At(i, j)+1e-12)
			}
		}
	}
	return sum / float64(n)
}

func (CrossEntropy) Grad(y, t *mat.Dense) *mat.Dense {
	_, n := y.Dims()
	p := utils.ColumnSoftmax(y)
	p.Sub(p, t)
	p.Scale(1/float64(n), p)
	return p
}
