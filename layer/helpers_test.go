package layer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	// Perturb +eps
	param.Set(i, j, w0+eps)
	lp := forward()

	// Perturb -eps
	param.Set(i, j, w0-eps)
	lm := forward()

	// Restore
	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-5 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

// weightedSum is the loss sum(c ⊙ y); its gradient w.r.t. y is c.
func weightedSum(c, y mat.Matrix) float64 {
	return mat.Sum(utils.Multiply(c, y))
}

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	return mat.NewDense(r, c, utils.RandomArray(rng, r*c, 1))
}
