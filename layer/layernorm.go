package layer

import (
	"fmt"
	"math"

	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

const KindLayerNorm = "layernorm"

// LayerNorm normalizes each column to zero mean and unit variance, then
// applies the per-feature affine gamma*xhat + beta.
type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *mat.Dense // (d x 1)
	Beta  *mat.Dense // (d x 1)

	dGamma, dBeta *mat.Dense

	// cache
	xhat   *mat.Dense // (d x T)
	invStd []float64  // per column

	output, delta *mat.Dense
}

type layerNormCache struct {
	xhat   *mat.Dense
	invStd []float64
}

func init() { Register(KindLayerNorm, buildLayerNorm) }

func NewLayerNorm(d int, eps float64) *LayerNorm {
	return newLayerNormFrom(utils.OnesLike(mat.NewDense(d, 1, nil)), mat.NewDense(d, 1, nil), eps)
}

func newLayerNormFrom(gamma, beta *mat.Dense, eps float64) *LayerNorm {
	d, _ := gamma.Dims()
	return &LayerNorm{
		D:      d,
		Eps:    eps,
		Gamma:  gamma,
		Beta:   beta,
		dGamma: mat.NewDense(d, 1, nil),
		dBeta:  mat.NewDense(d, 1, nil),
	}
}

func (ln *LayerNorm) Forward(X *mat.Dense) *mat.Dense {
	d, T := X.Dims()
	out := mat.NewDense(d, T, nil)
	xhat := mat.NewDense(d, T, nil)
	inv := make([]float64, T)
	for t := 0; t < T; t++ {
		// mean over rows
		mu := 0.0
		for i := 0; i < d; i++ {
			mu += X.At(i, t)
		}
		mu /= float64(d)
		// variance
		var v float64
		for i := 0; i < d; i++ {
			diff := X.At(i, t) - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		inv[t] = istd
		// normalize and affine
		for i := 0; i < d; i++ {
			n := (X.At(i, t) - mu) * istd
			xhat.Set(i, t, n)
			out.Set(i, t, ln.Gamma.At(i, 0)*n+ln.Beta.At(i, 0))
		}
	}
	ln.xhat = xhat
	ln.invStd = inv
	ln.output = out
	return out
}

// Backward uses the cached normalization, not the output argument.
func (ln *LayerNorm) Backward(_, dY *mat.Dense) *mat.Dense {
	d, T := dY.Dims()
	dX := mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		istd := ln.invStd[t]
		// precompute sums
		sum1 := 0.0
		sum2 := 0.0
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.At(i, 0)
			sum1 += gy
			sum2 += gy * ln.xhat.At(i, t)
		}
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.At(i, 0)
			dxi := (float64(d)*gy - sum1 - ln.xhat.At(i, t)*sum2) * (istd / float64(d))
			dX.Set(i, t, dxi)
		}
	}
	ln.delta = dX
	return dX
}

func (ln *LayerNorm) Gradient(_, err *mat.Dense) {
	ln.dGamma.Copy(utils.RowSums(utils.Multiply(err, ln.xhat)))
	ln.dBeta.Copy(utils.RowSums(err))
}

func (ln *LayerNorm) ZeroGradient() {
	ln.dGamma.Zero()
	ln.dBeta.Zero()
}

func (ln *LayerNorm) SaveCache() any {
	return layerNormCache{xhat: ln.xhat, invStd: ln.invStd}
}

func (ln *LayerNorm) LoadCache(c any) {
	lc := c.(layerNormCache)
	ln.xhat, ln.invStd = lc.xhat, lc.invStd
}

func (ln *LayerNorm) Output() *mat.Dense       { return ln.output }
func (ln *LayerNorm) SetOutput(out *mat.Dense) { ln.output = out }
func (ln *LayerNorm) Delta() *mat.Dense        { return ln.delta }

func (ln *LayerNorm) Parameters() []*mat.Dense { return []*mat.Dense{ln.Gamma, ln.Beta} }
func (ln *LayerNorm) Gradients() []*mat.Dense  { return []*mat.Dense{ln.dGamma, ln.dBeta} }
func (ln *LayerNorm) WeightSize() int          { return 2 * ln.D }

func (ln *LayerNorm) InSize() int  { return ln.D }
func (ln *LayerNorm) OutSize() int { return ln.D }

func (ln *LayerNorm) Clone() Layer {
	return newLayerNormFrom(mat.DenseCopyOf(ln.Gamma), mat.DenseCopyOf(ln.Beta), ln.Eps)
}

func (ln *LayerNorm) Release() {
	ln.Gamma, ln.Beta, ln.dGamma, ln.dBeta = nil, nil, nil, nil
	ln.xhat, ln.invStd = nil, nil
	ln.output, ln.delta = nil, nil
}

func (ln *LayerNorm) Kind() string { return KindLayerNorm }

func (ln *LayerNorm) MarshalLayer() Data {
	return Data{
		Kind:   KindLayerNorm,
		In:     ln.D,
		Out:    ln.D,
		Eps:    ln.Eps,
		Params: []Matrix{toMatrix(ln.Gamma), toMatrix(ln.Beta)},
	}
}

func buildLayerNorm(d Data) (Layer, error) {
	if err := wantParams(d, 2); err != nil {
		return nil, err
	}
	gamma, err := d.Params[0].dense("layernorm gamma", d.Out, 1)
	if err != nil {
		return nil, err
	}
	beta, err := d.Params[1].dense("layernorm beta", d.Out, 1)
	if err != nil {
		return nil, err
	}
	if d.In != d.Out {
		return nil, fmt.Errorf("%w: layernorm maps %d to %d features", ErrShape, d.In, d.Out)
	}
	return newLayerNormFrom(gamma, beta, d.Eps), nil
}
