package layer

import (
	"fmt"
	"math/rand"

	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

const KindLinear = "linear"

// Linear is the affine map W*x + b.
type Linear struct {
	In, Out int
	Weights *mat.Dense // (out x in)
	Bias    *mat.Dense // (out x 1)

	dWeights, dBias *mat.Dense

	output, delta *mat.Dense
}

func init() { Register(KindLinear, buildLinear) }

// NewLinear draws weights uniformly from ±1/sqrt(in).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	w := mat.NewDense(out, in, utils.RandomArray(rng, out*in, float64(in)))
	b := mat.NewDense(out, 1, nil)
	return NewLinearFrom(w, b)
}

// NewLinearFrom wraps existing weights. It panics if b is not (out x 1).
func NewLinearFrom(w, b *mat.Dense) *Linear {
	out, in := w.Dims()
	if br, bc := b.Dims(); br != out || bc != 1 {
		panic(fmt.Sprintf("linear: bias must be (%d x 1), got (%d x %d)", out, br, bc))
	}
	return &Linear{
		In:       in,
		Out:      out,
		Weights:  w,
		Bias:     b,
		dWeights: mat.NewDense(out, in, nil),
		dBias:    mat.NewDense(out, 1, nil),
	}
}

func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	l.output = utils.AddBias(utils.ToDense(utils.Dot(l.Weights, x)), l.Bias)
	return l.output
}

// Backward ignores output; the affine map has a constant Jacobian.
func (l *Linear) Backward(_, gy *mat.Dense) *mat.Dense {
	l.delta = utils.ToDense(utils.Dot(l.Weights.T(), gy))
	return l.delta
}

func (l *Linear) Gradient(x, err *mat.Dense) {
	l.dWeights.Mul(err, x.T())
	l.dBias.Copy(utils.RowSums(err))
}

func (l *Linear) ZeroGradient() {
	l.dWeights.Zero()
	l.dBias.Zero()
}

func (l *Linear) Output() *mat.Dense       { return l.output }
func (l *Linear) SetOutput(out *mat.Dense) { l.output = out }
func (l *Linear) Delta() *mat.Dense        { return l.delta }

func (l *Linear) Parameters() []*mat.Dense { return []*mat.Dense{l.Weights, l.Bias} }
func (l *Linear) Gradients() []*mat.Dense  { return []*mat.Dense{l.dWeights, l.dBias} }
func (l *Linear) WeightSize() int          { return l.Out*l.In + l.Out }

func (l *Linear) InSize() int  { return l.In }
func (l *Linear) OutSize() int { return l.Out }

func (l *Linear) Clone() Layer {
	return NewLinearFrom(mat.DenseCopyOf(l.Weights), mat.DenseCopyOf(l.Bias))
}

func (l *Linear) Release() {
	l.Weights, l.Bias = nil, nil
	l.dWeights, l.dBias = nil, nil
	l.output, l.delta = nil, nil
}

func (l *Linear) Kind() string { return KindLinear }

func (l *Linear) MarshalLayer() Data {
	return Data{
		Kind:   KindLinear,
		In:     l.In,
		Out:    l.Out,
		Params: []Matrix{toMatrix(l.Weights), toMatrix(l.Bias)},
	}
}

func buildLinear(d Data) (Layer, error) {
	if err := wantParams(d, 2); err != nil {
		return nil, err
	}
	w, err := d.Params[0].dense("linear weights", d.Out, d.In)
	if err != nil {
		return nil, err
	}
	b, err := d.Params[1].dense("linear bias", d.Out, 1)
	if err != nil {
		return nil, err
	}
	return NewLinearFrom(w, b), nil
}
