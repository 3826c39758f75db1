package layer

import (
	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

const (
	KindIdentity = "identity"
	KindTanh     = "tanh"
	KindSigmoid  = "sigmoid"
	KindReLU     = "relu"
)

// Activation is a parameter-free elementwise layer. Its derivative is
// evaluated from the output buffer, so replaying Output is enough to
// backpropagate an earlier step.
type Activation struct {
	kind  string
	fn    func(i, j int, v float64) float64
	prime func(y mat.Matrix) *mat.Dense

	output, delta *mat.Dense
}

func init() {
	for _, k := range []string{KindIdentity, KindTanh, KindSigmoid, KindReLU} {
		kind := k
		Register(kind, func(Data) (Layer, error) { return newActivation(kind), nil })
	}
}

func NewIdentity() *Activation { return newActivation(KindIdentity) }
func NewTanh() *Activation     { return newActivation(KindTanh) }
func NewSigmoid() *Activation  { return newActivation(KindSigmoid) }
func NewReLU() *Activation     { return newActivation(KindReLU) }

func newActivation(kind string) *Activation {
	a := &Activation{kind: kind}
	switch kind {
	case KindTanh:
		a.fn, a.prime = utils.TanhApply, utils.TanhPrime
	case KindSigmoid:
		a.fn, a.prime = utils.SigmoidApply, utils.SigmoidPrime
	case KindReLU:
		a.fn, a.prime = utils.ReluApply, utils.ReluPrime
	case KindIdentity:
	default:
		panic("layer: unknown activation " + kind)
	}
	return a
}

func (a *Activation) Forward(x *mat.Dense) *mat.Dense {
	if a.fn == nil {
		a.output = mat.DenseCopyOf(x)
	} else {
		a.output = utils.Apply(a.fn, x).(*mat.Dense)
	}
	return a.output
}

func (a *Activation) Backward(y, gy *mat.Dense) *mat.Dense {
	if a.prime == nil {
		a.delta = mat.DenseCopyOf(gy)
	} else {
		a.delta = utils.Multiply(gy, a.prime(y)).(*mat.Dense)
	}
	return a.delta
}

func (a *Activation) Gradient(_, _ *mat.Dense) {}
func (a *Activation) ZeroGradient()            {}

func (a *Activation) Output() *mat.Dense       { return a.output }
func (a *Activation) SetOutput(out *mat.Dense) { a.output = out }
func (a *Activation) Delta() *mat.Dense        { return a.delta }

func (a *Activation) Parameters() []*mat.Dense { return nil }
func (a *Activation) Gradients() []*mat.Dense  { return nil }
func (a *Activation) WeightSize() int          { return 0 }

func (a *Activation) Clone() Layer { return newActivation(a.kind) }

func (a *Activation) Release() { a.output, a.delta = nil, nil }

func (a *Activation) Kind() string       { return a.kind }
func (a *Activation) MarshalLayer() Data { return Data{Kind: a.kind} }
