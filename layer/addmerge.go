package layer

import (
	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

// AddMerge outputs the elementwise sum of its layers' outputs.
//
// A running merge evaluates every layer on the shared input and backprops
// into each of them. A non-running merge only sums outputs its layers already
// hold: Forward ignores its input, Backward passes gy through unchanged, and
// Gradient does nothing. The recurrent cell drives its merge non-running.
type AddMerge struct {
	layers []Layer
	run    bool
	owns   bool

	output, delta *mat.Dense
}

func NewAddMerge(run, owns bool, layers ...Layer) *AddMerge {
	return &AddMerge{layers: append([]Layer(nil), layers...), run: run, owns: owns}
}

func (m *AddMerge) Add(l Layer) { m.layers = append(m.layers, l) }

func (m *AddMerge) Model() []Layer { return m.layers }

func (m *AddMerge) Forward(x *mat.Dense) *mat.Dense {
	if m.run {
		for _, l := range m.layers {
			l.Forward(x)
		}
	}
	out := mat.DenseCopyOf(m.layers[0].Output())
	for _, l := range m.layers[1:] {
		out.Add(out, l.Output())
	}
	m.output = out
	return out
}

func (m *AddMerge) Backward(_, gy *mat.Dense) *mat.Dense {
	if !m.run {
		m.delta = mat.DenseCopyOf(gy)
		return m.delta
	}
	var sum *mat.Dense
	for _, l := range m.layers {
		d := l.Backward(l.Output(), gy)
		if sum == nil {
			sum = mat.DenseCopyOf(d)
			continue
		}
		sum = utils.Add(sum, d).(*mat.Dense)
	}
	m.delta = sum
	return m.delta
}

func (m *AddMerge) Gradient(x, err *mat.Dense) {
	if !m.run {
		return
	}
	for _, l := range m.layers {
		l.Gradient(x, err)
	}
}

func (m *AddMerge) ZeroGradient() {
	for _, l := range m.layers {
		l.ZeroGradient()
	}
}

func (m *AddMerge) Output() *mat.Dense       { return m.output }
func (m *AddMerge) SetOutput(out *mat.Dense) { m.output = out }
func (m *AddMerge) Delta() *mat.Dense        { return m.delta }

func (m *AddMerge) Parameters() []*mat.Dense { return Params(m.layers...) }
func (m *AddMerge) Gradients() []*mat.Dense  { return Grads(m.layers...) }

func (m *AddMerge) WeightSize() int {
	n := 0
	for _, l := range m.layers {
		n += l.WeightSize()
	}
	return n
}

func (m *AddMerge) Clone() Layer {
	out := NewAddMerge(m.run, true)
	for _, l := range m.layers {
		out.Add(l.Clone())
	}
	return out
}

func (m *AddMerge) Release() {
	if m.owns {
		for _, l := range m.layers {
			Release(l)
		}
	}
	m.layers = nil
	m.output, m.delta = nil, nil
}
