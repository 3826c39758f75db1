package layer

import "gonum.org/v1/gonum/mat"

// Sequential chains its layers, feeding each output into the next layer.
//
// A Sequential that owns its layers releases them with itself; one that does
// not only drops its own buffers.
type Sequential struct {
	layers []Layer
	owns   bool

	output, delta *mat.Dense
}

func NewSequential(owns bool, layers ...Layer) *Sequential {
	return &Sequential{layers: append([]Layer(nil), layers...), owns: owns}
}

// Add appends l to the chain.
func (s *Sequential) Add(l Layer) { s.layers = append(s.layers, l) }

func (s *Sequential) Model() []Layer { return s.layers }

func (s *Sequential) Forward(x *mat.Dense) *mat.Dense {
	for _, l := range s.layers {
		x = l.Forward(x)
	}
	s.output = x
	return s.output
}

// Backward runs the chain in reverse. Each layer is handed its own output and
// the delta of the layer after it.
func (s *Sequential) Backward(_, gy *mat.Dense) *mat.Dense {
	n := len(s.layers)
	last := s.layers[n-1]
	last.Backward(last.Output(), gy)
	for i := n - 2; i >= 0; i-- {
		s.layers[i].Backward(s.layers[i].Output(), s.layers[i+1].Delta())
	}
	s.delta = s.layers[0].Delta()
	return s.delta
}

// Gradient hands err to the last layer only; every other layer receives the
// delta of the layer after it, with the output of the layer before it (or x,
// for the first layer) as input.
func (s *Sequential) Gradient(x, err *mat.Dense) {
	n := len(s.layers)
	if n == 1 {
		s.layers[0].Gradient(x, err)
		return
	}
	s.layers[n-1].Gradient(s.layers[n-2].Output(), err)
	for i := n - 2; i > 0; i-- {
		s.layers[i].Gradient(s.layers[i-1].Output(), s.layers[i+1].Delta())
	}
	s.layers[0].Gradient(x, s.layers[1].Delta())
}

func (s *Sequential) ZeroGradient() {
	for _, l := range s.layers {
		l.ZeroGradient()
	}
}

func (s *Sequential) Output() *mat.Dense       { return s.output }
func (s *Sequential) SetOutput(out *mat.Dense) { s.output = out }
func (s *Sequential) Delta() *mat.Dense        { return s.delta }

func (s *Sequential) Parameters() []*mat.Dense { return Params(s.layers...) }
func (s *Sequential) Gradients() []*mat.Dense  { return Grads(s.layers...) }

func (s *Sequential) WeightSize() int {
	n := 0
	for _, l := range s.layers {
		n += l.WeightSize()
	}
	return n
}

func (s *Sequential) InSize() int {
	in, _, _ := Size(s.layers[0])
	return in
}

func (s *Sequential) OutSize() int {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if _, out, ok := Size(s.layers[i]); ok {
			return out
		}
	}
	return 0
}

// Clone deep-copies every layer; the copy owns them.
func (s *Sequential) Clone() Layer {
	out := NewSequential(true)
	for _, l := range s.layers {
		out.Add(l.Clone())
	}
	return out
}

func (s *Sequential) Release() {
	if s.owns {
		for _, l := range s.layers {
			Release(l)
		}
	}
	s.layers = nil
	s.output, s.delta = nil, nil
}
