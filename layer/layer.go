// Package layer defines the layer contract driven by the recurrent cell and
// the atomic and composite layers that satisfy it.
//
// Matrices are (features x batch): one sample per column, as in the rest of
// the module.
package layer

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShape       = errors.New("layer: shape mismatch")
	ErrUnknownKind = errors.New("layer: unknown kind")
	ErrWire        = errors.New("layer: malformed wire data")
)

// Layer is one differentiable stage.
//
// Forward stores and returns the layer's output buffer. Backward receives the
// layer's own output (not its input) together with the gradient w.r.t. that
// output, and stores and returns the gradient w.r.t. the layer's input in the
// delta buffer. Gradient writes this step's weight gradient into the buffers
// returned by Gradients, overwriting the previous contents; summing across
// time steps is the caller's job.
//
// Forward allocates a fresh output each call, so a pointer obtained from
// Output stays valid until the caller drops it.
type Layer interface {
	Forward(input *mat.Dense) *mat.Dense
	Backward(output, gy *mat.Dense) *mat.Dense
	Gradient(input, err *mat.Dense)
	ZeroGradient()

	Output() *mat.Dense
	SetOutput(out *mat.Dense)
	Delta() *mat.Dense

	Parameters() []*mat.Dense
	Gradients() []*mat.Dense
	WeightSize() int

	Clone() Layer
}

// Container is implemented by layers built from other layers.
type Container interface {
	Model() []Layer
}

// Cached is implemented by layers whose Backward needs more of the forward
// pass than the output buffer.
type Cached interface {
	SaveCache() any
	LoadCache(c any)
}

// Sized is implemented by layers with fixed input and output widths.
// Shape-preserving layers (activations) do not implement it.
type Sized interface {
	InSize() int
	OutSize() int
}

// Releaser is implemented by layers holding buffers worth dropping eagerly.
type Releaser interface {
	Release()
}

// Size returns the widths of l, or ok=false for shape-preserving layers.
func Size(l Layer) (in, out int, ok bool) {
	s, ok := l.(Sized)
	if !ok {
		return 0, 0, false
	}
	return s.InSize(), s.OutSize(), true
}

// Release calls Release on l if it supports it.
func Release(l Layer) {
	if r, ok := l.(Releaser); ok {
		r.Release()
	}
}

// Walk visits l and, depth-first, every layer it contains.
func Walk(l Layer, fn func(Layer)) {
	fn(l)
	if c, ok := l.(Container); ok {
		for _, child := range c.Model() {
			Walk(child, fn)
		}
	}
}

// uniqueParams concatenates parameter/gradient pairs of layers, skipping
// parameter matrices already seen.
func uniqueParams(layers []Layer) (ps, gs []*mat.Dense) {
	seen := make(map[*mat.Dense]bool)
	for _, l := range layers {
		lp, lg := l.Parameters(), l.Gradients()
		for i, p := range lp {
			if seen[p] {
				continue
			}
			seen[p] = true
			ps = append(ps, p)
			gs = append(gs, lg[i])
		}
	}
	return ps, gs
}

// Params returns the distinct parameters of layers in order.
func Params(layers ...Layer) []*mat.Dense {
	ps, _ := uniqueParams(layers)
	return ps
}

// Grads returns the gradient buffers matching Params(layers...).
func Grads(layers ...Layer) []*mat.Dense {
	_, gs := uniqueParams(layers)
	return gs
}
