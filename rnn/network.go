// Package rnn unrolls layers containing recurrent cells over fixed-length
// sequences and trains them with truncated BPTT.
package rnn

import (
	"errors"
	"fmt"

	"github.com/manningwu07/recurrent/layer"
	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

var ErrSequenceLength = errors.New("rnn: sequence length does not match rho")

type stepper interface {
	Rho() int
}

type inferencer interface {
	SetInference(bool)
}

type resetter interface {
	Reset()
}

// Network is a stack of layers applied at every time step, with a loss on
// the last layer's output.
type Network struct {
	Layers []layer.Layer
	Loss   Loss

	rho int
}

// NewNetwork checks that every recurrent layer in the stack shares one rho.
func NewNetwork(loss Loss, layers ...layer.Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, errors.New("rnn: network needs at least one layer")
	}
	n := &Network{Layers: layers, Loss: loss}
	for i, l := range layers {
		s, ok := l.(stepper)
		if !ok {
			continue
		}
		if n.rho != 0 && s.Rho() != n.rho {
			return nil, fmt.Errorf("rnn: layer %d has rho %d, network has %d", i, s.Rho(), n.rho)
		}
		n.rho = s.Rho()
	}
	if n.rho == 0 {
		return nil, errors.New("rnn: network has no recurrent layer")
	}
	return n, nil
}

func (n *Network) Rho() int { return n.rho }

func (n *Network) Parameters() []*mat.Dense { return layer.Params(n.Layers...) }

// Gradients are the per-step buffers the layers write; see ForwardBackward
// for the summed gradient of an unroll.
func (n *Network) Gradients() []*mat.Dense { return layer.Grads(n.Layers...) }

func (n *Network) forward(x *mat.Dense) *mat.Dense {
	y := x
	for _, l := range n.Layers {
		y = l.Forward(y)
	}
	return y
}

func (n *Network) checkLen(inputs, targets []*mat.Dense) error {
	if len(inputs) != n.rho {
		return fmt.Errorf("%w: got %d inputs, rho is %d", ErrSequenceLength, len(inputs), n.rho)
	}
	if targets != nil && len(targets) != len(inputs) {
		return fmt.Errorf("%w: %d inputs but %d targets", ErrSequenceLength, len(inputs), len(targets))
	}
	return nil
}

// ForwardBackward runs one unroll of rho steps and returns the summed loss
// together with the gradient of that loss, aligned with Parameters.
//
// Each step's activations are recorded after its Forward and replayed
// before its Backward and Gradient, newest step first.
func (n *Network) ForwardBackward(inputs, targets []*mat.Dense) (float64, []*mat.Dense, error) {
	if err := n.checkLen(inputs, targets); err != nil {
		return 0, nil, err
	}
	frames := make([][]layer.Frame, n.rho)
	gys := make([]*mat.Dense, n.rho)
	loss := 0.0
	for t, x := range inputs {
		y := n.forward(x)
		frames[t] = make([]layer.Frame, len(n.Layers))
		for i, l := range n.Layers {
			frames[t][i] = layer.Record(l)
		}
		loss += n.Loss.Loss(y, targets[t])
		gys[t] = n.Loss.Grad(y, targets[t])
	}

	ps := n.Parameters()
	acc := make([]*mat.Dense, len(ps))
	for i, p := range ps {
		acc[i] = utils.ZerosLike(p)
	}

	last := len(n.Layers) - 1
	for t := n.rho - 1; t >= 0; t-- {
		for i, l := range n.Layers {
			layer.Replay(l, frames[t][i])
		}

		g := gys[t]
		for i := last; i >= 0; i-- {
			g = n.Layers[i].Backward(n.Layers[i].Output(), g)
		}

		for _, l := range n.Layers {
			l.ZeroGradient()
		}
		for i, l := range n.Layers {
			in, e := inputs[t], gys[t]
			if i > 0 {
				in = n.Layers[i-1].Output()
			}
			if i < last {
				e = n.Layers[i+1].Delta()
			}
			l.Gradient(in, e)
		}
		for i, g := range n.Gradients() {
			acc[i].Add(acc[i], g)
		}
	}
	return loss, acc, nil
}

// Evaluate returns the summed loss of one sequence without touching the
// training state of the recurrent layers.
func (n *Network) Evaluate(inputs, targets []*mat.Dense) (float64, error) {
	if err := n.checkLen(inputs, targets); err != nil {
		return 0, err
	}
	outs := n.Predict(inputs)
	loss := 0.0
	for t, y := range outs {
		loss += n.Loss.Loss(y, targets[t])
	}
	return loss, nil
}

// Predict runs the layers over inputs in inference mode and returns a copy
// of every step's output. Sequences longer than rho restart the hidden state
// every rho steps. Recurrent layers are reset afterwards.
func (n *Network) Predict(inputs []*mat.Dense) []*mat.Dense {
	n.setInference(true)
	defer n.setInference(false)

	outs := make([]*mat.Dense, len(inputs))
	for t, x := range inputs {
		outs[t] = mat.DenseCopyOf(n.forward(x))
	}
	for _, l := range n.Layers {
		if r, ok := l.(resetter); ok {
			r.Reset()
		}
	}
	return outs
}

func (n *Network) setInference(on bool) {
	for _, l := range n.Layers {
		if s, ok := l.(inferencer); ok {
			s.SetInference(on)
		}
	}
}

// Release frees every layer that supports it.
func (n *Network) Release() {
	for _, l := range n.Layers {
		layer.Release(l)
	}
}
