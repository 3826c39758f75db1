// Package recurrent implements a recurrent cell trained with truncated
// backpropagation through time.
//
// A Cell is built from four handles: start, input, feedback and transfer.
// From them it wires three composites:
//
//	initial   = input -> start -> transfer     (first step of an unroll)
//	merge     = input + feedback               (non-running sum)
//	recurrent = merge -> transfer              (every later step)
//
// The driver calls Forward once per time step in chronological order, then
// Backward and Gradient once per step in reverse order. The cell does not
// check that order; calling Backward or Gradient out of step with the
// recorded Forward calls yields wrong gradients, not an error.
//
// Layers reuse their activation buffers across steps. A driver that needs
// exact gradients records each step with layer.Record and replays it with
// layer.Replay before that step's Backward and Gradient (see package rnn).
//
// A Cell is not safe for concurrent use.
package recurrent

import (
	"errors"
	"fmt"

	"github.com/manningwu07/recurrent/layer"
	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrRho         = errors.New("recurrent: rho must be at least 1")
	ErrDeserialize = errors.New("recurrent: cannot deserialize cell")
)

type Cell struct {
	start, input, feedback, transfer layer.Layer

	initial   *layer.Sequential
	merge     *layer.AddMerge
	recurrent *layer.Sequential

	rho int

	forwardStep, backwardStep, gradientStep int

	// transfer outputs saved by Forward, read back by Gradient
	history []*mat.Dense
	// hidden-state gradient carried between Backward calls; nil until first use
	recurrentError *mat.Dense

	inference bool
	owns      bool
	released  bool

	output, delta *mat.Dense
}

// New builds a cell that owns private copies of the four handles.
func New(start, input, feedback, transfer layer.Layer, rho int) (*Cell, error) {
	return build(start.Clone(), input.Clone(), feedback.Clone(), transfer.Clone(), rho, true)
}

// NewShared builds a cell over caller-owned handles. The cell never
// releases them; the caller must keep them alive for the cell's lifetime.
func NewShared(start, input, feedback, transfer layer.Layer, rho int) (*Cell, error) {
	return build(start, input, feedback, transfer, rho, false)
}

func build(start, input, feedback, transfer layer.Layer, rho int, owns bool) (*Cell, error) {
	if rho < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrRho, rho)
	}
	if err := checkShapes(start, input, feedback, transfer); err != nil {
		return nil, err
	}
	c := &Cell{
		start:    start,
		input:    input,
		feedback: feedback,
		transfer: transfer,
		rho:      rho,
		owns:     owns,
	}
	c.wire()
	return c, nil
}

// wire derives the composites from the atomic handles. Construction and
// deserialization both go through here, so the order never varies.
func (c *Cell) wire() {
	c.initial = layer.NewSequential(false, c.input, c.start, c.transfer)
	c.merge = layer.NewAddMerge(false, false, c.input, c.feedback)
	c.recurrent = layer.NewSequential(false, c.merge, c.transfer)
}

// checkShapes verifies that every sized handle agrees on the hidden width:
// the input handle's output, and both sides of start, feedback and transfer.
// The width is taken from the first sized handle, so a shape-preserving
// input does not disable the check. Shape-preserving handles pass.
func checkShapes(start, input, feedback, transfer layer.Layer) error {
	type width struct {
		what string
		n    int
	}
	var ws []width
	if _, out, ok := layer.Size(input); ok {
		ws = append(ws, width{"input output", out})
	}
	for _, p := range []struct {
		name string
		l    layer.Layer
	}{{"start", start}, {"feedback", feedback}, {"transfer", transfer}} {
		if in, out, ok := layer.Size(p.l); ok {
			ws = append(ws, width{p.name + " input", in}, width{p.name + " output", out})
		}
	}
	h := -1
	var from string
	for _, w := range ws {
		if w.n == 0 {
			continue
		}
		if h < 0 {
			h, from = w.n, w.what
			continue
		}
		if w.n != h {
			return fmt.Errorf("%w: %s is %d features, %s is %d",
				layer.ErrShape, w.what, w.n, from, h)
		}
	}
	return nil
}

// Forward advances the cell by one time step.
//
// The first step of an unroll runs initial on x. Later steps run input on x
// and feedback on the previous hidden state, then recurrent on the pair.
// Outside inference mode a copy of the new hidden state is kept for Gradient.
func (c *Cell) Forward(x *mat.Dense) *mat.Dense {
	if c.forwardStep == 0 {
		c.initial.Forward(x)
	} else {
		c.input.Forward(x)
		c.feedback.Forward(c.transfer.Output())
		c.recurrent.Forward(x)
	}

	c.output = mat.DenseCopyOf(c.transfer.Output())
	if !c.inference {
		c.history = append(c.history, mat.DenseCopyOf(c.output))
	}

	c.forwardStep++
	if c.forwardStep == c.rho {
		c.forwardStep = 0
		c.backwardStep = 0
		if c.recurrentError != nil {
			c.recurrentError.Zero()
		}
		utils.Debugf("recurrent: forward unroll of %d steps complete", c.rho)
	}
	return c.output
}

// Backward takes the gradient w.r.t. this step's output and returns the
// gradient w.r.t. this step's input. The hidden-state gradient of the later
// step is added to gy before backpropagating. The oldest step of the window
// is backpropagated through initial.
func (c *Cell) Backward(_, gy *mat.Dense) *mat.Dense {
	if c.recurrentError == nil || !utils.SameShape(c.recurrentError, gy) {
		c.recurrentError = mat.DenseCopyOf(gy)
	} else {
		c.recurrentError.Add(c.recurrentError, gy)
	}

	if c.backwardStep < c.rho-1 {
		c.recurrent.Backward(c.recurrent.Output(), c.recurrentError)
		c.delta = c.input.Backward(c.input.Output(), c.recurrent.Delta())
		c.feedback.Backward(c.feedback.Output(), c.recurrent.Delta())
	} else {
		c.delta = c.initial.Backward(c.initial.Output(), c.recurrentError)
	}

	// At the window's oldest step this is stale; Forward zeroes it before
	// the next unroll reads it.
	if fd := c.feedback.Delta(); fd != nil {
		c.recurrentError = utils.CopyInto(c.recurrentError, fd)
	}

	c.backwardStep++
	if c.backwardStep == c.rho {
		c.backwardStep = 0
	}
	return c.delta
}

// Gradient writes this step's weight gradients into the handles' gradient
// buffers. x is the step's original input and err its output gradient.
// At the oldest step of the window the recurrent path does not apply: its
// gradients are zeroed and initial's are written instead.
//
// The handles' weights are shared by every step, so a driver sums the
// buffers after each call to obtain the unroll's gradient.
func (c *Cell) Gradient(x, err *mat.Dense) {
	if c.gradientStep < c.rho-1 {
		c.recurrent.Gradient(x, err)
		c.input.Gradient(x, c.merge.Delta())
		c.feedback.Gradient(c.history[c.historyIndex()], c.merge.Delta())
	} else {
		c.recurrent.ZeroGradient()
		c.input.ZeroGradient()
		c.feedback.ZeroGradient()
		c.initial.Gradient(x, c.start.Delta())
	}

	c.gradientStep++
	if c.gradientStep == c.rho {
		c.gradientStep = 0
		clear(c.history)
		c.history = c.history[:0]
		utils.Debugf("recurrent: gradient unroll of %d steps complete", c.rho)
	}
}

// historyIndex is the slot of the hidden state that fed feedback on the step
// being differentiated: gradientStep steps before the state preceding the
// newest one.
func (c *Cell) historyIndex() int {
	return len(c.history) - 2 - c.gradientStep
}

func (c *Cell) ZeroGradient() {
	for _, l := range c.handles() {
		l.ZeroGradient()
	}
}

func (c *Cell) handles() []layer.Layer {
	return []layer.Layer{c.start, c.input, c.feedback, c.transfer}
}

func (c *Cell) Output() *mat.Dense       { return c.output }
func (c *Cell) SetOutput(out *mat.Dense) { c.output = out }
func (c *Cell) Delta() *mat.Dense        { return c.delta }

func (c *Cell) Parameters() []*mat.Dense { return layer.Params(c.handles()...) }
func (c *Cell) Gradients() []*mat.Dense  { return layer.Grads(c.handles()...) }

func (c *Cell) WeightSize() int {
	n := 0
	for _, l := range c.handles() {
		n += l.WeightSize()
	}
	return n
}

// Model exposes the layers whose buffers make up one step's state.
func (c *Cell) Model() []layer.Layer {
	return []layer.Layer{c.initial, c.merge, c.feedback, c.recurrent}
}

// Clone returns an owning copy with fresh step state.
func (c *Cell) Clone() layer.Layer {
	out, err := New(c.start, c.input, c.feedback, c.transfer, c.rho)
	if err != nil {
		panic(err) // the handles were already validated
	}
	out.inference = c.inference
	return out
}

// Release frees the seven handles when the cell owns them and drops every
// reference either way. Later calls do nothing.
func (c *Cell) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.owns {
		for _, l := range []layer.Layer{c.initial, c.merge, c.recurrent} {
			layer.Release(l)
		}
		for _, l := range c.handles() {
			layer.Release(l)
		}
	}
	c.start, c.input, c.feedback, c.transfer = nil, nil, nil, nil
	c.initial, c.merge, c.recurrent = nil, nil, nil
	c.history, c.recurrentError = nil, nil
	c.output, c.delta = nil, nil
}

// Reset returns the step counters, history and hidden-state gradient to
// their initial state without touching weights.
func (c *Cell) Reset() {
	c.forwardStep, c.backwardStep, c.gradientStep = 0, 0, 0
	clear(c.history)
	c.history = c.history[:0]
	c.recurrentError = nil
}

func (c *Cell) SetInference(on bool) { c.inference = on }
func (c *Cell) Inference() bool      { return c.inference }

func (c *Cell) Rho() int          { return c.rho }
func (c *Cell) OwnsHandles() bool { return c.owns }

// Steps returns the forward, backward and gradient counters.
func (c *Cell) Steps() (forward, backward, gradient int) {
	return c.forwardStep, c.backwardStep, c.gradientStep
}

func (c *Cell) HistoryLen() int { return len(c.history) }

// RecurrentError returns the hidden-state gradient carried into the next
// Backward call, or nil before the first one.
func (c *Cell) RecurrentError() *mat.Dense { return c.recurrentError }

func (c *Cell) Start() layer.Layer    { return c.start }
func (c *Cell) Input() layer.Layer    { return c.input }
func (c *Cell) Feedback() layer.Layer { return c.feedback }
func (c *Cell) Transfer() layer.Layer { return c.transfer }

func (c *Cell) Initial() *layer.Sequential   { return c.initial }
func (c *Cell) Merge() *layer.AddMerge       { return c.merge }
func (c *Cell) Recurrent() *layer.Sequential { return c.recurrent }
