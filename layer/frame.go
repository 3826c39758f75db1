package layer

import "gonum.org/v1/gonum/mat"

// Frame is one time step's worth of activations for a layer tree, captured
// by Record and restored by Replay. Layers reuse their output buffers across
// steps, so a driver running BPTT replays the frame of step t before calling
// Backward and Gradient for step t.
type Frame []frameEntry

type frameEntry struct {
	output *mat.Dense
	cache  any
}

// Record copies the output buffer (and cache, when present) of l and every
// layer it contains.
func Record(l Layer) Frame {
	var f Frame
	Walk(l, func(x Layer) {
		var e frameEntry
		if out := x.Output(); out != nil && !out.IsEmpty() {
			e.output = mat.DenseCopyOf(out)
		}
		if c, ok := x.(Cached); ok {
			e.cache = c.SaveCache()
		}
		f = append(f, e)
	})
	return f
}

// Replay restores a frame recorded from the same layer tree. It panics if
// the tree changed shape since Record.
func Replay(l Layer, f Frame) {
	i := 0
	Walk(l, func(x Layer) {
		e := f[i]
		i++
		if e.output != nil {
			x.SetOutput(e.output)
		}
		if c, ok := x.(Cached); ok && e.cache != nil {
			c.LoadCache(e.cache)
		}
	})
	if i != len(f) {
		panic("layer: replayed frame does not match the layer tree")
	}
}
