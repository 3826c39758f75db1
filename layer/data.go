package layer

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Matrix is the plain-data form of a *mat.Dense.
type Matrix struct {
	R, C int
	Data []float64
}

// Data is the plain-data form of a persistable layer. Composite layers are
// never persisted; they are rebuilt from their parts.
type Data struct {
	Kind    string
	In, Out int
	Eps     float64
	Params  []Matrix
}

// Marshaler is implemented by layers that can be persisted.
type Marshaler interface {
	Kind() string
	MarshalLayer() Data
}

// Builder rebuilds a layer from its Data. It reports inconsistent
// dimensions with an error wrapping ErrShape.
type Builder func(d Data) (Layer, error)

var builders = map[string]Builder{}

// Register makes a layer kind decodable. It panics on duplicates.
func Register(kind string, b Builder) {
	if _, dup := builders[kind]; dup {
		panic("layer: Register called twice for kind " + kind)
	}
	builders[kind] = b
}

// Kinds lists the registered kinds in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Encode(l Layer) (Data, error) {
	m, ok := l.(Marshaler)
	if !ok {
		return Data{}, fmt.Errorf("%w: %T is not persistable", ErrUnknownKind, l)
	}
	return m.MarshalLayer(), nil
}

func Decode(d Data) (Layer, error) {
	b, ok := builders[d.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	return b(d)
}

func toMatrix(m *mat.Dense) Matrix {
	r, c := m.Dims()
	raw := mat.DenseCopyOf(m).RawMatrix()
	return Matrix{R: r, C: c, Data: append([]float64(nil), raw.Data...)}
}

// dense checks m against the expected shape before building it. Widths
// come from untrusted checkpoints, so non-positive or overflowing shapes are
// errors, never panics.
func (m Matrix) dense(name string, r, c int) (*mat.Dense, error) {
	if r <= 0 || c <= 0 || m.R <= 0 || m.C <= 0 {
		return nil, fmt.Errorf("%w: %s is (%d x %d), want positive (%d x %d)", ErrShape, name, m.R, m.C, r, c)
	}
	if m.R != r || m.C != c {
		return nil, fmt.Errorf("%w: %s is (%d x %d), want (%d x %d)", ErrShape, name, m.R, m.C, r, c)
	}
	if len(m.Data)%c != 0 || len(m.Data)/c != r {
		return nil, fmt.Errorf("%w: %s has %d values, want %d x %d", ErrShape, name, len(m.Data), r, c)
	}
	return mat.NewDense(r, c, append([]float64(nil), m.Data...)), nil
}

func wantParams(d Data, n int) error {
	if len(d.Params) != n {
		return fmt.Errorf("%w: %s carries %d parameter matrices, want %d", ErrShape, d.Kind, len(d.Params), n)
	}
	return nil
}
