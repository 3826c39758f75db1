package layer

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEncodeDecodeLinear(t *testing.T) {
	l := NewLinear(3, 2, rand.New(rand.NewSource(11)))
	d, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(d)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	g := got.(*Linear)
	if !mat.Equal(g.Weights, l.Weights) || !mat.Equal(g.Bias, l.Bias) {
		t.Fatalf("decoded linear differs")
	}
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	l := NewLinear(3, 2, rand.New(rand.NewSource(11)))
	cases := map[string]func(d *Data){
		"in":        func(d *Data) { d.In = 4 },
		"data":      func(d *Data) { d.Params[0].Data = d.Params[0].Data[:5] },
		"bias rows": func(d *Data) { d.Params[1].R = 3 },
		"params":    func(d *Data) { d.Params = d.Params[:1] },
		"negative": func(d *Data) {
			d.In, d.Out = -1, -1
			d.Params[0] = Matrix{R: -1, C: -1, Data: []float64{0}}
			d.Params[1] = Matrix{R: -1, C: 1, Data: []float64{0}}
		},
		"overflow": func(d *Data) {
			d.In, d.Out = 1<<32, 1<<32
			d.Params[0] = Matrix{R: 1 << 32, C: 1 << 32}
		},
	}
	for name, edit := range cases {
		t.Run(name, func(t *testing.T) {
			d := l.MarshalLayer()
			edit(&d)
			if _, err := Decode(d); !errors.Is(err, ErrShape) {
				t.Fatalf("Decode err = %v, want ErrShape", err)
			}
		})
	}
}

func TestDecodeLayerNormRejectsNegativeWidth(t *testing.T) {
	d := NewLayerNorm(2, 1e-5).MarshalLayer()
	d.In, d.Out = -1, -1
	d.Params[0] = Matrix{R: -1, C: 1, Data: []float64{1}}
	d.Params[1] = Matrix{R: -1, C: 1, Data: []float64{0}}
	if _, err := Decode(d); !errors.Is(err, ErrShape) {
		t.Fatalf("Decode err = %v, want ErrShape", err)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode(Data{Kind: "conv9d"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if _, err := Encode(NewSequential(false, NewTanh())); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("composites must not be persistable, err = %v", err)
	}
}

func TestKindsRegistered(t *testing.T) {
	want := map[string]bool{KindLinear: true, KindIdentity: true, KindTanh: true,
		KindSigmoid: true, KindReLU: true, KindLayerNorm: true}
	for _, k := range Kinds() {
		delete(want, k)
	}
	if len(want) != 0 {
		t.Fatalf("kinds not registered: %v", want)
	}
}

func TestWireRoundTrip(t *testing.T) {
	ln := NewLayerNorm(3, 1e-5)
	ln.Gamma.Set(1, 0, -2.5)
	for _, l := range []Marshaler{
		NewLinear(4, 3, rand.New(rand.NewSource(2))),
		ln,
		NewTanh(),
	} {
		t.Run(l.Kind(), func(t *testing.T) {
			d := l.MarshalLayer()
			got, err := ParseWire(AppendWire(nil, d))
			if err != nil {
				t.Fatalf("ParseWire: %v", err)
			}
			if got.Kind != d.Kind || got.In != d.In || got.Out != d.Out || got.Eps != d.Eps {
				t.Fatalf("header = %+v, want %+v", got, d)
			}
			if len(got.Params) != len(d.Params) {
				t.Fatalf("got %d params, want %d", len(got.Params), len(d.Params))
			}
			for i := range d.Params {
				a, b := got.Params[i], d.Params[i]
				if a.R != b.R || a.C != b.C || len(a.Data) != len(b.Data) {
					t.Fatalf("param %d shape differs", i)
				}
				for k := range b.Data {
					if a.Data[k] != b.Data[k] {
						t.Fatalf("param %d value %d = %v, want %v", i, k, a.Data[k], b.Data[k])
					}
				}
			}
		})
	}
}

func TestParseWireTruncated(t *testing.T) {
	b := AppendWire(nil, NewLinear(2, 2, rand.New(rand.NewSource(2))).MarshalLayer())
	if _, err := ParseWire(b[:len(b)-3]); !errors.Is(err, ErrWire) {
		t.Fatalf("err = %v, want ErrWire", err)
	}
}
