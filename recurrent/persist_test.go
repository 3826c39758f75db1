package recurrent

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/manningwu07/recurrent/layer"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protowire"
)

// sameOutputs runs both cells over one full unroll and compares every step.
func sameOutputs(t *testing.T, a, b *Cell, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	in, _, _ := layer.Size(a.Input())
	for i := 0; i < a.Rho(); i++ {
		x := randDense(rng, in, 2)
		ya, yb := a.Forward(x), b.Forward(x)
		if !mat.EqualApprox(ya, yb, 1e-12) {
			t.Fatalf("step %d: outputs differ after reload", i)
		}
	}
}

func TestGobRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	c := newTanhCell(t, rng, 3, 4, 3)
	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Rho() != 3 || !d.OwnsHandles() {
		t.Fatalf("rho/ownership not restored: %d %v", d.Rho(), d.OwnsHandles())
	}
	sameOutputs(t, c, d, 21)
}

func TestProtoRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	c, err := NewShared(layer.NewLayerNorm(4, 1e-5), layer.NewLinear(2, 4, rng), layer.NewLinear(4, 4, rng), layer.NewSigmoid(), 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	d, err := UnmarshalCell(b)
	if err != nil {
		t.Fatalf("UnmarshalCell: %v", err)
	}
	if d.OwnsHandles() {
		t.Fatalf("ownership flag not restored")
	}
	if f, _, _ := d.Steps(); f != 0 || d.HistoryLen() != 0 || d.RecurrentError() != nil {
		t.Fatalf("step state should start fresh")
	}
	sameOutputs(t, c, d, 23)
}

func TestFileRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	c := newTanhCell(t, rng, 2, 3, 2)
	dir := t.TempDir()
	for _, tt := range []struct {
		name string
		f    Format
	}{
		{"cell.gob", FormatGob},
		{"cell.pb", FormatProto},
	} {
		path := filepath.Join(dir, "nested", tt.name)
		if err := c.SaveFile(path, tt.f); err != nil {
			t.Fatalf("%s: SaveFile: %v", tt.name, err)
		}
		d, err := LoadFile(path, FormatFor(path))
		if err != nil {
			t.Fatalf("%s: LoadFile: %v", tt.name, err)
		}
		sameOutputs(t, c, d, 25)
	}
}

// The format passed to SaveFile wins over the extension on both sides.
func TestFileFormatOverridesExtension(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	c := newTanhCell(t, rng, 2, 3, 2)
	dir := t.TempDir()
	for _, tt := range []struct {
		name string
		f    Format
	}{
		{"proto.gob", FormatProto},
		{"gob.pb", FormatGob},
	} {
		path := filepath.Join(dir, tt.name)
		if err := c.SaveFile(path, tt.f); err != nil {
			t.Fatalf("%s: SaveFile: %v", tt.name, err)
		}
		d, err := LoadFile(path, tt.f)
		if err != nil {
			t.Fatalf("%s: LoadFile: %v", tt.name, err)
		}
		sameOutputs(t, c, d, 30)
		if _, err := LoadFile(path, FormatFor(path)); !errors.Is(err, ErrDeserialize) {
			t.Fatalf("%s: reading with the extension's format: err = %v, want ErrDeserialize", tt.name, err)
		}
	}
	if _, err := LoadFile(filepath.Join(dir, "proto.gob"), Format(9)); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"gob": FormatGob, "": FormatGob, "proto": FormatProto, "PB": FormatProto} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("json"); err == nil {
		t.Fatalf("expected error for json")
	}
	if FormatFor("m/x.pb") != FormatProto || FormatFor("m/x.gob") != FormatGob {
		t.Fatalf("FormatFor picked the wrong format")
	}
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(26))
	in, _ := layer.Encode(layer.NewLinear(2, 4, rng))
	fb, _ := layer.Encode(layer.NewLinear(3, 3, rng))
	d := cellData{
		Start:    layer.Data{Kind: layer.KindIdentity},
		Input:    in,
		Feedback: fb,
		Transfer: layer.Data{Kind: layer.KindTanh},
		Rho:      2,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		t.Fatal(err)
	}
	_, err := Load(&buf)
	if !errors.Is(err, ErrDeserialize) || !errors.Is(err, layer.ErrShape) {
		t.Fatalf("err = %v, want ErrDeserialize wrapping ErrShape", err)
	}
}

func TestLoadRejectsMismatchedHiddenWidth(t *testing.T) {
	rng := rand.New(rand.NewSource(28))
	fb, _ := layer.Encode(layer.NewLinear(3, 4, rng))
	ln, _ := layer.Encode(layer.NewLayerNorm(4, 1e-5))
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cellData{
		Start:    layer.Data{Kind: layer.KindIdentity},
		Input:    layer.Data{Kind: layer.KindIdentity},
		Feedback: fb,
		Transfer: ln,
		Rho:      2,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(&buf); !errors.Is(err, ErrDeserialize) || !errors.Is(err, layer.ErrShape) {
		t.Fatalf("err = %v, want ErrDeserialize wrapping ErrShape", err)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	missing := protowire.AppendTag(nil, fieldRho, protowire.VarintType)
	missing = protowire.AppendVarint(missing, 3)

	rng := rand.New(rand.NewSource(27))
	good, err := newTanhCell(t, rng, 2, 2, 2).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var negative bytes.Buffer
	if err := gob.NewEncoder(&negative).Encode(cellData{
		Start: layer.Data{Kind: layer.KindIdentity},
		Input: layer.Data{Kind: layer.KindLinear, In: -1, Out: -1, Params: []layer.Matrix{
			{R: -1, C: -1, Data: []float64{0}},
			{R: -1, C: 1, Data: []float64{0}},
		}},
		Feedback: layer.Data{Kind: layer.KindIdentity},
		Transfer: layer.Data{Kind: layer.KindTanh},
		Rho:      2,
	}); err != nil {
		t.Fatal(err)
	}

	// a linear input whose width and shape varints are 2^64-1, which int() turns into -1
	var lin []byte
	lin = protowire.AppendTag(lin, 1, protowire.BytesType)
	lin = protowire.AppendString(lin, layer.KindLinear)
	for _, f := range []protowire.Number{2, 3} {
		lin = protowire.AppendTag(lin, f, protowire.VarintType)
		lin = protowire.AppendVarint(lin, ^uint64(0))
	}
	var w []byte
	for _, f := range []protowire.Number{1, 2} {
		w = protowire.AppendTag(w, f, protowire.VarintType)
		w = protowire.AppendVarint(w, ^uint64(0))
	}
	for i := 0; i < 2; i++ {
		lin = protowire.AppendTag(lin, 5, protowire.BytesType)
		lin = protowire.AppendBytes(lin, w)
	}
	var huge []byte
	for _, f := range []protowire.Number{fieldStart, fieldInput, fieldFeedback, fieldTransfer} {
		huge = protowire.AppendTag(huge, f, protowire.BytesType)
		if f == fieldInput {
			huge = protowire.AppendBytes(huge, lin)
		} else {
			huge = protowire.AppendBytes(huge, layer.AppendWire(nil, layer.Data{Kind: layer.KindIdentity}))
		}
	}
	huge = protowire.AppendTag(huge, fieldRho, protowire.VarintType)
	huge = protowire.AppendVarint(huge, 2)

	tests := []struct {
		name string
		load func() error
	}{
		{"negative dims", func() error { _, err := Load(&negative); return err }},
		{"wrapped varint dims", func() error { _, err := UnmarshalCell(huge); return err }},
		{"gob garbage", func() error { _, err := Load(bytes.NewReader([]byte("not a checkpoint"))); return err }},
		{"wire garbage", func() error { _, err := UnmarshalCell([]byte{0xff}); return err }},
		{"missing fields", func() error { _, err := UnmarshalCell(missing); return err }},
		{"truncated", func() error { _, err := UnmarshalCell(good[:len(good)/2]); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.load(); !errors.Is(err, ErrDeserialize) {
				t.Fatalf("err = %v, want ErrDeserialize", err)
			}
		})
	}
}
