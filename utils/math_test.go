package utils

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAddBiasBroadcastsOverColumns(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b := mat.NewDense(2, 1, []float64{10, 20})
	got := AddBias(m, b)
	want := mat.NewDense(2, 3, []float64{11, 12, 13, 24, 25, 26})
	if !mat.Equal(got, want) {
		t.Fatalf("AddBias = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
}

func TestAddBiasPanicsOnBadShape(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	AddBias(mat.NewDense(2, 2, nil), mat.NewDense(3, 1, nil))
}

func TestRowSums(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, -1, -2, 0.5})
	got := RowSums(m)
	want := mat.NewDense(2, 1, []float64{6, -2.5})
	if !mat.EqualApprox(got, want, 1e-12) {
		t.Fatalf("RowSums = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
}

func TestColumnSoftmaxSumsToOne(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{1, 1000, 2, 1001, 3, 999})
	s := ColumnSoftmax(m)
	for j := 0; j < 2; j++ {
		sum := s.At(0, j) + s.At(1, j) + s.At(2, j)
		if math.Abs(sum-1) > 1e-12 {
			t.Fatalf("column %d sums to %v", j, sum)
		}
	}
	if s.At(2, 0) <= s.At(1, 0) {
		t.Fatalf("softmax not monotone in column 0")
	}
}

func TestActivationPrimesFromOutput(t *testing.T) {
	y := mat.NewDense(1, 3, []float64{-0.5, 0, 0.5})
	tp := TanhPrime(y)
	sp := SigmoidPrime(y)
	rp := ReluPrime(y)
	for j, v := range []float64{-0.5, 0, 0.5} {
		if got := tp.At(0, j); math.Abs(got-(1-v*v)) > 1e-12 {
			t.Fatalf("TanhPrime[%d] = %v", j, got)
		}
		if got := sp.At(0, j); math.Abs(got-v*(1-v)) > 1e-12 {
			t.Fatalf("SigmoidPrime[%d] = %v", j, got)
		}
	}
	if rp.At(0, 0) != 0 || rp.At(0, 1) != 0 || rp.At(0, 2) != 1 {
		t.Fatalf("ReluPrime = %v", mat.Formatted(rp))
	}
}

func TestCopyIntoReusesBuffer(t *testing.T) {
	dst := mat.NewDense(2, 1, nil)
	src := mat.NewDense(2, 1, []float64{3, 4})
	got := CopyInto(dst, src)
	if got != dst {
		t.Fatalf("expected the destination buffer to be reused")
	}
	src.Set(0, 0, 99)
	if got.At(0, 0) != 3 {
		t.Fatalf("CopyInto aliases its source")
	}
	if re := CopyInto(dst, mat.NewDense(3, 1, nil)); re == dst {
		t.Fatalf("expected a new buffer for a different shape")
	}
	if fresh := CopyInto(nil, src); fresh == src {
		t.Fatalf("CopyInto(nil, src) returned src itself")
	}
}

func TestClipGrads(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 0})
	b := mat.NewDense(1, 1, []float64{4})
	s := ClipGrads(1.0, a, b, nil)
	if math.Abs(s-0.2) > 1e-12 {
		t.Fatalf("scale = %v, want 0.2", s)
	}
	if math.Abs(a.At(0, 0)-0.6) > 1e-12 || math.Abs(b.At(0, 0)-0.8) > 1e-12 {
		t.Fatalf("grads not scaled: %v %v", a.At(0, 0), b.At(0, 0))
	}
	if s := ClipGrads(10, a); s != 1.0 {
		t.Fatalf("expected no clipping, got scale %v", s)
	}
}

func TestGlobalNormIsNotSumOfNorms(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 0})
	b := mat.NewDense(1, 1, []float64{4})
	if got := GlobalNorm(a, nil, b); math.Abs(got-5) > 1e-12 {
		t.Fatalf("GlobalNorm = %v, want 5", got)
	}
	if GlobalNorm() != 0 {
		t.Fatalf("empty GlobalNorm should be 0")
	}
}
