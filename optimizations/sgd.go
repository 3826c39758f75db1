package optimizations

import "gonum.org/v1/gonum/mat"

// SGD is plain gradient descent: p -= lr * g.
type SGD struct {
	LR float64
}

func (s SGD) Step(ps, gs []*mat.Dense) {
	for i, p := range ps {
		p.Add(p, scaled(-s.LR, gs[i]))
	}
}

func scaled(f float64, m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}
