package optimizations

import (
	"fmt"
	"math"

	"github.com/manningwu07/recurrent/params"
	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/mat"
)

// Optimizer applies one update of grads to params. The slices are aligned.
type Optimizer interface {
	Step(ps, gs []*mat.Dense)
}

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			denom := math.Sqrt(vhat) + eps
			wdTerm := weightDecay * p.At(i, j)
			update := mhat/denom + wdTerm
			pij := p.At(i, j) - lr*update
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, pij)
		}
	}
}

// Adam keeps first and second moments per parameter matrix.
type Adam struct {
	LR, Beta1, Beta2, Eps, WeightDecay float64

	T    int
	m, v map[*mat.Dense]*mat.Dense
}

// NewAdam uses the betas, eps and weight decay from params.Config.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:          lr,
		Beta1:       params.Config.AdamBeta1,
		Beta2:       params.Config.AdamBeta2,
		Eps:         params.Config.AdamEps,
		WeightDecay: params.Config.WeightDecay,
		m:           map[*mat.Dense]*mat.Dense{},
		v:           map[*mat.Dense]*mat.Dense{},
	}
}

func (a *Adam) Step(ps, gs []*mat.Dense) {
	if len(ps) != len(gs) {
		panic(fmt.Sprintf("adam: %d params but %d grads", len(ps), len(gs)))
	}
	a.T++
	for i, p := range ps {
		m, ok := a.m[p]
		if !ok {
			m, a.v[p] = utils.ZerosLike(p), utils.ZerosLike(p)
			a.m[p] = m
		}
		AdamUpdateInPlace(p, gs[i], m, a.v[p], a.T, a.LR, a.Beta1, a.Beta2, a.Eps, a.WeightDecay)
	}
}
