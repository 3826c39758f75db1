package rnn

import (
	"errors"
	"math/rand"
	"time"

	"github.com/manningwu07/recurrent/optimizations"
	"github.com/manningwu07/recurrent/params"
	"github.com/manningwu07/recurrent/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Sequence is one training example of exactly rho steps.
type Sequence struct {
	Inputs, Targets []*mat.Dense
}

// Trainer fits a Network over a set of sequences.
type Trainer struct {
	Net *Network
	Opt optimizations.Optimizer

	MaxEpochs int
	Patience  int     // epochs without improvement before stopping
	Epsilon   float64 // stop once the mean step loss drops below this
	GradClip  float64
	SaveEvery int

	// Checkpoint is called every SaveEvery epochs and whenever the loss
	// improves; nil disables checkpointing.
	Checkpoint func(epoch int, best bool) error

	Rng *rand.Rand
	Log *logrus.Logger
}

// NewTrainer fills the stopping rules from params.Config.
func NewTrainer(net *Network, opt optimizations.Optimizer) *Trainer {
	return &Trainer{
		Net:       net,
		Opt:       opt,
		MaxEpochs: params.Config.MaxEpochs,
		Patience:  params.Config.Patience,
		Epsilon:   params.Config.Epsilon,
		GradClip:  params.Config.GradClip,
		SaveEvery: params.Config.SaveEveryEpochs,
		Rng:       rand.New(rand.NewSource(params.Config.Seed)),
		Log:       utils.Log,
	}
}

type Result struct {
	Epochs   int
	Loss     float64 // mean step loss of the last epoch
	BestLoss float64
	Reason   string
	History  []float64 // mean step loss per epoch
	GradNorm float64   // mean pre-clip global gradient norm of the last epoch
}

// Train runs epochs over data in shuffled order, one optimizer step per
// sequence.
func (tr *Trainer) Train(data []Sequence) (Result, error) {
	if len(data) == 0 {
		return Result{}, errors.New("rnn: no training sequences")
	}
	res := Result{BestLoss: -1, Reason: "max epochs"}
	order := make([]int, len(data))
	for i := range order {
		order[i] = i
	}
	noImprovement, step := 0, 0
	steps := float64(len(data) * tr.Net.Rho())

	for e := 0; e < tr.MaxEpochs; e++ {
		start := time.Now()
		tr.Rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		total, gradNorm := 0.0, 0.0
		for _, k := range order {
			loss, grads, err := tr.Net.ForwardBackward(data[k].Inputs, data[k].Targets)
			if err != nil {
				return res, err
			}
			total += loss
			step++
			if step%max(params.Config.DebugEvery, 1) == 0 {
				utils.Debugf("rnn: step %d sequence loss %.6g", step, loss)
			}
			// logged before clipping, against the same norm ClipGrads uses
			gradNorm += utils.GlobalNorm(grads...)
			if tr.GradClip > 0 {
				utils.ClipGrads(tr.GradClip, grads...)
			}
			tr.Opt.Step(tr.Net.Parameters(), grads)
		}

		res.Epochs = e + 1
		res.Loss = total / steps
		res.History = append(res.History, res.Loss)
		res.GradNorm = gradNorm / float64(len(data))
		tr.Log.WithFields(logrus.Fields{
			"epoch":     e + 1,
			"loss":      res.Loss,
			"grad_norm": res.GradNorm,
			"elapsed":   time.Since(start).Round(time.Millisecond),
		}).Info("epoch done")

		improved := res.BestLoss < 0 || res.Loss < res.BestLoss-tr.Epsilon
		if improved {
			res.BestLoss = res.Loss
			noImprovement = 0
		} else {
			noImprovement++
		}

		if tr.Checkpoint != nil {
			periodic := tr.SaveEvery > 0 && (e+1)%tr.SaveEvery == 0
			if improved || periodic {
				if err := tr.Checkpoint(e+1, improved); err != nil {
					return res, err
				}
			}
		}

		if tr.Patience > 0 && noImprovement >= tr.Patience {
			res.Reason = "no improvement"
			break
		}
		if res.Loss < tr.Epsilon {
			res.Reason = "loss below epsilon"
			break
		}
	}
	tr.Log.WithFields(logrus.Fields{
		"epochs": res.Epochs,
		"loss":   res.Loss,
		"best":   res.BestLoss,
	}).Infof("training stopped: %s", res.Reason)
	return res, nil
}
