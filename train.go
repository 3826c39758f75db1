package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/manningwu07/recurrent/IO"
	"github.com/manningwu07/recurrent/layer"
	"github.com/manningwu07/recurrent/optimizations"
	"github.com/manningwu07/recurrent/params"
	"github.com/manningwu07/recurrent/recurrent"
	"github.com/manningwu07/recurrent/rnn"
	"github.com/manningwu07/recurrent/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// buildModel creates a fresh tanh cell and linear readout from params.Config,
// or resumes from -load.
func buildModel(rng *rand.Rand) (*recurrent.Cell, layer.Layer, error) {
	cfg := params.Config
	if loadFlag != "" {
		if !fileExists(loadFlag) {
			return nil, nil, fmt.Errorf("checkpoint %s not found", loadFlag)
		}
		f, err := resolveFormat(formatFlag, loadFlag)
		if err != nil {
			return nil, nil, err
		}
		cell, head, err := loadModel(loadFlag, f)
		if err != nil {
			return nil, nil, err
		}
		utils.Log.WithFields(logrus.Fields{"path": loadFlag, "rho": cell.Rho()}).Info("resumed checkpoint")
		return cell, head, nil
	}
	h := cfg.HiddenSize
	cell, err := recurrent.New(
		layer.NewLinear(h, h, rng),
		layer.NewLinear(cfg.InputSize, h, rng),
		layer.NewLinear(h, h, rng),
		layer.NewTanh(),
		cfg.Rho,
	)
	if err != nil {
		return nil, nil, err
	}
	return cell, layer.NewLinear(h, cfg.OutputSize, rng), nil
}

func train(data []rnn.Sequence, loss rnn.Loss, format recurrent.Format, rng *rand.Rand) (*rnn.Network, rnn.Result, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, rnn.Result{}, err
	}
	cell, head, err := buildModel(rng)
	if err != nil {
		return nil, rnn.Result{}, err
	}
	net, err := rnn.NewNetwork(loss, cell, head)
	if err != nil {
		return nil, rnn.Result{}, err
	}

	utils.Log.WithFields(logrus.Fields{
		"sequences": len(data),
		"rho":       net.Rho(),
		"weights":   cell.WeightSize() + head.WeightSize(),
	}).Info("training")

	tr := rnn.NewTrainer(net, optimizations.NewAdam(params.Config.LearningRate))
	tr.Checkpoint = func(epoch int, best bool) error {
		path := params.Config.ModelPath
		if !best {
			path = epochPath(path, epoch)
		}
		utils.Debugf("checkpoint epoch=%d best=%v path=%s", epoch, best, path)
		return saveModel(cell, head, path, format)
	}

	start := time.Now()
	res, err := tr.Train(data)
	if err != nil {
		return nil, res, err
	}
	utils.Log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("done")
	return net, res, nil
}

func runSine(format recurrent.Format) error {
	params.Config.InputSize, params.Config.OutputSize = 1, 1
	rng := rand.New(rand.NewSource(params.Config.Seed))
	data := IO.SineSequences(rng, 64, params.Config.Rho, params.Config.BatchSize, 0.2)

	net, res, err := train(data, rnn.MeanSquaredError{}, format, rng)
	if err != nil {
		return err
	}
	fmt.Println("loss per epoch:")
	asciiPlot(res.History)

	eval := IO.SineSequences(rng, 1, params.Config.Rho, 1, 0.2)[0]
	preds := net.Predict(eval.Inputs)
	fmt.Printf("eval MAE: %.4f\n", IO.MeanAbsError(preds, eval.Targets))
	fmt.Println("prediction:")
	asciiPlot(column(preds))
	fmt.Println("target:")
	asciiPlot(column(eval.Targets))
	return nil
}

func runText(format recurrent.Format) error {
	tok, err := IO.LoadTokenizer(tokenizerFlag)
	if err != nil {
		return err
	}
	lines, err := IO.ReadLines(corpusFlag)
	if err != nil {
		return err
	}
	ids, err := tok.EncodeLines(lines)
	if err != nil {
		return err
	}
	vocab := tok.VocabSize()
	params.Config.InputSize, params.Config.OutputSize = vocab, vocab
	data := IO.TokenSequences(ids, params.Config.Rho, vocab)
	if len(data) == 0 {
		return fmt.Errorf("corpus %s has fewer than %d tokens", corpusFlag, params.Config.Rho+1)
	}

	rng := rand.New(rand.NewSource(params.Config.Seed))
	net, res, err := train(data, rnn.CrossEntropy{}, format, rng)
	if err != nil {
		return err
	}
	asciiPlot(res.History)

	// greedy next-token guesses over the first window
	preds := net.Predict(data[0].Inputs)
	guess := make([]int, len(preds))
	for t, p := range preds {
		guess[t] = argmax(p)
	}
	fmt.Println("input:    ", tok.Tokens(ids[:params.Config.Rho]))
	fmt.Println("predicted:", tok.Tokens(guess))
	return nil
}

func column(ms []*mat.Dense) []float64 {
	out := make([]float64, len(ms))
	for i, m := range ms {
		out[i] = m.At(0, 0)
	}
	return out
}

func argmax(m *mat.Dense) int {
	best := 0
	r, _ := m.Dims()
	for i := 1; i < r; i++ {
		if m.At(i, 0) > m.At(best, 0) {
			best = i
		}
	}
	return best
}
