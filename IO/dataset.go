package IO

import (
	"bufio"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/manningwu07/recurrent/rnn"
	"github.com/manningwu07/recurrent/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SineSequences builds next-value regression windows over sine waves with
// random phase. Every step is (1 x batch): input sin(phase + t*dt), target
// the value one step ahead.
func SineSequences(rng *rand.Rand, count, rho, batch int, dt float64) []rnn.Sequence {
	out := make([]rnn.Sequence, count)
	phase := make([]float64, batch)
	for s := range out {
		for j := range phase {
			phase[j] = rng.Float64() * 2 * math.Pi
		}
		seq := rnn.Sequence{
			Inputs:  make([]*mat.Dense, rho),
			Targets: make([]*mat.Dense, rho),
		}
		for t := 0; t < rho; t++ {
			x := make([]float64, batch)
			y := make([]float64, batch)
			for j, p := range phase {
				x[j] = math.Sin(p + float64(t)*dt)
				y[j] = math.Sin(p + float64(t+1)*dt)
			}
			seq.Inputs[t] = mat.NewDense(1, batch, x)
			seq.Targets[t] = mat.NewDense(1, batch, y)
		}
		out[s] = seq
	}
	return out
}

// TokenSequences cuts ids into consecutive windows of rho steps. Inputs are
// one-hot columns of ids[i:i+rho]; targets are the tokens one position
// later. A trailing partial window is dropped.
func TokenSequences(ids []int, rho, vocab int) []rnn.Sequence {
	var out []rnn.Sequence
	for start := 0; start+rho < len(ids); start += rho {
		seq := rnn.Sequence{
			Inputs:  make([]*mat.Dense, rho),
			Targets: make([]*mat.Dense, rho),
		}
		for t := 0; t < rho; t++ {
			seq.Inputs[t] = utils.OneHot(vocab, ids[start+t])
			seq.Targets[t] = utils.OneHot(vocab, ids[start+t+1])
		}
		out = append(out, seq)
	}
	return out
}

// MeanAbsError compares predictions with targets step by step.
func MeanAbsError(preds, targets []*mat.Dense) float64 {
	sum, n := 0.0, 0
	for t, p := range preds {
		d := mat.DenseCopyOf(p)
		d.Sub(d, targets[t])
		raw := d.RawMatrix().Data
		sum += floats.Norm(raw, 1)
		n += len(raw)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ReadLines returns the non-empty trimmed lines of a text corpus.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
