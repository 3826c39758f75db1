package main

import (
	"flag"
	"os"

	"github.com/manningwu07/recurrent/params"
	"github.com/manningwu07/recurrent/utils"
	"github.com/sirupsen/logrus"
)

var (
	taskFlag      string
	rhoFlag       int
	hiddenFlag    int
	epochsFlag    int
	lrFlag        float64
	saveFlag      string
	loadFlag      string
	corpusFlag    string
	tokenizerFlag string
	formatFlag    string
	debugFlag     bool
)

func init() {
	flag.StringVar(&taskFlag, "task", "sine", "Training task: sine or text")
	flag.IntVar(&rhoFlag, "rho", params.Config.Rho, "Truncated BPTT unroll length")
	flag.IntVar(&hiddenFlag, "hidden", params.Config.HiddenSize, "Hidden state width")
	flag.IntVar(&epochsFlag, "epochs", params.Config.MaxEpochs, "Maximum number of epochs")
	flag.Float64Var(&lrFlag, "lr", params.Config.LearningRate, "Adam learning rate")
	flag.StringVar(&saveFlag, "save", params.Config.ModelPath, "Checkpoint path (.pb selects protobuf)")
	flag.StringVar(&loadFlag, "load", "", "Resume from this checkpoint")
	flag.StringVar(&corpusFlag, "corpus", "data/corpus.txt", "Text corpus for -task text")
	flag.StringVar(&tokenizerFlag, "tokenizer", "data/tokenizer.json", "tokenizer.json for -task text")
	flag.StringVar(&formatFlag, "format", "", "Checkpoint format: gob or proto (default from -save extension)")
	flag.BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

func main() {
	flag.Parse()
	utils.SetDebug(debugFlag)

	params.Config.Rho = rhoFlag
	params.Config.HiddenSize = hiddenFlag
	params.Config.MaxEpochs = epochsFlag
	params.Config.LearningRate = lrFlag
	params.Config.ModelPath = saveFlag

	format, err := resolveFormat(formatFlag, saveFlag)
	if err != nil {
		utils.Log.Fatal(err)
	}

	switch taskFlag {
	case "sine":
		err = runSine(format)
	case "text":
		err = runText(format)
	default:
		utils.Log.Fatalf("unknown -task %q (want sine or text)", taskFlag)
	}
	if err != nil {
		utils.Log.WithFields(logrus.Fields{"task": taskFlag}).Error(err)
		os.Exit(1)
	}
}
