package IO

import (
	"fmt"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer wraps a pretrained tokenizer.json for the text task.
type Tokenizer struct {
	tk    *tk.Tokenizer
	vocab map[int]string
}

// LoadTokenizer reads a HuggingFace-style tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("IO: load tokenizer %s: %w", path, err)
	}
	vocab := t.GetVocab(true)
	id2tok := make(map[int]string, len(vocab))
	for tok, id := range vocab {
		id2tok[id] = tok
	}
	return &Tokenizer{tk: t, vocab: id2tok}, nil
}

// VocabSize counts added tokens too; it is the one-hot width.
func (t *Tokenizer) VocabSize() int {
	n := 0
	for id := range t.vocab {
		n = max(n, id+1)
	}
	return n
}

// Encode returns the token ids of text without special tokens.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	enc, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(enc.Ids))
	copy(out, enc.Ids)
	return out, nil
}

// EncodeLines concatenates the encodings of lines.
func (t *Tokenizer) EncodeLines(lines []string) ([]int, error) {
	var ids []int
	for i, l := range lines {
		e, err := t.Encode(l)
		if err != nil {
			return nil, fmt.Errorf("IO: encode line %d: %w", i+1, err)
		}
		ids = append(ids, e...)
	}
	return ids, nil
}

// Token maps an id back to its vocabulary entry, or "<unk>".
func (t *Tokenizer) Token(id int) string {
	if s, ok := t.vocab[id]; ok {
		return s
	}
	return "<unk>"
}

func (t *Tokenizer) Tokens(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = t.Token(id)
	}
	return strings.Join(parts, " ")
}
