package recurrent

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manningwu07/recurrent/layer"
)

// Format selects the checkpoint encoding.
type Format int

const (
	FormatGob Format = iota
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatGob:
		return "gob"
	case FormatProto:
		return "proto"
	default:
		return "unknown"
	}
}

// ParseFormat maps a -format flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "gob", "":
		return FormatGob, nil
	case "proto", "pb", "protobuf":
		return FormatProto, nil
	}
	return 0, fmt.Errorf("recurrent: unknown checkpoint format %q", s)
}

// FormatFor picks the format from a file extension: .pb for protobuf,
// anything else for gob.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".pb") {
		return FormatProto
	}
	return FormatGob
}

// cellData is the persisted field list. The composites and the step state
// are not part of it.
type cellData struct {
	Start, Input, Feedback, Transfer layer.Data

	Rho         int
	OwnsHandles bool
}

func (c *Cell) data() (cellData, error) {
	d := cellData{Rho: c.rho, OwnsHandles: c.owns}
	for _, f := range []struct {
		name string
		l    layer.Layer
		dst  *layer.Data
	}{
		{"start", c.start, &d.Start},
		{"input", c.input, &d.Input},
		{"feedback", c.feedback, &d.Feedback},
		{"transfer", c.transfer, &d.Transfer},
	} {
		ld, err := layer.Encode(f.l)
		if err != nil {
			return d, fmt.Errorf("recurrent: encode %s: %w", f.name, err)
		}
		*f.dst = ld
	}
	return d, nil
}

// fromData rebuilds a cell, wiring the composites the same way New does.
func fromData(d cellData) (*Cell, error) {
	var hs [4]layer.Layer
	for i, f := range []struct {
		name string
		d    layer.Data
	}{
		{"start", d.Start},
		{"input", d.Input},
		{"feedback", d.Feedback},
		{"transfer", d.Transfer},
	} {
		l, err := layer.Decode(f.d)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDeserialize, f.name, err)
		}
		hs[i] = l
	}
	c, err := build(hs[0], hs[1], hs[2], hs[3], d.Rho, d.OwnsHandles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeserialize, err)
	}
	return c, nil
}

// Save writes the cell to w with gob.
func (c *Cell) Save(w io.Writer) error {
	d, err := c.data()
	if err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(d)
}

// Load reads a cell written by Save.
func Load(r io.Reader) (*Cell, error) {
	var d cellData
	if err := gob.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeserialize, err)
	}
	return fromData(d)
}

// SaveFile persists the cell to path, creating its directory.
func (c *Cell) SaveFile(path string, f Format) error {
	var buf bytes.Buffer
	switch f {
	case FormatGob:
		if err := c.Save(&buf); err != nil {
			return err
		}
	case FormatProto:
		b, err := c.MarshalBinary()
		if err != nil {
			return err
		}
		buf.Write(b)
	default:
		return fmt.Errorf("recurrent: unknown checkpoint format %d", int(f))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadFile reads a cell saved by SaveFile in format f. Callers without an
// explicit format pass FormatFor(path).
func LoadFile(path string, f Format) (*Cell, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatGob:
		return Load(bytes.NewReader(raw))
	case FormatProto:
		return UnmarshalCell(raw)
	}
	return nil, fmt.Errorf("recurrent: unknown checkpoint format %d", int(f))
}
