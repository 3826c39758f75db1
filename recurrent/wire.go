package recurrent

import (
	"fmt"

	"github.com/manningwu07/recurrent/layer"
	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf wire layout of a cell (layer.AppendWire encodes the handles):
//
//	message Cell {
//	  Layer  start        = 1;
//	  Layer  input        = 2;
//	  Layer  feedback     = 3;
//	  Layer  transfer     = 4;
//	  uint64 rho          = 5;
//	  bool   owns_handles = 6;
//	}
const (
	fieldStart    protowire.Number = 1
	fieldInput    protowire.Number = 2
	fieldFeedback protowire.Number = 3
	fieldTransfer protowire.Number = 4
	fieldRho      protowire.Number = 5
	fieldOwns     protowire.Number = 6
)

// MarshalBinary encodes the cell's persisted fields as a protobuf message.
func (c *Cell) MarshalBinary() ([]byte, error) {
	d, err := c.data()
	if err != nil {
		return nil, err
	}
	var b []byte
	for _, f := range []struct {
		num protowire.Number
		d   layer.Data
	}{
		{fieldStart, d.Start},
		{fieldInput, d.Input},
		{fieldFeedback, d.Feedback},
		{fieldTransfer, d.Transfer},
	} {
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendBytes(b, layer.AppendWire(nil, f.d))
	}
	b = protowire.AppendTag(b, fieldRho, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Rho))
	b = protowire.AppendTag(b, fieldOwns, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(d.OwnsHandles))
	return b, nil
}

// UnmarshalCell decodes a cell written by MarshalBinary.
func UnmarshalCell(b []byte) (*Cell, error) {
	var (
		d    cellData
		seen = map[protowire.Number]bool{}
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireErr(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num >= fieldStart && num <= fieldTransfer && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, wireErr(protowire.ParseError(n))
			}
			ld, err := layer.ParseWire(v)
			if err != nil {
				return nil, wireErr(err)
			}
			switch num {
			case fieldStart:
				d.Start = ld
			case fieldInput:
				d.Input = ld
			case fieldFeedback:
				d.Feedback = ld
			case fieldTransfer:
				d.Transfer = ld
			}
			b = b[n:]
		case num == fieldRho && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, wireErr(protowire.ParseError(n))
			}
			d.Rho, b = int(v), b[n:]
		case num == fieldOwns && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, wireErr(protowire.ParseError(n))
			}
			d.OwnsHandles, b = protowire.DecodeBool(v), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, wireErr(protowire.ParseError(n))
			}
			b = b[n:]
		}
		seen[num] = true
	}
	for _, num := range []protowire.Number{fieldStart, fieldInput, fieldFeedback, fieldTransfer, fieldRho} {
		if !seen[num] {
			return nil, fmt.Errorf("%w: field %d missing", ErrDeserialize, num)
		}
	}
	return fromData(d)
}

func wireErr(err error) error {
	return fmt.Errorf("%w: %w", ErrDeserialize, err)
}
