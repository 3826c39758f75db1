package layer

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf wire layout of Data:
//
//	message Matrix { uint64 rows = 1; uint64 cols = 2; repeated double data = 3 [packed]; }
//	message Layer  { string kind = 1; uint64 in = 2; uint64 out = 3; double eps = 4; repeated Matrix params = 5; }
const (
	fieldKind   protowire.Number = 1
	fieldIn     protowire.Number = 2
	fieldOut    protowire.Number = 3
	fieldEps    protowire.Number = 4
	fieldParams protowire.Number = 5

	fieldRows protowire.Number = 1
	fieldCols protowire.Number = 2
	fieldData protowire.Number = 3
)

// AppendWire appends the protobuf encoding of d to b.
func AppendWire(b []byte, d Data) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.BytesType)
	b = protowire.AppendString(b, d.Kind)
	b = protowire.AppendTag(b, fieldIn, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.In))
	b = protowire.AppendTag(b, fieldOut, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Out))
	if d.Eps != 0 {
		b = protowire.AppendTag(b, fieldEps, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(d.Eps))
	}
	for _, m := range d.Params {
		b = protowire.AppendTag(b, fieldParams, protowire.BytesType)
		b = protowire.AppendBytes(b, appendMatrix(nil, m))
	}
	return b
}

func appendMatrix(b []byte, m Matrix) []byte {
	b = protowire.AppendTag(b, fieldRows, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.R))
	b = protowire.AppendTag(b, fieldCols, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.C))
	packed := make([]byte, 0, 8*len(m.Data))
	for _, v := range m.Data {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// ParseWire decodes a Data written by AppendWire. Unknown fields are skipped.
func ParseWire(b []byte) (Data, error) {
	var d Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, wireErr(n)
		}
		b = b[n:]
		switch {
		case num == fieldKind && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, wireErr(n)
			}
			d.Kind, b = v, b[n:]
		case num == fieldIn && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, wireErr(n)
			}
			d.In, b = int(v), b[n:]
		case num == fieldOut && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, wireErr(n)
			}
			d.Out, b = int(v), b[n:]
		case num == fieldEps && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return d, wireErr(n)
			}
			d.Eps, b = math.Float64frombits(v), b[n:]
		case num == fieldParams && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, wireErr(n)
			}
			m, err := parseMatrix(v)
			if err != nil {
				return d, err
			}
			d.Params, b = append(d.Params, m), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, wireErr(n)
			}
			b = b[n:]
		}
	}
	return d, nil
}

func parseMatrix(b []byte) (Matrix, error) {
	var m Matrix
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, wireErr(n)
		}
		b = b[n:]
		switch {
		case num == fieldRows && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, wireErr(n)
			}
			m.R, b = int(v), b[n:]
		case num == fieldCols && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, wireErr(n)
			}
			m.C, b = int(v), b[n:]
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, wireErr(n)
			}
			if len(v)%8 != 0 {
				return m, fmt.Errorf("%w: packed doubles of %d bytes", ErrWire, len(v))
			}
			for len(v) > 0 {
				x, k := protowire.ConsumeFixed64(v)
				if k < 0 {
					return m, wireErr(k)
				}
				m.Data = append(m.Data, math.Float64frombits(x))
				v = v[k:]
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, wireErr(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

func wireErr(n int) error {
	return fmt.Errorf("%w: %v", ErrWire, protowire.ParseError(n))
}
