package row

import (
	"encoding/binary"
	"math"
)

// Encode appends the self-contained encoding of r to dst. The layout is a
// uvarint column count followed by one header byte per value (kind in the low
// nibble, codec in the high nibble) and its payload: 8 little-endian bytes for
// ints and floats, a uvarint length and the stored bytes for text and blob.
// External values are inlined; compressed payloads are kept as is.
func Encode(dst []byte, r Row) ([]byte, error) {
	dst = binary.AppendUvarint(dst, uint64(len(r)))
	for i, v := range r {
		if v.kind > KindBlob {
			return nil, Error.New("column %d: invalid kind %v", i, v.kind)
		}
		dst = append(dst, byte(v.kind)|byte(v.codec)<<4)
		switch v.kind {
		case KindInt:
			dst = binary.LittleEndian.AppendUint64(dst, uint64(v.i))
		case KindFloat:
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.f))
		case KindText, KindBlob:
			payload, err := v.Payload()
			if err != nil {
				return nil, err
			}
			dst = binary.AppendUvarint(dst, uint64(len(payload)))
			dst = append(dst, payload...)
		}
	}
	return dst, nil
}

// Decode parses an encoding produced by Encode. Text and blob payloads alias
// b, so b must not be modified while the row is in use.
func Decode(b []byte) (Row, error) {
	n, sz := binary.Uvarint(b)
	if sz <= 0 {
		return nil, Error.New("invalid column count")
	}
	if n > uint64(len(b)) {
		return nil, Error.New("column count %d exceeds encoding length %d", n, len(b))
	}
	b = b[sz:]
	r := make(Row, n)
	for i := range r {
		if len(b) == 0 {
			return nil, Error.New("column %d: truncated header", i)
		}
		kind, c := Kind(b[0]&0x0f), Codec(b[0]>>4)
		b = b[1:]
		if c != CodecNone {
			if _, ok := codecs[c]; !ok || !kind.hasPayload() {
				return nil, Error.New("column %d: invalid codec %d for %v", i, uint8(c), kind)
			}
		}
		switch kind {
		case KindNull:
		case KindInt, KindFloat:
			if len(b) < 8 {
				return nil, Error.New("column %d: truncated %v", i, kind)
			}
			bits := binary.LittleEndian.Uint64(b)
			b = b[8:]
			if kind == KindInt {
				r[i] = Int(int64(bits))
			} else {
				r[i] = Float(math.Float64frombits(bits))
			}
		case KindText, KindBlob:
			l, sz := binary.Uvarint(b)
			if sz <= 0 || uint64(len(b)-sz) < l {
				return nil, Error.New("column %d: truncated %v payload", i, kind)
			}
			b = b[sz:]
			r[i] = Value{kind: kind, codec: c, data: b[:l:l]}
			b = b[l:]
		default:
			return nil, Error.New("column %d: invalid kind %v", i, kind)
		}
	}
	if len(b) != 0 {
		return nil, Error.New("%d trailing bytes", len(b))
	}
	return r, nil
}
