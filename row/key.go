package row

import (
	"encoding/binary"
	"math"
)

const (
	keyNull byte = iota + 1
	keyInt
	keyFloat
	keyText
	keyBlob
)

// AppendKey appends an order-preserving encoding of v to dst: comparing two
// encodings byte-wise orders them like the values. Compressed and external
// payloads are materialized.
func AppendKey(dst []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(dst, keyNull), nil
	case KindInt:
		dst = append(dst, keyInt)
		return binary.BigEndian.AppendUint64(dst, uint64(v.i)^(1<<63)), nil
	case KindFloat:
		bits := math.Float64bits(v.f)
		if bits>>63 == 1 {
			bits = ^bits
		} else {
			bits ^= 1 << 63
		}
		dst = append(dst, keyFloat)
		return binary.BigEndian.AppendUint64(dst, bits), nil
	case KindText, KindBlob:
		b, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		if v.kind == KindText {
			dst = append(dst, keyText)
		} else {
			dst = append(dst, keyBlob)
		}
		for _, c := range b {
			if c == 0x00 {
				dst = append(dst, 0x00, 0xff)
				continue
			}
			dst = append(dst, c)
		}
		return append(dst, 0x00, 0x01), nil
	}
	return nil, Error.New("invalid kind %v", v.kind)
}

// Key encodes the values of r at the given column ordinals.
func Key(r Row, cols []int) ([]byte, error) {
	var key []byte
	for _, c := range cols {
		if c < 0 || c >= len(r) {
			return nil, Error.New("key column %d out of range for %d columns", c, len(r))
		}
		var err error
		if key, err = AppendKey(key, r[c]); err != nil {
			return nil, err
		}
	}
	return key, nil
}
