package row

import (
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies the compression applied to a text or blob payload.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecZstd
)

type codec interface {
	compress(raw []byte) ([]byte, error)
	decompress(data []byte) ([]byte, error)
}

var codecs = map[Codec]codec{
	CodecSnappy: snappyCodec{},
	CodecZstd:   zstdCodec{},
}

var codecNames = map[string]Codec{
	"NONE":   CodecNone,
	"SNAPPY": CodecSnappy,
	"ZSTD":   CodecZstd,
}

func (c Codec) String() string {
	for name, v := range codecNames {
		if v == c {
			return strings.ToLower(name)
		}
	}
	return "unknown"
}

// ParseCodec resolves a codec by case-insensitive name.
func ParseCodec(name string) (Codec, error) {
	c, ok := codecNames[strings.ToUpper(name)]
	if !ok {
		return CodecNone, Error.New("only 'none', 'snappy' or 'zstd' codecs are supported, got %q", name)
	}
	return c, nil
}

// Compress returns v with its payload compressed by c. Values that are not
// text or blob, or that are already compressed, are returned unchanged.
func Compress(v Value, c Codec) (Value, error) {
	if !v.kind.hasPayload() || v.codec != CodecNone || c == CodecNone {
		return v, nil
	}
	raw, err := v.Payload()
	if err != nil {
		return Value{}, err
	}
	impl, ok := codecs[c]
	if !ok {
		return Value{}, Error.New("unknown codec %d", uint8(c))
	}
	data, err := impl.compress(raw)
	if err != nil {
		return Value{}, Error.Wrap(err)
	}
	return Value{kind: v.kind, codec: c, data: data}, nil
}

func decompress(c Codec, data []byte) ([]byte, error) {
	impl, ok := codecs[c]
	if !ok {
		return nil, Error.New("unknown codec %d", uint8(c))
	}
	raw, err := impl.decompress(data)
	if err != nil {
		return nil, Error.New("failed to decompress %v payload: %v", c, err)
	}
	return raw, nil
}

type snappyCodec struct{}
type zstdCodec struct{}

func (snappyCodec) compress(raw []byte) ([]byte, error) {
	return snappy.Encode(nil, raw), nil
}

func (snappyCodec) decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func (zstdCodec) compress(raw []byte) ([]byte, error) {
	enc, _, err := zstdCoders()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

func (zstdCodec) decompress(data []byte) ([]byte, error) {
	_, dec, err := zstdCoders()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(data, nil)
}
