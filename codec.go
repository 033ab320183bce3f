package bucketcache

import (
	"encoding/json"

	"github.com/klauspost/compress/zstd"
)

// Codec encodes and decodes the opaque payload a key maps to. Within the
// engine a Decode failure is treated as a plain miss, but the interface
// reports the error so codecs can be tested in isolation.
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte, out any) error
}

// jsonCodec is the default codec: plain JSON, a compact textual
// representation whose decoder fails loudly on anything malformed.
type jsonCodec struct{}

func (jsonCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

// NewZstdCodec wraps JSON encoding with zstd compression, for catalogs with
// large payloads where disk footprint matters more than a few extra
// microseconds of CPU per Get/Set.
func NewZstdCodec() (Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (z *zstdCodec) Encode(value any) ([]byte, error) {
	js, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(js, make([]byte, 0, len(js))), nil
}

func (z *zstdCodec) Decode(data []byte, out any) error {
	js, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(js, out)
}
