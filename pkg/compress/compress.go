// Package compress provides the codecs used for large DATA payloads.
package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Algorithm identifies a codec on disk. The values are stored in object
// flags, so they must never be renumbered.
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
	Zstd   Algorithm = 2
)

var (
	ErrUnknownCodec = errors.New("unknown compression codec")
	ErrTooLarge     = errors.New("decompressed payload exceeds limit")
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(a))
	}
}

// ParseAlgorithm maps a config name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Codec compresses and decompresses whole payloads. dst is reused when it
// has enough capacity.
type Codec interface {
	Algorithm() Algorithm
	Compress(dst, src []byte) []byte
	// Decompress fails with ErrTooLarge when the result would exceed limit.
	Decompress(dst, src []byte, limit int) ([]byte, error)
}

// For returns the codec for an algorithm. None has no codec.
func For(a Algorithm) (Codec, error) {
	switch a {
	case Snappy:
		return snappyCodec{}, nil
	case Zstd:
		return zstdShared()
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, a)
	}
}

type snappyCodec struct{}

func (snappyCodec) Algorithm() Algorithm { return Snappy }

func (snappyCodec) Compress(dst, src []byte) []byte {
	return snappy.Encode(dst[:cap(dst)], src)
}

func (snappyCodec) Decompress(dst, src []byte, limit int) ([]byte, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, limit)
	}
	return snappy.Decode(dst[:cap(dst)], src)
}

// zstdCodec shares one encoder and one decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	zstdOnce sync.Once
	zstdInst *zstdCodec
	zstdErr  error
)

func zstdShared() (Codec, error) {
	zstdOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			zstdErr = err
			return
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			zstdErr = err
			return
		}
		zstdInst = &zstdCodec{enc: enc, dec: dec}
	})
	if zstdErr != nil {
		return nil, zstdErr
	}
	return zstdInst, nil
}

func (*zstdCodec) Algorithm() Algorithm { return Zstd }

func (c *zstdCodec) Compress(dst, src []byte) []byte {
	return c.enc.EncodeAll(src, dst[:0])
}

func (c *zstdCodec) Decompress(dst, src []byte, limit int) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(out), limit)
	}
	return out, nil
}
