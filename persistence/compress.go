package persistence

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the payload compression algorithm.
type Compression uint8

const (
	// CompressionNone stores payloads verbatim.
	CompressionNone Compression = 0
	// CompressionS2 uses S2 block compression (fast, snappy-compatible
	// framing family). Good default for float payloads.
	CompressionS2 Compression = 1
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 Compression = 2
)

// ParseCompression maps a config string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("persistence: unknown compression %q", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// compress encodes data with the selected algorithm. LZ4 can report a
// block as incompressible; those are stored verbatim as CompressionNone.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionS2:
		return s2.Encode(nil, data), CompressionS2, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return data, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil
	default:
		return nil, 0, ErrUnknownCompressor
	}
}

// decompress reverses compress. rawSize is the expected decoded size from
// the snapshot header.
func decompress(data []byte, c Compression, rawSize uint64) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionS2:
		out, err := s2.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFormat, err)
		}
		if uint64(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrFormat)
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFormat, err)
		}
		if uint64(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrFormat)
		}
		return out, nil
	default:
		return nil, ErrUnknownCompressor
	}
}
