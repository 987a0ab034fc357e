package cache

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/vexasearch/vexa/internal/hash"
)

// quantumScale fixes the fingerprint quantization: query components are
// rounded to 1e-6 resolution before hashing, so queries identical up to
// float noise below that resolution produce the same fingerprint.
const quantumScale = 1e6

// Fingerprint computes a deterministic 64-bit digest of a query's
// semantically relevant fields: the quantized embedding, k, the threshold
// (if any) and the filter set sorted by attribute name. The caller's
// request ID is deliberately excluded — tracing must never affect cache
// identity.
func Fingerprint(query []float32, k int, threshold *float32, filters map[string]string) uint64 {
	h := hash.New64()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(len(query)))
	_, _ = h.Write(buf[:])
	for _, v := range query {
		binary.LittleEndian.PutUint64(buf[:], uint64(quantize(v)))
		_, _ = h.Write(buf[:])
	}

	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	_, _ = h.Write(buf[:])

	if threshold != nil {
		_, _ = h.Write([]byte{1})
		binary.LittleEndian.PutUint64(buf[:], uint64(quantize(*threshold)))
		_, _ = h.Write(buf[:])
	} else {
		_, _ = h.Write([]byte{0})
	}

	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			_, _ = h.Write([]byte(key))
			_, _ = h.Write([]byte{0})
			_, _ = h.Write([]byte(filters[key]))
			_, _ = h.Write([]byte{0})
		}
	}

	return h.Sum64()
}

func quantize(v float32) int64 {
	f := float64(v) * quantumScale
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return math.MaxInt64
	}
	return int64(math.Round(f))
}
